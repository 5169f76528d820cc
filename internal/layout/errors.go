package layout

import "errors"

var (
	// ErrInvalidInput is returned for negative photo counts or non-positive
	// paper/item dimensions.
	ErrInvalidInput = errors.New("invalid layout input")
	// ErrNoCapacity is returned when not a single photo fits inside the
	// printable area of the paper.
	ErrNoCapacity = errors.New("photo does not fit inside the printable area")
)
