package export

import "errors"

var (
	// ErrEmptyPlan is returned when a plan has no sheets to export.
	ErrEmptyPlan = errors.New("no sheets to export")
	// ErrSheetOutOfRange is returned when a requested sheet number is not part of the plan.
	ErrSheetOutOfRange = errors.New("sheet number out of range")
	// ErrUnsupportedFormat is returned for export formats other than pdf, png and jpg.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
