package render

import (
	"errors"
	"fmt"
)

var (
	// ErrRasterization is returned when a sheet cannot be drawn. It never
	// invalidates the layout plan, so callers may simply retry.
	ErrRasterization = errors.New("sheet rasterization failed")
	// ErrDecode is returned when the source photo cannot be decoded.
	ErrDecode = fmt.Errorf("%w: cannot decode photo", ErrRasterization)
	// ErrCanvasTooLarge is returned when a sheet would need more than
	// MaxCanvasPixels at the configured DPI.
	ErrCanvasTooLarge = fmt.Errorf("%w: sheet canvas too large", ErrRasterization)
)
