package export

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Format is an output file type.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
	FormatJPG Format = "jpg"
)

// ParseFormat accepts pdf, png, jpg and jpeg in any case.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pdf":
		return FormatPDF, nil
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	return string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatPNG:
		return "image/png"
	case FormatJPG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// Paginated reports whether all sheets go into a single document.
func (f Format) Paginated() bool {
	return f == FormatPDF
}

func (f Format) imagingFormat() (imaging.Format, error) {
	switch f {
	case FormatPNG:
		return imaging.PNG, nil
	case FormatJPG:
		return imaging.JPEG, nil
	default:
		return 0, fmt.Errorf("%w: %q is not a raster format", ErrUnsupportedFormat, string(f))
	}
}
