// Package export turns a layout plan and a photo into printable files: a
// single PDF with one page per sheet, or one PNG/JPEG image per sheet.
package export
