package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/disintegration/imaging"

	"github.com/eugenenazirov/photosheet/internal/layout"
)

const (
	// DefaultDPI is the print resolution used when none is configured.
	DefaultDPI = 300
	// MaxCanvasPixels bounds one sheet canvas, about 640 MB as NRGBA.
	MaxCanvasPixels = 160_000_000
)

var outlineColor = color.NRGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}

// Renderer turns sheet plans into raster canvases at a fixed resolution.
type Renderer struct {
	item layout.ItemSize
	cfg  layout.PackingConfig
	dpi  float64
}

// New creates a Renderer. A non-positive dpi falls back to DefaultDPI.
func New(item layout.ItemSize, cfg layout.PackingConfig, dpi float64) *Renderer {
	if dpi <= 0 || math.IsInf(dpi, 0) || math.IsNaN(dpi) {
		dpi = DefaultDPI
	}
	return &Renderer{item: item, cfg: cfg, dpi: dpi}
}

// DPI returns the dots-per-inch the renderer draws at.
func (r *Renderer) DPI() float64 {
	return r.dpi
}

// Decode reads a photo, honouring its EXIF orientation.
func Decode(src io.Reader) (image.Image, error) {
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// TileSize returns the pixel size of one photo on the sheet.
func (r *Renderer) TileSize() (int, int) {
	return r.px(r.item.WidthIn), r.px(r.item.HeightIn)
}

// CanvasSize returns the pixel size of a full sheet of paper.
func (r *Renderer) CanvasSize(paper layout.PaperProfile) (int, int) {
	return r.px(paper.WidthIn), r.px(paper.HeightIn)
}

// CheckCanvas rejects papers whose canvas at the renderer's DPI would exceed
// MaxCanvasPixels. The check runs in floating point so it holds for sizes
// whose pixel counts overflow int.
func (r *Renderer) CheckCanvas(paper layout.PaperProfile) error {
	pixels := (paper.WidthIn * r.dpi) * (paper.HeightIn * r.dpi)
	if pixels > MaxCanvasPixels || math.IsNaN(pixels) {
		return fmt.Errorf("%w: %.2fin x %.2fin at %.0f dpi needs %.0f pixels, limit is %d",
			ErrCanvasTooLarge, paper.WidthIn, paper.HeightIn, r.dpi, pixels, MaxCanvasPixels)
	}
	return nil
}

// Tile scales the photo to cover the photo box and crops the overflowing
// axis around the center.
func (r *Renderer) Tile(photo image.Image) (*image.NRGBA, error) {
	if photo == nil || photo.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty photo", ErrRasterization)
	}
	w, h := r.TileSize()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: photo box is %dx%d pixels at %.0f dpi", ErrRasterization, w, h, r.dpi)
	}
	return imaging.Fill(photo, w, h, imaging.Center, imaging.Lanczos), nil
}

// Placements returns the destination box of every photo on the sheet, in
// row-major order starting at the top-left corner inside the margins.
func (r *Renderer) Placements(sheet layout.SheetPlan) []image.Rectangle {
	w, h := r.TileSize()
	stepX := (r.item.WidthIn + r.cfg.Spacing) * r.dpi
	stepY := (r.item.HeightIn + r.cfg.Spacing) * r.dpi
	startX := sheet.MarginX * r.dpi
	startY := sheet.MarginY * r.dpi

	rects := make([]image.Rectangle, 0, max(sheet.PhotosInSheet, 0))
	for row := 0; row < sheet.Rows && len(rects) < sheet.PhotosInSheet; row++ {
		for col := 0; col < sheet.Cols && len(rects) < sheet.PhotosInSheet; col++ {
			x := int(math.Round(startX + float64(col)*stepX))
			y := int(math.Round(startY + float64(row)*stepY))
			rects = append(rects, image.Rect(x, y, x+w, y+h))
		}
	}
	return rects
}

// RenderSheet draws one sheet: a white page with the tile copied into every
// placement and a thin grey cutting outline around each copy.
func (r *Renderer) RenderSheet(paper layout.PaperProfile, sheet layout.SheetPlan, tile image.Image) (*image.NRGBA, error) {
	if tile == nil || tile.Bounds().Empty() {
		return nil, fmt.Errorf("%w: missing photo tile", ErrRasterization)
	}
	if sheet.PhotosInSheet < 0 || sheet.Rows*sheet.Cols < sheet.PhotosInSheet {
		return nil, fmt.Errorf("%w: sheet %d grid %dx%d cannot hold %d photos",
			ErrRasterization, sheet.SheetNumber, sheet.Rows, sheet.Cols, sheet.PhotosInSheet)
	}
	if err := r.CheckCanvas(paper); err != nil {
		return nil, err
	}
	w, h := r.CanvasSize(paper)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: canvas is %dx%d pixels", ErrRasterization, w, h)
	}

	canvas := imaging.New(w, h, color.White)
	for _, rect := range r.Placements(sheet) {
		draw.Draw(canvas, rect, tile, tile.Bounds().Min, draw.Src)
		strokeRect(canvas, rect, outlineColor)
	}
	return canvas, nil
}

func strokeRect(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.SetNRGBA(x, rect.Min.Y, c)
		img.SetNRGBA(x, rect.Max.Y-1, c)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.SetNRGBA(rect.Min.X, y, c)
		img.SetNRGBA(rect.Max.X-1, y, c)
	}
}

func (r *Renderer) px(inches float64) int {
	return int(math.Round(inches * r.dpi))
}
