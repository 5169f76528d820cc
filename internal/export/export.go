package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/photosheet/internal/layout"
	"github.com/eugenenazirov/photosheet/internal/render"
)

// DefaultJPEGQuality matches the quality used for both JPEG files and the
// pages embedded into PDFs.
const DefaultJPEGQuality = 95

// Exporter writes rasterized sheets as a paginated PDF or as one image per sheet.
// Sheets are rendered one at a time so only a single canvas is alive at once.
type Exporter struct {
	renderer    *render.Renderer
	jpegQuality int
	logger      *zap.Logger
}

// Option configures Exporter behaviour.
type Option func(*Exporter)

// WithJPEGQuality sets the JPEG quality (1-100). Out of range values are ignored.
func WithJPEGQuality(quality int) Option {
	return func(e *Exporter) {
		if quality >= 1 && quality <= 100 {
			e.jpegQuality = quality
		}
	}
}

// WithLogger sets the logger used for per-sheet and per-export events.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New constructs an Exporter around the given renderer.
func New(renderer *render.Renderer, opts ...Option) *Exporter {
	e := &Exporter{
		renderer:    renderer,
		jpegQuality: DefaultJPEGQuality,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Write exports the plan in the given format. PDF exports contain every sheet;
// raster formats export only sheetNumber.
func (e *Exporter) Write(ctx context.Context, w io.Writer, paper layout.PaperProfile, plan layout.LayoutPlan, photo image.Image, format Format, sheetNumber int) error {
	if format.Paginated() {
		return e.WritePDF(ctx, w, paper, plan, photo)
	}
	return e.WriteSheet(ctx, w, paper, plan, photo, sheetNumber, format)
}

// WritePDF writes a document with one page per sheet. Pages have the physical
// size of the paper and carry the rendered sheet edge to edge.
func (e *Exporter) WritePDF(ctx context.Context, w io.Writer, paper layout.PaperProfile, plan layout.LayoutPlan, photo image.Image) error {
	if plan.SheetCount() == 0 {
		return ErrEmptyPlan
	}

	log := e.logger.With(zap.String("export_id", uuid.NewString()), zap.String("format", string(FormatPDF)))
	start := time.Now()

	tile, err := e.renderer.Tile(photo)
	if err != nil {
		return err
	}

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           fpdf.SizeType{Wd: paper.WidthIn, Ht: paper.HeightIn},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("photosheet", true)
	doc.SetTitle(fmt.Sprintf("%d photos on %s", plan.TotalPhotosRequested, paper.Name), true)

	imageOpts := fpdf.ImageOptions{ImageType: "JPG"}
	for _, sheet := range plan.Sheets {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page bytes.Buffer
		if err := e.renderSheet(&page, paper, sheet, tile, FormatJPG); err != nil {
			return err
		}

		name := fmt.Sprintf("sheet-%d", sheet.SheetNumber)
		doc.AddPage()
		doc.RegisterImageOptionsReader(name, imageOpts, &page)
		doc.ImageOptions(name, 0, 0, paper.WidthIn, paper.HeightIn, false, imageOpts, 0, "")
		if doc.Err() {
			return fmt.Errorf("%w: pdf page %d: %v", render.ErrRasterization, sheet.SheetNumber, doc.Error())
		}
		log.Debug("sheet rendered", zap.Int("sheet", sheet.SheetNumber), zap.Int("photos", sheet.PhotosInSheet))
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}

	log.Info("export completed",
		zap.String("paper", paper.ID),
		zap.Int("sheets", plan.SheetCount()),
		zap.Int("photos", plan.TotalPhotosRequested),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// WriteSheet writes a single sheet as a PNG or JPEG image.
func (e *Exporter) WriteSheet(ctx context.Context, w io.Writer, paper layout.PaperProfile, plan layout.LayoutPlan, photo image.Image, sheetNumber int, format Format) error {
	if plan.SheetCount() == 0 {
		return ErrEmptyPlan
	}
	sheet, ok := plan.Sheet(sheetNumber)
	if !ok {
		return fmt.Errorf("%w: %d (plan has %d sheets)", ErrSheetOutOfRange, sheetNumber, plan.SheetCount())
	}
	if _, err := format.imagingFormat(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tile, err := e.renderer.Tile(photo)
	if err != nil {
		return err
	}
	return e.renderSheet(w, paper, sheet, tile, format)
}

// WriteFiles exports the plan into dir and returns the written paths: a single
// PDF, or one image file per sheet.
func (e *Exporter) WriteFiles(ctx context.Context, dir string, paper layout.PaperProfile, plan layout.LayoutPlan, photo image.Image, format Format, date time.Time) ([]string, error) {
	if plan.SheetCount() == 0 {
		return nil, ErrEmptyPlan
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if format.Paginated() {
		path := filepath.Join(dir, FileName(paper, plan, format, 0, date))
		err := writeFile(path, func(w io.Writer) error {
			return e.WritePDF(ctx, w, paper, plan, photo)
		})
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	if _, err := format.imagingFormat(); err != nil {
		return nil, err
	}
	tile, err := e.renderer.Tile(photo)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, plan.SheetCount())
	for _, sheet := range plan.Sheets {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path := filepath.Join(dir, FileName(paper, plan, format, sheet.SheetNumber, date))
		err := writeFile(path, func(w io.Writer) error {
			return e.renderSheet(w, paper, sheet, tile, format)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
		e.logger.Debug("sheet written", zap.String("path", path), zap.Int("sheet", sheet.SheetNumber))
	}
	return paths, nil
}

func (e *Exporter) renderSheet(w io.Writer, paper layout.PaperProfile, sheet layout.SheetPlan, tile image.Image, format Format) error {
	imgFormat, err := format.imagingFormat()
	if err != nil {
		return err
	}
	canvas, err := e.renderer.RenderSheet(paper, sheet, tile)
	if err != nil {
		return err
	}
	if err := imaging.Encode(w, canvas, imgFormat, imaging.JPEGQuality(e.jpegQuality)); err != nil {
		return fmt.Errorf("%w: encode sheet %d: %v", render.ErrRasterization, sheet.SheetNumber, err)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
