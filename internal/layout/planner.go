package layout

import (
	"fmt"
	"math"
)

// maxAxisCount caps the per-axis count so capacity products stay within int.
const maxAxisCount = math.MaxInt32

type gridPlanner struct {
	item ItemSize
	cfg  PackingConfig
}

// New creates a Planner for a fixed item size and packing configuration.
func New(item ItemSize, cfg PackingConfig) Planner {
	return &gridPlanner{item: item, cfg: cfg}
}

func (p *gridPlanner) PlanLayout(paper PaperProfile, totalPhotos int) (LayoutPlan, error) {
	return PlanLayout(paper, p.item, p.cfg, totalPhotos)
}

func (p *gridPlanner) Capacity(paper PaperProfile) Capacity {
	return ComputeSheetCapacity(paper, p.item, p.cfg)
}

// ComputeSheetCapacity returns how many columns and rows of items fit on the
// paper. Spacing only separates adjacent items, so n items along an axis
// need n*item + (n-1)*spacing of the available span.
func ComputeSheetCapacity(paper PaperProfile, item ItemSize, cfg PackingConfig) Capacity {
	cols := axisCount(paper.WidthIn, item.WidthIn, cfg)
	rows := axisCount(paper.HeightIn, item.HeightIn, cfg)
	if cols <= 0 || rows <= 0 {
		return Capacity{}
	}
	return Capacity{MaxCols: cols, MaxRows: rows, PerSheet: cols * rows}
}

func axisCount(paperDim, itemDim float64, cfg PackingConfig) int {
	available := paperDim - 2*cfg.Margin
	n := math.Floor((available + cfg.Spacing) / (itemDim + cfg.Spacing))
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	if n > maxAxisCount {
		return maxAxisCount
	}
	return int(n)
}

// PlanLayout distributes totalPhotos across as many sheets as needed. Every
// sheet but the last is filled to capacity and each sheet gets the most
// square grid that holds its photos.
func PlanLayout(paper PaperProfile, item ItemSize, cfg PackingConfig, totalPhotos int) (LayoutPlan, error) {
	if err := validate(paper, item, cfg, totalPhotos); err != nil {
		return LayoutPlan{}, err
	}

	capacity := ComputeSheetCapacity(paper, item, cfg)
	plan := LayoutPlan{
		PaperSize:            paper.ID,
		TotalPhotosRequested: totalPhotos,
		Capacity:             capacity,
		Sheets:               []SheetPlan{},
	}
	if totalPhotos == 0 {
		return plan, nil
	}
	if capacity.PerSheet == 0 {
		return LayoutPlan{}, fmt.Errorf("%w: paper %q (%.2fin x %.2fin, margin %.2fin)",
			ErrNoCapacity, paper.ID, paper.WidthIn, paper.HeightIn, cfg.Margin)
	}

	totalSheets := ceilDiv(totalPhotos, capacity.PerSheet)
	plan.Sheets = make([]SheetPlan, 0, totalSheets)
	for i := 0; i < totalSheets; i++ {
		remaining := totalPhotos - i*capacity.PerSheet
		inSheet := min(remaining, capacity.PerSheet)
		rows, cols := bestGrid(inSheet, capacity)

		plan.Sheets = append(plan.Sheets, SheetPlan{
			SheetNumber:   i + 1,
			Rows:          rows,
			Cols:          cols,
			PhotosInSheet: inSheet,
			MarginX:       cfg.Margin,
			MarginY:       cfg.Margin,
		})
	}

	return plan, nil
}

// bestGrid scans every feasible row count and keeps the split with the
// smallest |rows-cols|. Ties keep the earlier, smaller row count. Row counts
// above the photo count only add empty rows and can never win.
func bestGrid(photos int, capacity Capacity) (int, int) {
	bestRows, bestCols := 0, 0
	found := false
	for rows := 1; rows <= min(capacity.MaxRows, photos); rows++ {
		cols := ceilDiv(photos, rows)
		if cols > capacity.MaxCols {
			continue
		}
		if !found || imbalance(rows, cols) < imbalance(bestRows, bestCols) {
			bestRows, bestCols = rows, cols
			found = true
		}
	}
	return bestRows, bestCols
}

func imbalance(rows, cols int) int {
	if rows > cols {
		return rows - cols
	}
	return cols - rows
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func validate(paper PaperProfile, item ItemSize, cfg PackingConfig, totalPhotos int) error {
	if totalPhotos < 0 {
		return fmt.Errorf("%w: photo count must be non-negative, got %d", ErrInvalidInput, totalPhotos)
	}
	if !positive(paper.WidthIn) || !positive(paper.HeightIn) {
		return fmt.Errorf("%w: paper dimensions must be positive", ErrInvalidInput)
	}
	if !positive(item.WidthIn) || !positive(item.HeightIn) {
		return fmt.Errorf("%w: item dimensions must be positive", ErrInvalidInput)
	}
	if !nonNegative(cfg.Margin) || !nonNegative(cfg.Spacing) {
		return fmt.Errorf("%w: margin and spacing must be non-negative", ErrInvalidInput)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
