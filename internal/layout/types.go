package layout

// CmPerInch converts between the two unit systems a PaperProfile carries.
const CmPerInch = 2.54

// PaperProfile is a named physical sheet. Width and height are stored in both
// inches and centimeters; the planner works in inches.
type PaperProfile struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	WidthIn  float64 `json:"widthIn" yaml:"width_in"`
	HeightIn float64 `json:"heightIn" yaml:"height_in"`
	WidthCm  float64 `json:"widthCm" yaml:"width_cm"`
	HeightCm float64 `json:"heightCm" yaml:"height_cm"`
}

// NewPaperProfile builds a profile from inch dimensions, deriving centimeters.
func NewPaperProfile(id, name string, widthIn, heightIn float64) PaperProfile {
	return PaperProfile{
		ID:       id,
		Name:     name,
		WidthIn:  widthIn,
		HeightIn: heightIn,
		WidthCm:  widthIn * CmPerInch,
		HeightCm: heightIn * CmPerInch,
	}
}

// ItemSize is the fixed physical size of one photo, in inches.
type ItemSize struct {
	WidthIn  float64 `json:"widthIn"`
	HeightIn float64 `json:"heightIn"`
}

// ItemFromCm converts centimeter dimensions into an ItemSize.
func ItemFromCm(widthCm, heightCm float64) ItemSize {
	return ItemSize{
		WidthIn:  widthCm / CmPerInch,
		HeightIn: heightCm / CmPerInch,
	}
}

// DefaultItem returns the 2.5cm x 3.0cm photo size.
func DefaultItem() ItemSize {
	return ItemFromCm(2.5, 3.0)
}

// PackingConfig holds the outer margin, applied on all four edges, and the
// spacing kept between adjacent photos in both axes. Both are in inches.
type PackingConfig struct {
	Margin  float64 `json:"margin"`
	Spacing float64 `json:"spacing"`
}

// DefaultPackingConfig returns a 0.15in margin and 0.08in (~2mm) spacing.
func DefaultPackingConfig() PackingConfig {
	return PackingConfig{Margin: 0.15, Spacing: 0.08}
}

// Capacity describes how many photos fit on one sheet.
type Capacity struct {
	MaxCols  int `json:"maxCols"`
	MaxRows  int `json:"maxRows"`
	PerSheet int `json:"photosPerSheet"`
}

// SheetPlan is the grid chosen for a single sheet. SheetNumber is 1-based.
type SheetPlan struct {
	SheetNumber   int     `json:"sheetNumber"`
	Rows          int     `json:"rows"`
	Cols          int     `json:"cols"`
	PhotosInSheet int     `json:"photosInSheet"`
	MarginX       float64 `json:"marginX"`
	MarginY       float64 `json:"marginY"`
}

// LayoutPlan is the full packing decision for a paper and photo count.
// Sheets are in print order.
type LayoutPlan struct {
	PaperSize            string      `json:"paperSize"`
	TotalPhotosRequested int         `json:"totalPhotosRequested"`
	Capacity             Capacity    `json:"capacity"`
	Sheets               []SheetPlan `json:"sheets"`
}

// SheetCount returns the number of sheets in the plan.
func (p LayoutPlan) SheetCount() int {
	return len(p.Sheets)
}

// PhotoCount sums the photos placed across all sheets.
func (p LayoutPlan) PhotoCount() int {
	total := 0
	for _, s := range p.Sheets {
		total += s.PhotosInSheet
	}
	return total
}

// Sheet returns the sheet with the given 1-based number.
func (p LayoutPlan) Sheet(number int) (SheetPlan, bool) {
	if number < 1 || number > len(p.Sheets) {
		return SheetPlan{}, false
	}
	return p.Sheets[number-1], true
}

// Planner describes the behaviour required from a sheet layout planner.
type Planner interface {
	PlanLayout(paper PaperProfile, totalPhotos int) (LayoutPlan, error)
	Capacity(paper PaperProfile) Capacity
}
