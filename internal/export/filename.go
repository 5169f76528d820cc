package export

import (
	"fmt"
	"time"

	"github.com/eugenenazirov/photosheet/internal/layout"
)

const filePrefix = "photo-sheets"

// FileName builds the download name for an export, for example
// photo-sheets-10-22x28cm-2024-11-01.pdf. A sheetNumber above zero adds a
// -sheetN suffix when the plan spans more than one sheet.
func FileName(paper layout.PaperProfile, plan layout.LayoutPlan, format Format, sheetNumber int, date time.Time) string {
	name := fmt.Sprintf("%s-%d-%.0fx%.0fcm-%s",
		filePrefix, plan.TotalPhotosRequested, paper.WidthCm, paper.HeightCm, date.Format(time.DateOnly))
	if sheetNumber > 0 && plan.SheetCount() > 1 {
		name = fmt.Sprintf("%s-sheet%d", name, sheetNumber)
	}
	return name + "." + format.Ext()
}
