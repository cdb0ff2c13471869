package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// PickingListRenderer lays out the picking list as an A4 PDF.
type PickingListRenderer struct {
	Title string
	Now   func() time.Time
}

// Render writes one section per client with its units waiting to ship.
func (r PickingListRenderer) Render(w io.Writer, groups []ClientGroup) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 24

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, now().Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(groups) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(contentW, 6, tr("Aucune pièce à expédier"), "", 1, "L", false, 0, "")
	}

	colRef := contentW * 0.40
	colCat := contentW * 0.25
	colQty := contentW * 0.15
	colDate := contentW * 0.20

	for _, group := range groups {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(contentW, 7, tr(fmt.Sprintf("%s (%d)", group.Client, group.Count)), "B", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "B", 8)
		pdf.CellFormat(colRef, 5, tr("Référence"), "", 0, "L", false, 0, "")
		pdf.CellFormat(colCat, 5, tr("Catégorie"), "", 0, "L", false, 0, "")
		pdf.CellFormat(colQty, 5, tr("Quantité"), "", 0, "R", false, 0, "")
		pdf.CellFormat(colDate, 5, tr("Reçu le"), "", 1, "R", false, 0, "")

		pdf.SetFont("Helvetica", "", 8)
		for _, u := range group.Units {
			pdf.CellFormat(colRef, 5, tr(u.ProductRef), "", 0, "L", false, 0, "")
			pdf.CellFormat(colCat, 5, tr(u.Category), "", 0, "L", false, 0, "")
			pdf.CellFormat(colQty, 5, u.Quantity.String()+" "+tr(u.Unit), "", 0, "R", false, 0, "")
			pdf.CellFormat(colDate, 5, u.ReceivedAt.Format("02/01/2006"), "", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf: render picking list: %w", err)
	}
	return nil
}

// RenderPickingList writes the current picking list PDF to w.
func (s *ReportingService) RenderPickingList(ctx context.Context, r PickingListRenderer, w io.Writer) error {
	groups, err := s.PickingList(ctx)
	if err != nil {
		return err
	}
	return r.Render(w, groups)
}
