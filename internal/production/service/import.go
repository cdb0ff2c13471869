package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Spreadsheet columns, in their default order.
const (
	colMaterialRef = iota
	colSellsyRef
	colCategory
	colWidth
	colQuantity
	colUnit
	columnCount
)

var headerAliases = map[string]int{
	"material_ref": colMaterialRef,
	"ref sonefi":   colMaterialRef,
	"sonefi":       colMaterialRef,
	"reference":    colMaterialRef,
	"sellsy_ref":   colSellsyRef,
	"ref sellsy":   colSellsyRef,
	"sellsy":       colSellsyRef,
	"category":     colCategory,
	"categorie":    colCategory,
	"width":        colWidth,
	"laize":        colWidth,
	"largeur":      colWidth,
	"quantity":     colQuantity,
	"quantite":     colQuantity,
	"metrage":      colQuantity,
	"unit":         colUnit,
	"unite":        colUnit,
}

// ImportRowError reports a spreadsheet line that was not imported.
type ImportRowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportResult summarises a stock import.
type ImportResult struct {
	Imported int                     `json:"imported"`
	Batches  []*domain.MaterialBatch `json:"batches"`
	Errors   []ImportRowError        `json:"errors"`
}

// ParseBatchSheet reads material batches from the first sheet of an xlsx
// workbook. A header row is recognised by its column names and may reorder
// the columns; without one the default order is assumed.
func ParseBatchSheet(r io.Reader) ([]*domain.MaterialBatch, []ImportRowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, errors.BadRequest("file is not a readable xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.BadRequest("workbook has no sheet")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, errors.BadRequest("cannot read sheet " + sheets[0])
	}

	positions := defaultPositions()
	batches := []*domain.MaterialBatch{}
	rowErrors := []ImportRowError{}
	headerSeen := false

	for i, row := range rows {
		line := i + 1
		if isBlankRow(row) {
			continue
		}
		if !headerSeen {
			headerSeen = true
			if mapped, ok := headerPositions(row); ok {
				positions = mapped
				continue
			}
		}

		batch, reason := parseBatchRow(row, positions)
		if reason != "" {
			rowErrors = append(rowErrors, ImportRowError{Line: line, Reason: reason})
			continue
		}
		batches = append(batches, batch)
	}

	return batches, rowErrors, nil
}

// ImportBatches parses an xlsx stock sheet and inserts every valid line in one transaction.
func (s *LedgerService) ImportBatches(ctx context.Context, r io.Reader) (*ImportResult, error) {
	batches, rowErrors, err := ParseBatchSheet(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Batches: batches, Errors: rowErrors}
	if len(batches) == 0 {
		return result, nil
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		repo := s.batchRepo.WithTx(tx)
		for _, batch := range batches {
			if err := repo.Create(ctx, batch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Imported = len(batches)
	s.logger.Info().
		Int("imported", result.Imported).
		Int("rejected", len(rowErrors)).
		Msg("stock sheet imported")
	return result, nil
}

func defaultPositions() [columnCount]int {
	var p [columnCount]int
	for i := range p {
		p[i] = i
	}
	return p
}

func headerPositions(row []string) ([columnCount]int, bool) {
	var p [columnCount]int
	for i := range p {
		p[i] = -1
	}
	for idx, cell := range row {
		if col, ok := headerAliases[normalizeHeader(cell)]; ok && p[col] == -1 {
			p[col] = idx
		}
	}
	if p[colMaterialRef] == -1 || p[colQuantity] == -1 {
		return p, false
	}
	return p, true
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("é", "e", "è", "e", "û", "u", "-", " ").Replace(s)
}

func parseBatchRow(row []string, p [columnCount]int) (*domain.MaterialBatch, string) {
	cell := func(col int) string {
		idx := p[col]
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	ref := cell(colMaterialRef)
	if ref == "" {
		return nil, "material reference is empty"
	}

	raw := cell(colQuantity)
	if raw == "" {
		return nil, "quantity is empty"
	}
	qty, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return nil, fmt.Sprintf("quantity %q is not a number", raw)
	}
	if qty.IsNegative() {
		return nil, "quantity must not be negative"
	}
	if !domain.FitsScale(qty) {
		return nil, fmt.Sprintf("quantity %q has more than %d decimal places", raw, domain.QuantityScale)
	}

	batch := &domain.MaterialBatch{
		MaterialRef: ref,
		Category:    cell(colCategory),
		Quantity:    qty,
		Unit:        cell(colUnit),
	}
	if v := cell(colSellsyRef); v != "" {
		batch.SellsyRef = &v
	}
	if v := cell(colWidth); v != "" {
		batch.Width = &v
	}
	if batch.Unit == "" {
		batch.Unit = "m"
	}
	return batch, ""
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
