// Package report renders coalesced rows into the merge-table workbook.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/engine"
	"github.com/homexhq/catalog-merge/internal/model"
)

const sheetName = "Merge Result"

const noMatchLabel = "No Match"

var columnHeaders = []string{
	"Match Type",
	"Category ID",
	"Category Name",
	"Inventory/Non-Inventory?",
	"ID",
	"Code",
	"Name",
	"Description",
	"Intacct GL Group",
	"UOM",
	"Cost",
}

// Writer renders report rows into one xlsx sheet with an eleven-column block
// per provider, reference provider first.
type Writer struct {
	set       *catalog.Set
	reference model.Provider
}

// NewWriter builds a Writer over a loaded catalog set.
func NewWriter(set *catalog.Set, reference model.Provider) *Writer {
	return &Writer{set: set, reference: reference}
}

// Write saves the merge table to path, creating parent directories as needed.
func (w *Writer) Write(rows []engine.Row, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	order := w.providerOrder()
	if err := w.writeHeaders(f, order); err != nil {
		return err
	}

	for i, row := range rows {
		values := make([]any, 0, len(order)*len(columnHeaders))
		for _, provider := range order {
			cells, err := w.providerCells(row[provider])
			if err != nil {
				return err
			}
			values = append(values, cells...)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save merge table: %w", err)
	}
	return nil
}

// writeHeaders writes the provider banner row and the repeated column labels.
func (w *Writer) writeHeaders(f *excelize.File, order []model.Provider) error {
	banner := make([]any, len(order)*len(columnHeaders))
	labels := make([]any, 0, len(order)*len(columnHeaders))
	for i, provider := range order {
		banner[i*len(columnHeaders)] = string(provider)
		for _, header := range columnHeaders {
			labels = append(labels, header)
		}
	}
	if err := f.SetSheetRow(sheetName, "A1", &banner); err != nil {
		return fmt.Errorf("write banner row: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A2", &labels); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	return nil
}

// providerCells renders one provider's block of a row. A nil cell means the
// provider has no item on this row.
func (w *Writer) providerCells(cell *engine.Cell) ([]any, error) {
	if cell == nil {
		values := make([]any, len(columnHeaders))
		values[0] = noMatchLabel
		for i := 1; i < len(values); i++ {
			values[i] = ""
		}
		return values, nil
	}

	item, err := w.set.ItemByRef(cell.Ref)
	if err != nil {
		return nil, err
	}
	out := item.Output(cell.Type)

	inventory := "NI"
	if out.IsInventory {
		inventory = "INV"
	}
	return []any{
		matchLabel(out.MatchType),
		out.CategoryID,
		out.CategoryName,
		inventory,
		out.ID,
		out.Code,
		out.Name,
		out.Description,
		out.IntacctGLGrp,
		out.UnitOfMeasure,
		out.Cost,
	}, nil
}

func (w *Writer) providerOrder() []model.Provider {
	order := []model.Provider{w.reference}
	for _, provider := range model.Providers() {
		if provider != w.reference {
			order = append(order, provider)
		}
	}
	return order
}

// matchLabel is the human-facing rendering of a match type. Anchor items
// carry no match type and render as the row's original.
func matchLabel(t *model.MatchType) string {
	if t == nil {
		return "(Original)"
	}
	if *t == model.MatchHazyLLM {
		return "Hazy Match"
	}
	return "Matched"
}
