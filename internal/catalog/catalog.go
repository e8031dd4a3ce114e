// Package catalog loads provider workbooks into read-only in-memory indexes.
//
// Every provider ships one workbook with an Equipment and a Materials sheet.
// The header row names the columns; each data row is one catalog item. Loading
// fails fast on a missing or duplicated id or code, so a constructed index is
// always internally consistent.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/model"
)

// Column names shared by both sheets.
const (
	colID            = "Id"
	colCode          = "Code"
	colCategoryID    = "Category.ID"
	colCategoryName  = "Category.Name"
	colIsInventory   = "IsInventory"
	colName          = "Name"
	colDescription   = "Description"
	colIntacctGLGrp  = "Intacct GL Group"
	colUnitOfMeasure = "UnitOfMeasure"
	colCost          = "Cost"
)

// Item is one catalog row with its full field set. Read-only after load.
type Item struct {
	provider model.Provider
	sheet    model.SheetName
	data     map[string]string
	id       int
	code     string
}

// Provider returns the item's source provider.
func (it *Item) Provider() model.Provider { return it.provider }

// Sheet returns the sheet the item was loaded from.
func (it *Item) Sheet() model.SheetName { return it.sheet }

// ID returns the provider-assigned numeric id.
func (it *Item) ID() int { return it.id }

// Code returns the product code.
func (it *Item) Code() string { return it.code }

// Get returns the raw cell value for a column, or "" when the column is
// absent or empty.
func (it *Item) Get(column string) string { return it.data[column] }

// Ref returns the item's stable identity.
func (it *Item) Ref() model.ItemReference {
	return model.ItemReference{Provider: it.provider, Sheet: it.sheet, ID: it.id}
}

// Output renders the item into the eleven merge-table cells. matchType is nil
// for a cluster anchor's own cell.
func (it *Item) Output(matchType *model.MatchType) model.ItemOutput {
	cost, _ := strconv.ParseFloat(it.Get(colCost), 64)
	return model.ItemOutput{
		MatchType:     matchType,
		CategoryID:    it.Get(colCategoryID),
		CategoryName:  it.Get(colCategoryName),
		IsInventory:   it.Get(colIsInventory) == "1",
		ID:            it.id,
		Code:          it.code,
		Name:          it.Get(colName),
		Description:   it.Get(colDescription),
		IntacctGLGrp:  it.Get(colIntacctGLGrp),
		UnitOfMeasure: it.Get(colUnitOfMeasure),
		Cost:          cost,
	}
}

// sheet indexes one worksheet's rows by id and code.
type sheet struct {
	items     []*Item
	idToIndex map[int]int
	codeToID  map[string]int
}

func newSheet(provider model.Provider, name model.SheetName, rows [][]string) (*sheet, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s/%s: %w: header row", provider, name, common.ErrMissingField)
	}

	columns := make(map[string]int, len(rows[0]))
	for idx, header := range rows[0] {
		header = strings.TrimSpace(header)
		if header != "" {
			columns[header] = idx
		}
	}
	if _, ok := columns[colID]; !ok {
		return nil, fmt.Errorf("sheet %s/%s: %w: column %q", provider, name, common.ErrMissingField, colID)
	}
	if _, ok := columns[colCode]; !ok {
		return nil, fmt.Errorf("sheet %s/%s: %w: column %q", provider, name, common.ErrMissingField, colCode)
	}

	s := &sheet{
		idToIndex: make(map[int]int),
		codeToID:  make(map[string]int),
	}

	for rowIdx, row := range rows[1:] {
		data := make(map[string]string, len(columns))
		for column, colIdx := range columns {
			if colIdx < len(row) {
				data[column] = strings.TrimSpace(row[colIdx])
			}
		}

		rawID := data[colID]
		if rawID == "" {
			return nil, fmt.Errorf("sheet %s/%s row %d: %w: id", provider, name, rowIdx+2, common.ErrMissingField)
		}
		id, err := strconv.Atoi(rawID)
		if err != nil {
			return nil, fmt.Errorf("sheet %s/%s row %d: invalid id %q: %w", provider, name, rowIdx+2, rawID, err)
		}

		code := data[colCode]
		if code == "" {
			return nil, fmt.Errorf("sheet %s/%s row %d: %w: code", provider, name, rowIdx+2, common.ErrMissingField)
		}

		if _, exists := s.idToIndex[id]; exists {
			return nil, fmt.Errorf("sheet %s/%s: %w: id %d", provider, name, common.ErrDuplicateEntry, id)
		}
		if _, exists := s.codeToID[code]; exists {
			return nil, fmt.Errorf("sheet %s/%s: %w: code %q", provider, name, common.ErrDuplicateEntry, code)
		}

		s.idToIndex[id] = len(s.items)
		s.codeToID[code] = id
		s.items = append(s.items, &Item{
			provider: provider,
			sheet:    name,
			data:     data,
			id:       id,
			code:     code,
		})
	}

	return s, nil
}

func (s *sheet) itemByID(id int) *Item {
	idx, ok := s.idToIndex[id]
	if !ok {
		return nil
	}
	return s.items[idx]
}

// Workbook is the full catalog index for one provider: O(1) lookup by id or
// code and a stable ordered list of item references.
type Workbook struct {
	provider  model.Provider
	sheets    map[model.SheetName]*sheet
	refs      []model.ItemReference
	idToRef   map[int]model.ItemReference
	codeToRef map[string]model.ItemReference
}

// NewWorkbook builds a workbook index from raw sheet rows (header row first).
// It is the constructor LoadWorkbook feeds; tests use it directly.
func NewWorkbook(provider model.Provider, rowsBySheet map[model.SheetName][][]string) (*Workbook, error) {
	wb := &Workbook{
		provider:  provider,
		sheets:    make(map[model.SheetName]*sheet),
		idToRef:   make(map[int]model.ItemReference),
		codeToRef: make(map[string]model.ItemReference),
	}

	for _, name := range model.SheetNames() {
		rows, ok := rowsBySheet[name]
		if !ok {
			return nil, fmt.Errorf("workbook %s: %w: sheet %q", provider, common.ErrMissingField, name)
		}
		s, err := newSheet(provider, name, rows)
		if err != nil {
			return nil, err
		}
		wb.sheets[name] = s

		for _, item := range s.items {
			ref := item.Ref()
			if _, exists := wb.idToRef[item.id]; exists {
				return nil, fmt.Errorf("workbook %s: %w: id %d across sheets", provider, common.ErrDuplicateEntry, item.id)
			}
			if _, exists := wb.codeToRef[item.code]; exists {
				return nil, fmt.Errorf("workbook %s: %w: code %q across sheets", provider, common.ErrDuplicateEntry, item.code)
			}
			wb.refs = append(wb.refs, ref)
			wb.idToRef[item.id] = ref
			wb.codeToRef[item.code] = ref
		}
	}

	return wb, nil
}

// LoadWorkbook reads a provider's .xlsx file and indexes both catalog sheets.
func LoadWorkbook(provider model.Provider, path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook for %s: %w", provider, err)
	}
	defer func() { _ = f.Close() }()

	rowsBySheet := make(map[model.SheetName][][]string, 2)
	for _, name := range model.SheetNames() {
		rows, rowsErr := f.GetRows(string(name))
		if rowsErr != nil {
			return nil, fmt.Errorf("read sheet %s of %s: %w", name, provider, rowsErr)
		}
		rowsBySheet[name] = rows
	}

	return NewWorkbook(provider, rowsBySheet)
}

// Provider returns the provider this workbook indexes.
func (wb *Workbook) Provider() model.Provider { return wb.provider }

// Refs returns every item reference in stable order: sheets sorted by name,
// rows in file order. Callers must not mutate the returned slice.
func (wb *Workbook) Refs() []model.ItemReference { return wb.refs }

// ItemByRef resolves a reference to its full item.
func (wb *Workbook) ItemByRef(ref model.ItemReference) (*Item, error) {
	s, ok := wb.sheets[ref.Sheet]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", ref, common.ErrNotFound)
	}
	item := s.itemByID(ref.ID)
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", ref, common.ErrNotFound)
	}
	return item, nil
}

// ItemByID looks an item up by its provider-assigned id across both sheets,
// returning nil when absent.
func (wb *Workbook) ItemByID(id int) *Item {
	ref, ok := wb.idToRef[id]
	if !ok {
		return nil
	}
	item, err := wb.ItemByRef(ref)
	if err != nil {
		return nil
	}
	return item
}

// ItemByCode looks an item up by product code across both sheets, returning
// nil when absent.
func (wb *Workbook) ItemByCode(code string) *Item {
	ref, ok := wb.codeToRef[code]
	if !ok {
		return nil
	}
	item, err := wb.ItemByRef(ref)
	if err != nil {
		return nil
	}
	return item
}

// Set groups every provider's workbook for a run and resolves references
// across providers.
type Set struct {
	workbooks map[model.Provider]*Workbook
}

// NewSet builds a set from already-loaded workbooks.
func NewSet(workbooks map[model.Provider]*Workbook) *Set {
	return &Set{workbooks: workbooks}
}

// LoadSet loads every provider's workbook from the given paths.
func LoadSet(paths map[model.Provider]string) (*Set, error) {
	workbooks := make(map[model.Provider]*Workbook, len(paths))
	for _, provider := range model.Providers() {
		path, ok := paths[provider]
		if !ok {
			return nil, fmt.Errorf("%w: workbook path for provider %s", common.ErrMissingConfig, provider)
		}
		wb, err := LoadWorkbook(provider, path)
		if err != nil {
			return nil, err
		}
		workbooks[provider] = wb
	}
	return NewSet(workbooks), nil
}

// Workbook returns the index for one provider, or nil when unknown.
func (s *Set) Workbook(provider model.Provider) *Workbook {
	return s.workbooks[provider]
}

// ItemByRef resolves a reference against its provider's workbook.
func (s *Set) ItemByRef(ref model.ItemReference) (*Item, error) {
	wb := s.Workbook(ref.Provider)
	if wb == nil {
		return nil, fmt.Errorf("workbook for %s: %w", ref.Provider, common.ErrNotFound)
	}
	return wb.ItemByRef(ref)
}

// Items resolves a list of references, failing on the first unresolvable one.
func (s *Set) Items(refs []model.ItemReference) ([]*Item, error) {
	items := make([]*Item, 0, len(refs))
	for _, ref := range refs {
		item, err := s.ItemByRef(ref)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
