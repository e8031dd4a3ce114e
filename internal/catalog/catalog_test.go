package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/homexhq/catalog-merge/internal/common"
	"github.com/homexhq/catalog-merge/internal/model"
)

var testHeader = []string{"Id", "Code", "Category.ID", "Category.Name", "IsInventory", "Name", "Description", "Intacct GL Group", "UnitOfMeasure", "Cost"}

func testRows(rows ...[]string) [][]string {
	return append([][]string{testHeader}, rows...)
}

func emptySheet() [][]string {
	return [][]string{testHeader}
}

func mustWorkbook(t *testing.T, provider model.Provider, rowsBySheet map[model.SheetName][][]string) *Workbook {
	t.Helper()
	wb, err := NewWorkbook(provider, rowsBySheet)
	require.NoError(t, err)
	return wb
}

func TestNewWorkbookIndexesItems(t *testing.T) {
	wb := mustWorkbook(t, model.ProviderHaller, map[model.SheetName][][]string{
		model.SheetEquipment: testRows(
			[]string{"10", "EQ-1", "c1", "Compressors", "1", "Compressor 2HP", "Two horsepower compressor", "EQUIP", "EA", "450.00"},
		),
		model.SheetMaterials: testRows(
			[]string{"1", "X100", "c2", "Fittings", "0", "Elbow 1/2in", "Copper elbow", "MAT", "EA", "1.25"},
			[]string{"2", "X200", "c2", "Fittings", "1", "Tee 1/2in", "Copper tee", "MAT", "EA", "1.75"},
		),
	})

	// Equipment sorts before Materials, rows keep file order.
	refs := wb.Refs()
	require.Len(t, refs, 3)
	assert.Equal(t, model.ItemReference{Provider: model.ProviderHaller, Sheet: model.SheetEquipment, ID: 10}, refs[0])
	assert.Equal(t, model.ItemReference{Provider: model.ProviderHaller, Sheet: model.SheetMaterials, ID: 1}, refs[1])
	assert.Equal(t, model.ItemReference{Provider: model.ProviderHaller, Sheet: model.SheetMaterials, ID: 2}, refs[2])

	item, err := wb.ItemByRef(refs[1])
	require.NoError(t, err)
	assert.Equal(t, "X100", item.Code())
	assert.Equal(t, "Elbow 1/2in", item.Get("Name"))

	byID := wb.ItemByID(2)
	require.NotNil(t, byID)
	assert.Equal(t, "X200", byID.Code())

	byCode := wb.ItemByCode("EQ-1")
	require.NotNil(t, byCode)
	assert.Equal(t, 10, byCode.ID())
	assert.Equal(t, model.SheetEquipment, byCode.Sheet())

	assert.Nil(t, wb.ItemByID(999))
	assert.Nil(t, wb.ItemByCode("nope"))

	_, err = wb.ItemByRef(model.ItemReference{Provider: model.ProviderHaller, Sheet: model.SheetMaterials, ID: 999})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNewWorkbookLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		rows    map[model.SheetName][][]string
		wantErr error
	}{
		{
			name: "duplicate id within sheet",
			rows: map[model.SheetName][][]string{
				model.SheetEquipment: emptySheet(),
				model.SheetMaterials: testRows(
					[]string{"1", "A", "", "", "", "", "", "", "", ""},
					[]string{"1", "B", "", "", "", "", "", "", "", ""},
				),
			},
			wantErr: common.ErrDuplicateEntry,
		},
		{
			name: "duplicate code within sheet",
			rows: map[model.SheetName][][]string{
				model.SheetEquipment: emptySheet(),
				model.SheetMaterials: testRows(
					[]string{"1", "A", "", "", "", "", "", "", "", ""},
					[]string{"2", "A", "", "", "", "", "", "", "", ""},
				),
			},
			wantErr: common.ErrDuplicateEntry,
		},
		{
			name: "duplicate id across sheets",
			rows: map[model.SheetName][][]string{
				model.SheetEquipment: testRows([]string{"1", "EQ", "", "", "", "", "", "", "", ""}),
				model.SheetMaterials: testRows([]string{"1", "MAT", "", "", "", "", "", "", "", ""}),
			},
			wantErr: common.ErrDuplicateEntry,
		},
		{
			name: "missing id",
			rows: map[model.SheetName][][]string{
				model.SheetEquipment: emptySheet(),
				model.SheetMaterials: testRows([]string{"", "A", "", "", "", "", "", "", "", ""}),
			},
			wantErr: common.ErrMissingField,
		},
		{
			name: "missing code",
			rows: map[model.SheetName][][]string{
				model.SheetEquipment: emptySheet(),
				model.SheetMaterials: testRows([]string{"1", "", "", "", "", "", "", "", "", ""}),
			},
			wantErr: common.ErrMissingField,
		},
		{
			name: "missing sheet",
			rows: map[model.SheetName][][]string{
				model.SheetMaterials: emptySheet(),
			},
			wantErr: common.ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorkbook(model.ProviderGem, tt.rows)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestItemOutput(t *testing.T) {
	wb := mustWorkbook(t, model.ProviderGem, map[model.SheetName][][]string{
		model.SheetEquipment: emptySheet(),
		model.SheetMaterials: testRows(
			[]string{"5", "P50", "9", "Pipe", "1", "Pipe 3/4in", "PVC pipe", "MAT", "FT", "2.50"},
		),
	})

	item := wb.ItemByID(5)
	require.NotNil(t, item)

	tier := model.MatchStrongLLM
	out := item.Output(&tier)
	assert.Equal(t, &tier, out.MatchType)
	assert.Equal(t, "9", out.CategoryID)
	assert.Equal(t, "Pipe", out.CategoryName)
	assert.True(t, out.IsInventory)
	assert.Equal(t, 5, out.ID)
	assert.Equal(t, "P50", out.Code)
	assert.Equal(t, "FT", out.UnitOfMeasure)
	assert.InDelta(t, 2.50, out.Cost, 0.0001)

	anchor := item.Output(nil)
	assert.Nil(t, anchor.MatchType)
}

func TestLoadWorkbookFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gem.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Materials"))
	_, err := f.NewSheet("Equipment")
	require.NoError(t, err)

	writeRow := func(sheetName string, row int, values []string) {
		cell, cellErr := excelize.CoordinatesToCellName(1, row)
		require.NoError(t, cellErr)
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		require.NoError(t, f.SetSheetRow(sheetName, cell, &cells))
	}

	writeRow("Materials", 1, testHeader)
	writeRow("Materials", 2, []string{"55", "X100", "c1", "Fittings", "1", "Elbow", "Copper elbow", "MAT", "EA", "1.10"})
	writeRow("Equipment", 1, testHeader)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	wb, err := LoadWorkbook(model.ProviderGem, path)
	require.NoError(t, err)
	require.Len(t, wb.Refs(), 1)

	item := wb.ItemByCode("X100")
	require.NotNil(t, item)
	assert.Equal(t, 55, item.ID())
	assert.Equal(t, "Elbow", item.Get("Name"))
}

func TestSetResolvesAcrossProviders(t *testing.T) {
	haller := mustWorkbook(t, model.ProviderHaller, map[model.SheetName][][]string{
		model.SheetEquipment: emptySheet(),
		model.SheetMaterials: testRows([]string{"1", "H1", "", "", "", "", "", "", "", ""}),
	})
	gem := mustWorkbook(t, model.ProviderGem, map[model.SheetName][][]string{
		model.SheetEquipment: emptySheet(),
		model.SheetMaterials: testRows([]string{"2", "G1", "", "", "", "", "", "", "", ""}),
	})

	set := NewSet(map[model.Provider]*Workbook{
		model.ProviderHaller: haller,
		model.ProviderGem:    gem,
	})

	items, err := set.Items([]model.ItemReference{
		{Provider: model.ProviderHaller, Sheet: model.SheetMaterials, ID: 1},
		{Provider: model.ProviderGem, Sheet: model.SheetMaterials, ID: 2},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "H1", items[0].Code())
	assert.Equal(t, "G1", items[1].Code())

	_, err = set.ItemByRef(model.ItemReference{Provider: model.ProviderUniverse, Sheet: model.SheetMaterials, ID: 1})
	assert.ErrorIs(t, err, common.ErrNotFound)
}
