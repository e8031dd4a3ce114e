package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/service"
)

var testHeader = []string{"Id", "Code", "Category.ID", "Category.Name", "IsInventory", "Name", "Description", "Intacct GL Group", "UnitOfMeasure", "Cost"}

func testRows(rows ...[]string) [][]string {
	return append([][]string{testHeader}, rows...)
}

func testRow(id, code, name string) []string {
	return []string{id, code, "c1", "Fittings", "1", name, name + " description", "MAT", "EA", "2.50"}
}

// testSet builds a four-provider catalog with haller as the reference. The
// gem workbook's M-100 duplicates a reference code so the exact-code stage
// has something to hit. Equipment sheets stay empty; the fixtures only need
// materials.
func testSet(t *testing.T) *catalog.Set {
	t.Helper()
	workbooks := map[model.Provider]*catalog.Workbook{}
	for provider, rows := range map[model.Provider]map[model.SheetName][][]string{
		model.ProviderHaller: {
			model.SheetEquipment: testRows(),
			model.SheetMaterials: testRows(
				testRow("1", "M-100", "Elbow 1/2in"),
				testRow("2", "M-200", "Tee 1/2in"),
				testRow("3", "M-300", "Coupling 3/4in"),
			),
		},
		model.ProviderGem: {
			model.SheetEquipment: testRows(),
			model.SheetMaterials: testRows(
				testRow("1", "M-100", "Elbow 1/2in"),
				testRow("2", "G-200", "Tee half inch"),
			),
		},
		model.ProviderUniverse: {
			model.SheetEquipment: testRows(),
			model.SheetMaterials: testRows(
				testRow("7", "U-700", "Ball valve 1in"),
			),
		},
		model.ProviderWeltmanPrinceton: {
			model.SheetEquipment: testRows(),
			model.SheetMaterials: testRows(
				testRow("4", "W-400", "Gate valve 1in"),
			),
		},
	} {
		wb, err := catalog.NewWorkbook(provider, rows)
		require.NoError(t, err)
		workbooks[provider] = wb
	}
	return catalog.NewSet(workbooks)
}

func mustItem(t *testing.T, set *catalog.Set, provider model.Provider, id int) *catalog.Item {
	t.Helper()
	item, err := set.ItemByRef(model.ItemReference{Provider: provider, Sheet: model.SheetMaterials, ID: id})
	require.NoError(t, err)
	return item
}

func ref(provider model.Provider, id int) model.ItemReference {
	return model.ItemReference{Provider: provider, Sheet: model.SheetMaterials, ID: id}
}

func strongResult(provider model.Provider, id int, code string) service.MatchResult {
	return service.MatchResult{
		Tier:      service.TierStrongMatch,
		Item:      &service.MatchProposal{Provider: provider, ID: id, Code: code},
		Reasoning: "same item",
	}
}

func noMatchResult() service.MatchResult {
	return service.MatchResult{Tier: service.TierNoMatch, Reasoning: "nothing comparable"}
}

type matchCall struct {
	refs  []*catalog.Item
	query *catalog.Item
}

// mockMatcher replays canned results in order and records every call.
type mockMatcher struct {
	results   []service.MatchResult
	errs      []error
	calls     []matchCall
	followups []matchCall
}

func (m *mockMatcher) next() (service.MatchResult, error) {
	idx := len(m.calls) + len(m.followups) - 1
	var err error
	if idx < len(m.errs) {
		err = m.errs[idx]
	}
	if err != nil {
		return service.MatchResult{}, err
	}
	if idx < len(m.results) {
		return m.results[idx], nil
	}
	return noMatchResult(), nil
}

func (m *mockMatcher) GenerateMatch(_ context.Context, refs []*catalog.Item, query *catalog.Item) (service.MatchResult, error) {
	m.calls = append(m.calls, matchCall{refs: refs, query: query})
	return m.next()
}

func (m *mockMatcher) GenerateFollowup(_ context.Context, refs []*catalog.Item, query *catalog.Item, _ service.MatchResult) (service.MatchResult, error) {
	m.followups = append(m.followups, matchCall{refs: refs, query: query})
	return m.next()
}

// mockFilter returns a fixed candidate list and records the scopes it was
// asked to search within, keyed by query.
type mockFilter struct {
	refs   []model.ItemReference
	scopes map[model.ItemReference][][]service.Scope
}

func (m *mockFilter) RelevantItems(_ context.Context, query model.ItemReference, scopes []service.Scope, _ int) ([]model.ItemReference, error) {
	if m.scopes == nil {
		m.scopes = map[model.ItemReference][][]service.Scope{}
	}
	m.scopes[query] = append(m.scopes[query], scopes)
	return m.refs, nil
}

// mockStore keeps the ledger in memory and counts saves.
type mockStore struct {
	records  []model.MatchRecord
	saves    [][]model.MatchRecord
	revisits []model.ItemReference
	loadErr  error
	saveErr  error
}

func (m *mockStore) Load() ([]model.MatchRecord, error) {
	return m.records, m.loadErr
}

func (m *mockStore) Save(records []model.MatchRecord) error {
	saved := make([]model.MatchRecord, len(records))
	copy(saved, records)
	m.saves = append(m.saves, saved)
	return m.saveErr
}

func (m *mockStore) AppendRevisit(r model.ItemReference) error {
	m.revisits = append(m.revisits, r)
	return nil
}

// mockNotifier records notifications.
type mockNotifier struct {
	titles   []string
	messages []string
}

func (m *mockNotifier) Notify(_ context.Context, title, message string) {
	m.titles = append(m.titles, title)
	m.messages = append(m.messages, message)
}
