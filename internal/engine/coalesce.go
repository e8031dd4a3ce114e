package engine

import (
	"fmt"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/model"
)

// CoalescePolicy selects how multiple matches from the same provider onto
// one anchor item are laid out.
type CoalescePolicy string

const (
	// CollapseFirst keeps only the first match per provider, one row per anchor.
	CollapseFirst CoalescePolicy = "collapse"
	// FanOut emits one row per match combination index, repeating the anchor.
	FanOut CoalescePolicy = "fanout"
)

// ParseCoalescePolicy converts a config string into a CoalescePolicy.
func ParseCoalescePolicy(s string) (CoalescePolicy, error) {
	switch CoalescePolicy(s) {
	case CollapseFirst, FanOut:
		return CoalescePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown coalesce policy %q", s)
	}
}

// Cell is one provider's slot in a report row. A nil MatchType marks the
// row's anchor item.
type Cell struct {
	Ref  model.ItemReference
	Type *model.MatchType
}

// Row maps each provider with content to its cell. Providers absent from the
// map render as empty in the report.
type Row map[model.Provider]*Cell

// Coalescer folds a completed ledger into report rows: every item appears in
// exactly one row, either as an anchor or as a match onto one.
type Coalescer struct {
	set       *catalog.Set
	reference model.Provider
	policy    CoalescePolicy
}

// NewCoalescer builds a Coalescer for a loaded catalog set.
func NewCoalescer(set *catalog.Set, reference model.Provider, policy CoalescePolicy) *Coalescer {
	return &Coalescer{set: set, reference: reference, policy: policy}
}

// Rows produces the report rows for a ledger. Anchors are the reference
// provider's items followed by every other provider's unmatched items, in
// provider order.
func (c *Coalescer) Rows(ledger []model.MatchRecord) []Row {
	clusters := clusterByTarget(ledger)
	recordByQuery := make(map[model.ItemReference]model.MatchRecord, len(ledger))
	for _, record := range ledger {
		recordByQuery[record.Query] = record
	}

	var rows []Row
	for _, provider := range c.anchorOrder() {
		for _, ref := range c.set.Workbook(provider).Refs() {
			if record, ok := recordByQuery[ref]; ok && record.Type != model.MatchNone {
				continue
			}
			rows = append(rows, c.anchorRows(ref, clusters[ref])...)
		}
	}
	return rows
}

// anchorOrder is the reference provider followed by the rest in fixed order.
func (c *Coalescer) anchorOrder() []model.Provider {
	order := []model.Provider{c.reference}
	for _, provider := range model.Providers() {
		if provider != c.reference {
			order = append(order, provider)
		}
	}
	return order
}

// anchorRows expands one anchor and its matches per the coalesce policy.
func (c *Coalescer) anchorRows(anchor model.ItemReference, matches []model.MatchRecord) []Row {
	grouped := make(map[model.Provider][]model.MatchRecord)
	depth := 1
	for _, record := range matches {
		provider := record.Query.Provider
		grouped[provider] = append(grouped[provider], record)
		if c.policy == FanOut && len(grouped[provider]) > depth {
			depth = len(grouped[provider])
		}
	}

	rows := make([]Row, 0, depth)
	for i := 0; i < depth; i++ {
		row := Row{anchor.Provider: {Ref: anchor}}
		for provider, records := range grouped {
			if i >= len(records) {
				continue
			}
			record := records[i]
			matchType := record.Type
			row[provider] = &Cell{Ref: record.Query, Type: &matchType}
		}
		rows = append(rows, row)
	}
	return rows
}

// clusterByTarget groups ledger records by matched item, preserving ledger
// order within each cluster.
func clusterByTarget(ledger []model.MatchRecord) map[model.ItemReference][]model.MatchRecord {
	clusters := make(map[model.ItemReference][]model.MatchRecord)
	for _, record := range ledger {
		if record.Match == nil {
			continue
		}
		clusters[*record.Match] = append(clusters[*record.Match], record)
	}
	return clusters
}
