package model

import "fmt"

// MatchType classifies how a query item was reconciled against the master
// list.
type MatchType string

// Match tiers, from cheapest to least confident. The string values are the
// checkpoint wire tags and must not change.
const (
	MatchExactCode MatchType = "exact_code"
	MatchStrongLLM MatchType = "strong_llm"
	MatchHazyLLM   MatchType = "hazy_llm"
	MatchNone      MatchType = "no_match"
)

// ParseMatchType validates a tag read from a checkpoint file.
func ParseMatchType(s string) (MatchType, error) {
	switch MatchType(s) {
	case MatchExactCode, MatchStrongLLM, MatchHazyLLM, MatchNone:
		return MatchType(s), nil
	}
	return "", fmt.Errorf("unknown match type: %q", s)
}

// MatchRecord is one classified decision for a single query item. A completed
// ledger holds exactly one record per query reference. Match is nil if and
// only if Type is MatchNone; use the constructors to keep that invariant.
type MatchRecord struct {
	Type  MatchType      `json:"type"`
	Query ItemReference  `json:"query"`
	Match *ItemReference `json:"match,omitempty"`
}

// NewExactCodeMatch records a byte-identical product-code hit against the
// reference catalog.
func NewExactCodeMatch(query, match ItemReference) MatchRecord {
	return MatchRecord{Type: MatchExactCode, Query: query, Match: &match}
}

// NewStrongLLMMatch records a high-confidence semantic match.
func NewStrongLLMMatch(query, match ItemReference) MatchRecord {
	return MatchRecord{Type: MatchStrongLLM, Query: query, Match: &match}
}

// NewHazyLLMMatch records a lower-confidence semantic match.
func NewHazyLLMMatch(query, match ItemReference) MatchRecord {
	return MatchRecord{Type: MatchHazyLLM, Query: query, Match: &match}
}

// NewNoMatch records that no corresponding master-list item exists; the query
// becomes a candidate reference for providers processed later in the run.
func NewNoMatch(query ItemReference) MatchRecord {
	return MatchRecord{Type: MatchNone, Query: query}
}

// IsMatch reports whether the record points at a master-list item.
func (r MatchRecord) IsMatch() bool {
	return r.Type != MatchNone
}

// Validate enforces the variant invariants after deserialization.
func (r MatchRecord) Validate() error {
	if _, err := ParseMatchType(string(r.Type)); err != nil {
		return err
	}
	if _, err := ParseProvider(string(r.Query.Provider)); err != nil {
		return fmt.Errorf("invalid query reference %s: %w", r.Query, err)
	}
	if _, err := ParseSheetName(string(r.Query.Sheet)); err != nil {
		return fmt.Errorf("invalid query reference %s: %w", r.Query, err)
	}
	if r.Type == MatchNone {
		if r.Match != nil {
			return fmt.Errorf("no_match record for %s must not carry a match", r.Query)
		}
		return nil
	}
	if r.Match == nil {
		return fmt.Errorf("%s record for %s is missing its match", r.Type, r.Query)
	}
	if _, err := ParseProvider(string(r.Match.Provider)); err != nil {
		return fmt.Errorf("invalid match reference %s: %w", *r.Match, err)
	}
	if _, err := ParseSheetName(string(r.Match.Sheet)); err != nil {
		return fmt.Errorf("invalid match reference %s: %w", *r.Match, err)
	}
	return nil
}
