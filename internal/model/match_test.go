package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRecordConstructors(t *testing.T) {
	query := ItemReference{Provider: ProviderGem, Sheet: SheetMaterials, ID: 55}
	match := ItemReference{Provider: ProviderHaller, Sheet: SheetMaterials, ID: 1}

	tests := []struct {
		name      string
		record    MatchRecord
		wantType  MatchType
		wantMatch bool
	}{
		{"exact code", NewExactCodeMatch(query, match), MatchExactCode, true},
		{"strong llm", NewStrongLLMMatch(query, match), MatchStrongLLM, true},
		{"hazy llm", NewHazyLLMMatch(query, match), MatchHazyLLM, true},
		{"no match", NewNoMatch(query), MatchNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.record.Type)
			assert.Equal(t, query, tt.record.Query)
			assert.Equal(t, tt.wantMatch, tt.record.IsMatch())
			if tt.wantMatch {
				require.NotNil(t, tt.record.Match)
				assert.Equal(t, match, *tt.record.Match)
			} else {
				assert.Nil(t, tt.record.Match)
			}
			assert.NoError(t, tt.record.Validate())
		})
	}
}

func TestMatchRecordJSONRoundTrip(t *testing.T) {
	query := ItemReference{Provider: ProviderUniverse, Sheet: SheetEquipment, ID: 42}
	match := ItemReference{Provider: ProviderHaller, Sheet: SheetMaterials, ID: 7}

	ledger := []MatchRecord{
		NewExactCodeMatch(query, match),
		NewStrongLLMMatch(query, match),
		NewHazyLLMMatch(query, match),
		NewNoMatch(query),
	}

	data, err := json.Marshal(ledger)
	require.NoError(t, err)

	var decoded []MatchRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ledger, decoded)
}

func TestMatchRecordNoMatchOmitsMatchField(t *testing.T) {
	record := NewNoMatch(ItemReference{Provider: ProviderGem, Sheet: SheetMaterials, ID: 1})

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"match"`)
	assert.Contains(t, string(data), `"no_match"`)
}

func TestMatchRecordValidate(t *testing.T) {
	query := ItemReference{Provider: ProviderGem, Sheet: SheetMaterials, ID: 1}
	match := ItemReference{Provider: ProviderHaller, Sheet: SheetMaterials, ID: 2}

	tests := []struct {
		name    string
		record  MatchRecord
		wantErr bool
	}{
		{"valid strong match", NewStrongLLMMatch(query, match), false},
		{"valid no match", NewNoMatch(query), false},
		{"unknown type", MatchRecord{Type: "sorta_match", Query: query, Match: &match}, true},
		{"match tier without match", MatchRecord{Type: MatchStrongLLM, Query: query}, true},
		{"no_match with match", MatchRecord{Type: MatchNone, Query: query, Match: &match}, true},
		{"bad query provider", MatchRecord{Type: MatchNone, Query: ItemReference{Provider: "acme", Sheet: SheetMaterials, ID: 1}}, true},
		{"bad match sheet", MatchRecord{Type: MatchHazyLLM, Query: query, Match: &ItemReference{Provider: ProviderHaller, Sheet: "Tools", ID: 2}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProvidersOrder(t *testing.T) {
	providers := Providers()
	require.Len(t, providers, 4)
	assert.Equal(t, []Provider{
		ProviderGem,
		ProviderHaller,
		ProviderUniverse,
		ProviderWeltmanPrinceton,
	}, providers)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("haller")
	require.NoError(t, err)
	assert.Equal(t, ProviderHaller, p)

	_, err = ParseProvider("initech")
	assert.Error(t, err)
}
