package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/homexhq/catalog-merge/internal/catalog"
	"github.com/homexhq/catalog-merge/internal/model"
	"github.com/homexhq/catalog-merge/internal/service"
)

const matchingPrompt = `Your goal is to consolidate inventory catalogs into an ongoing master list.
You will be prompted with a query item, and you must decide whether it corresponds to an existing entry in the master list or is a new item that should be added.

You will be provided with the following resources:
- TERMINOLOGY KEY: YAML document of standard terms and their alternative forms (when available)
- MASTER INVENTORY LIST: YAML document of all master inventory items
- QUERY ITEM: JSON object representing the item to be matched

Matching guidelines:
- ID fields are assigned independently by each provider; never compare IDs across providers
- Product codes may also appear inside other data fields that help identify or differentiate items
- Only compare product codes when their schemas/formats look similar
- When codes do not suggest a match, compare item type, function, brand, and specs
- Treat similar parts with different dimensions, even slightly different, as distinct items
- Never match to or from generic catch-all entries that name a whole class of items (e.g. just "Microwaves"); a generic query item gets no match
- Use the terminology key to normalize descriptions
- CRITICAL: when there is no corresponding entry, return a no_match response

Respond with a JSON object of one of these shapes:
- type "strong_match" with the best matching master-list entry, when product codes have an exact full or subset match and the remaining mutual specs agree
- type "hazy_match" with the best matching master-list entry, when no codes match exactly but the mutual specs generally agree
- type "no_match" with a null item, when shared codes of similar schemas disagree or the mutual specs do not match
Every response carries a brief "reasoning" explanation.

IMPORTANT: if you return a match, the item must exist verbatim in the provided master list; its provider, ID, and code must match that entry exactly.`

// promptItem is the YAML rendering of one master-list entry. Field order is
// fixed by the struct; empty optional fields are omitted.
type promptItem struct {
	Provider     string `yaml:"Provider"`
	ID           int    `yaml:"Id"`
	Code         string `yaml:"Code"`
	Category     string `yaml:"Category,omitempty"`
	Name         string `yaml:"Name,omitempty"`
	Description  string `yaml:"Description,omitempty"`
	Type         string `yaml:"Type,omitempty"`
	Brand        string `yaml:"Brand,omitempty"`
	Manufacturer string `yaml:"Manufacturer,omitempty"`
	Model        string `yaml:"Model,omitempty"`
}

// ReferenceYAML renders the candidate master-list items as a YAML document.
func ReferenceYAML(items []*catalog.Item) (string, error) {
	entries := make([]promptItem, 0, len(items))
	for _, item := range items {
		entry := promptItem{
			Provider:    string(item.Provider()),
			ID:          item.ID(),
			Code:        item.Code(),
			Category:    item.Get("Category.Name"),
			Name:        item.Get("Name"),
			Description: item.Get("Description"),
		}
		if item.Sheet() == model.SheetEquipment {
			entry.Type = item.Get("Type")
			entry.Brand = item.Get("Brand")
			entry.Manufacturer = item.Get("Manufacturer")
			entry.Model = item.Get("Model")
		}
		entries = append(entries, entry)
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("render reference list: %w", err)
	}
	return string(data), nil
}

// QueryJSON renders the query item as an indented JSON object.
func QueryJSON(item *catalog.Item) (string, error) {
	data, err := json.MarshalIndent(struct {
		ID          int    `json:"Id"`
		Code        string `json:"Code"`
		Name        string `json:"Name"`
		Description string `json:"Description"`
	}{
		ID:          item.ID(),
		Code:        item.Code(),
		Name:        item.Get("Name"),
		Description: item.Get("Description"),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render query item: %w", err)
	}
	return string(data), nil
}

// EmbeddingText renders the item fields embedded for semantic similarity.
// Equipment items carry their brand/manufacturer/model specifics.
func EmbeddingText(item *catalog.Item) string {
	valueOr := func(column, fallback string) string {
		if v := item.Get(column); v != "" {
			return v
		}
		return fallback
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Category: %s\n", valueOr("Category.Name", "N/A"))
	fmt.Fprintf(&sb, "Name: %s\n", item.Get("Name"))
	fmt.Fprintf(&sb, "Description: %s\n", item.Get("Description"))
	fmt.Fprintf(&sb, "Code: %s\n", item.Code())
	if item.Sheet() == model.SheetEquipment {
		fmt.Fprintf(&sb, "Brand: %s\n", valueOr("Brand", "N/A"))
		fmt.Fprintf(&sb, "Manufacturer: %s\n", valueOr("Manufacturer", "N/A"))
		fmt.Fprintf(&sb, "Model: %s\n", valueOr("Model", "N/A"))
	}
	return sb.String()
}

func (c *Client) matchContents(refs []*catalog.Item, query *catalog.Item) ([]contentNode, error) {
	referenceDoc, err := ReferenceYAML(refs)
	if err != nil {
		return nil, err
	}
	queryDoc, err := QueryJSON(query)
	if err != nil {
		return nil, err
	}

	contents := []contentNode{
		{Role: "user", Parts: []partNode{{Text: matchingPrompt}}},
	}
	if c.terminology != "" {
		contents = append(contents, contentNode{
			Role: "user",
			Parts: []partNode{
				{Text: "=== TERMINOLOGY KEY (YAML) ==="},
				{Text: c.terminology},
			},
		})
	}
	contents = append(contents,
		contentNode{
			Role: "user",
			Parts: []partNode{
				{Text: "=== MASTER INVENTORY LIST (YAML) ==="},
				{Text: referenceDoc},
			},
		},
		contentNode{
			Role: "user",
			Parts: []partNode{
				{Text: "=== QUERY ITEM (JSON) ==="},
				{Text: queryDoc},
			},
		},
	)
	return contents, nil
}

func (c *Client) followupContents(refs []*catalog.Item, query *catalog.Item, prev service.MatchResult) ([]contentNode, error) {
	contents, err := c.matchContents(refs, query)
	if err != nil {
		return nil, err
	}
	queryDoc, err := QueryJSON(query)
	if err != nil {
		return nil, err
	}
	prevDoc, err := json.MarshalIndent(prev, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render previous response: %w", err)
	}

	var proposal service.MatchProposal
	if prev.Item != nil {
		proposal = *prev.Item
	}
	instruction := fmt.Sprintf(`CRITICAL: The previous suggestion failed because the suggested item (Provider: %s, ID: %d, Code: %s) does not exist in the master list.

This means either:
1. The provider/ID and provider/code combinations are incorrect
2. The item was suggested but does not actually exist in the reference data

Re-evaluate the query item and find another match from the master list. CRITICAL criteria:
- Verify that the provider/ID/code combination all exist for that entry in the master list
- Return a different match from the master list, or no match otherwise

The query item you are matching is: %s`, proposal.Provider, proposal.ID, proposal.Code, queryDoc)

	contents = append(contents,
		contentNode{
			Role: "model",
			Parts: []partNode{
				{Text: "=== Previous Response ==="},
				{Text: string(prevDoc)},
			},
		},
		contentNode{
			Role:  "user",
			Parts: []partNode{{Text: instruction}},
		},
	)
	return contents, nil
}
