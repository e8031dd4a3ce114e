package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceYAMLRendering(t *testing.T) {
	items := testItems(t,
		[][]string{
			{"1", "M1", "", "Fittings", "", "Elbow", "Copper elbow", "", "", ""},
		},
		[][]string{
			{"10", "E1", "", "Compressors", "", "Compressor", "2HP compressor", "", "", "", "Rotary", "Acme", "AcmeCorp", "AC-200"},
		},
	)

	doc, err := ReferenceYAML(items)
	require.NoError(t, err)

	// Equipment entry carries its extra spec fields; the material does not.
	assert.Contains(t, doc, "Provider: haller")
	assert.Contains(t, doc, "Code: M1")
	assert.Contains(t, doc, "Brand: Acme")
	assert.Contains(t, doc, "Model: AC-200")
	assert.Contains(t, doc, "Category: Fittings")

	// Deterministic: identical input renders identically.
	again, err := ReferenceYAML(items)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestReferenceYAMLOmitsEmptyFields(t *testing.T) {
	items := testItems(t, [][]string{
		{"1", "M1", "", "", "", "", "", "", "", ""},
	}, nil)

	doc, err := ReferenceYAML(items)
	require.NoError(t, err)
	assert.NotContains(t, doc, "Category:")
	assert.NotContains(t, doc, "Description:")
	assert.NotContains(t, doc, "Brand:")
}

func TestQueryJSON(t *testing.T) {
	items := testItems(t, [][]string{
		{"5", "Q5", "", "", "", "Valve", "Ball valve 1in", "", "", ""},
	}, nil)

	doc, err := QueryJSON(items[0])
	require.NoError(t, err)
	assert.Contains(t, doc, `"Id": 5`)
	assert.Contains(t, doc, `"Code": "Q5"`)
	assert.Contains(t, doc, `"Name": "Valve"`)
	assert.Contains(t, doc, `"Description": "Ball valve 1in"`)
}

func TestEmbeddingText(t *testing.T) {
	items := testItems(t,
		[][]string{
			{"1", "M1", "", "Fittings", "", "Elbow", "Copper elbow", "", "", ""},
		},
		[][]string{
			{"10", "E1", "", "", "", "Compressor", "2HP", "", "", "", "", "Acme", "", ""},
		},
	)

	// Equipment first (sheet order), then materials.
	equipment := EmbeddingText(items[0])
	assert.Contains(t, equipment, "Category: N/A")
	assert.Contains(t, equipment, "Brand: Acme")
	assert.Contains(t, equipment, "Manufacturer: N/A")

	material := EmbeddingText(items[1])
	assert.Contains(t, material, "Category: Fittings")
	assert.Contains(t, material, "Code: M1")
	assert.NotContains(t, material, "Brand:")
}
