package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseJSON(t *testing.T) {
	content := `{
		"tax_category": "Digital Services",
		"refund_basis": "Multistate benefit",
		"methodology": "MPU",
		"decision": "Add to Claim",
		"confidence": 92,
		"citation": "34 TAC 3.330(f)",
		"reasoning": "Hosting consumed across multiple states."
	}`

	resp, err := parseResponse(content)
	require.NoError(t, err)

	assert.Equal(t, "Digital Services", resp.TaxCategory)
	assert.Equal(t, "MPU", resp.Methodology)
	assert.Equal(t, "Add to Claim", resp.Decision)
	assert.Equal(t, 92, resp.Confidence)
	assert.Equal(t, "34 TAC 3.330(f)", resp.Citation)
}

func TestParseResponseMarkdownWrapped(t *testing.T) {
	content := "```json\n{\"tax_category\": \"Training & Testing\", \"decision\": \"Add to Claim\", \"confidence\": 0.88}\n```"

	resp, err := parseResponse(content)
	require.NoError(t, err)

	assert.Equal(t, "Training & Testing", resp.TaxCategory)
	// Fractional confidence is treated as a ratio.
	assert.Equal(t, 88, resp.Confidence)
}

func TestParseResponseLabeledFallback(t *testing.T) {
	content := `TAX_CATEGORY: Construction
REFUND_BASIS: Lump-sum contract treatment
METHODOLOGY: Contract Review
DECISION: Needs Review
CONFIDENCE: 75%
CITATION: 34 TAC 3.291
REASONING: Contract terms not visible on the invoice.`

	resp, err := parseResponse(content)
	require.NoError(t, err)

	assert.Equal(t, "Construction", resp.TaxCategory)
	assert.Equal(t, "Needs Review", resp.Decision)
	assert.Equal(t, 75, resp.Confidence)
	assert.Equal(t, "34 TAC 3.291", resp.Citation)
}

func TestParseResponseUnparsable(t *testing.T) {
	_, err := parseResponse("I am not sure about this one.")
	require.Error(t, err)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 92, clampConfidence(92))
	assert.Equal(t, 92, clampConfidence(0.92))
	assert.Equal(t, 100, clampConfidence(250))
	assert.Equal(t, 0, clampConfidence(-3))
}
