package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	response Response
	err      error
	calls    int
}

func (s *stubClient) Classify(_ context.Context, _ string) (Response, error) {
	s.calls++
	if s.err != nil {
		return Response{}, s.err
	}
	return s.response, nil
}

func testRow() *model.TransactionRow {
	return &model.TransactionRow{
		ID:          "row-1",
		Vendor:      "Acme Corp",
		Description: "annual SaaS subscription renewal",
		Subtotal:    100_000,
		TaxAmount:   8_250,
		Total:       108_250,
	}
}

func TestRefine(t *testing.T) {
	stub := &stubClient{response: Response{
		TaxCategory: "Digital Services",
		RefundBasis: "Multistate benefit",
		Methodology: "MPU",
		Decision:    "Add to Claim",
		Confidence:  92,
		Citation:    "34 TAC 3.330(f)",
	}}
	classifier := NewClassifierWithClient(stub, slog.Default())
	defer func() { _ = classifier.Close() }()

	resp, err := classifier.Refine(context.Background(), testRow(), model.ClassificationResult{RuleName: "digital-hosting"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Digital Services", resp.TaxCategory)
	assert.Equal(t, 92, resp.Confidence)
	assert.Equal(t, 1, stub.calls)
}

func TestRefineServiceError(t *testing.T) {
	stub := &stubClient{err: errors.New("upstream 500")}
	classifier := NewClassifierWithClient(stub, slog.Default())
	defer func() { _ = classifier.Close() }()

	_, err := classifier.Refine(context.Background(), testRow(), model.ClassificationResult{}, nil)
	require.Error(t, err)
}

func TestRefineInvalidDecision(t *testing.T) {
	stub := &stubClient{response: Response{
		TaxCategory: "Digital Services",
		Decision:    "Probably Fine",
		Confidence:  92,
	}}
	classifier := NewClassifierWithClient(stub, slog.Default())
	defer func() { _ = classifier.Close() }()

	_, err := classifier.Refine(context.Background(), testRow(), model.ClassificationResult{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrClassificationFailed)
	assert.Contains(t, err.Error(), "invalid decision")
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want model.Decision
		ok   bool
	}{
		{"Add to Claim", model.DecisionAddToClaim, true},
		{"add_to_claim", model.DecisionAddToClaim, true},
		{"DO NOT ADD", model.DecisionDoNotAdd, true},
		{" needs review ", model.DecisionNeedsReview, true},
		{"approve", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDecision(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestBuildRefinePromptIncludesFewShots(t *testing.T) {
	profile := &model.VendorProfile{
		VendorKey: "ACME",
		FewShotExamples: []model.FewShotExample{
			{
				Description: "monthly hosting fee",
				TaxCategory: "Digital Services",
				RefundBasis: "Multistate benefit",
				Methodology: "MPU",
				Decision:    model.DecisionAddToClaim,
			},
		},
	}

	prompt := buildRefinePrompt(testRow(), model.ClassificationResult{RuleName: "digital-hosting", TaxCategory: "Digital Services"}, profile)

	assert.Contains(t, prompt, "monthly hosting fee")
	assert.Contains(t, prompt, "Preliminary rule match: digital-hosting")
	assert.Contains(t, prompt, "Subtotal: $1000.00")
}
