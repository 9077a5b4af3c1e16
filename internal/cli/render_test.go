package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		want  string
	}{
		{"zero", 0, "$0.00"},
		{"whole dollars", 500_000, "$5000.00"},
		{"with cents", 8_250, "$82.50"},
		{"single cent", 1, "$0.01"},
		{"negative", -1_050, "-$10.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(tt.cents))
		})
	}
}

func TestRenderReviewQueue(t *testing.T) {
	rows := []model.TransactionRow{
		{
			ID:              "row-1",
			Vendor:          "Nimbus Cloud",
			TaxCategory:     "Digital Services",
			FinalDecision:   model.DecisionNeedsReview,
			Confidence:      65,
			EstimatedRefund: 8_250,
		},
	}

	out := RenderReviewQueue(rows)
	assert.Contains(t, out, "Nimbus Cloud")
	assert.Contains(t, out, "Digital Services")
	assert.Contains(t, out, "$82.50")
	assert.Contains(t, out, "1 row(s) awaiting review")
}

func TestRenderReviewQueueEmpty(t *testing.T) {
	out := RenderReviewQueue(nil)
	assert.Contains(t, out, "Nothing awaiting review")
}

func TestRenderProfile(t *testing.T) {
	pct := 0.38
	p := &model.VendorProfile{
		VendorKey:           "NIMBUS CLOUD",
		TotalRows:           5,
		DominantCategory:    model.DominantValue{Value: "Digital Services", Count: 4},
		DominantMethodology: model.DominantValue{Value: "MPU", Count: 5},
		MethodologyMix: map[string]model.MethodologyStats{
			"MPU": {Count: 5, AveragePct: &pct},
		},
		FewShotExamples: []model.FewShotExample{{Description: "SaaS subscription"}},
	}

	out := RenderProfile(p)
	assert.Contains(t, out, "NIMBUS CLOUD")
	assert.Contains(t, out, "Digital Services")
	assert.Contains(t, out, "avg allocation 38%")
	assert.Contains(t, out, "1 few-shot example(s)")
}

func TestRenderCompletionStats(t *testing.T) {
	out := RenderCompletionStats(service.CompletionStats{
		TotalRows:        10,
		ClassifiedByRule: 5,
		ClassifiedByAI:   2,
		NeedsReview:      2,
		Unprocessed:      1,
		Duration:         1500 * time.Millisecond,
	})

	assert.Contains(t, out, "Total rows:        10")
	assert.Contains(t, out, "Unprocessed")
	assert.Contains(t, out, "1.5s")
}
