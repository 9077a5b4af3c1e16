package gate

import (
	"testing"

	"github.com/refundworks/refundflow/internal/columns"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	reg, err := columns.NewRegistry(columns.DefaultLayout())
	require.NoError(t, err)
	return New(reg)
}

func testRow() *model.TransactionRow {
	return &model.TransactionRow{
		ID:            "row-1",
		Vendor:        "Acme Corp",
		InvoiceNumber: "INV-100",
		Description:   "software hosting services",
		Subtotal:      100000,
		TaxAmount:     8750,
		Total:         108750,
		FinalDecision: model.DecisionNeedsReview,
		Confidence:    65,
	}
}

func TestEvaluateNewRow(t *testing.T) {
	g := newTestGate(t)
	row := testRow()

	result := g.Evaluate(row, nil, nil)

	assert.True(t, result.NeedsReanalysis)
	assert.Empty(t, result.EditedFields)
	assert.Equal(t, "Acme Corp", result.Snapshot["vendor"])
}

func TestEvaluateInputChange(t *testing.T) {
	g := newTestGate(t)
	row := testRow()
	snapshot := g.InputSnapshot(row)

	// Scenario B: invoice_file_reference changes from empty to a value.
	row.PrimaryFileRef = "inv123.pdf"

	result := g.Evaluate(row, snapshot, OutputValues(row))

	assert.True(t, result.NeedsReanalysis)
	assert.Equal(t, "inv123.pdf", result.Snapshot["invoice_file_reference"])
}

func TestEvaluateOutputOnlyChange(t *testing.T) {
	g := newTestGate(t)
	row := testRow()
	snapshot := g.InputSnapshot(row)
	prevOutputs := OutputValues(row)

	// Scenario C: analyst flips the decision, no INPUT change.
	row.FinalDecision = model.DecisionDoNotAdd

	result := g.Evaluate(row, snapshot, prevOutputs)

	assert.False(t, result.NeedsReanalysis)
	assert.Equal(t, []model.Field{model.FieldFinalDecision}, result.EditedFields)
}

func TestEvaluateNoChange(t *testing.T) {
	g := newTestGate(t)
	row := testRow()
	snapshot := g.InputSnapshot(row)

	result := g.Evaluate(row, snapshot, OutputValues(row))

	assert.False(t, result.NeedsReanalysis)
	assert.Empty(t, result.EditedFields)
}

func TestEvaluateMultipleAnalystEdits(t *testing.T) {
	g := newTestGate(t)
	row := testRow()
	snapshot := g.InputSnapshot(row)
	prevOutputs := OutputValues(row)

	row.FinalDecision = model.DecisionAddToClaim
	row.Notes = "verified against invoice"

	result := g.Evaluate(row, snapshot, prevOutputs)

	assert.False(t, result.NeedsReanalysis)
	assert.ElementsMatch(t,
		[]model.Field{model.FieldFinalDecision, model.FieldNotes},
		result.EditedFields)
}

func TestInputChangeWinsOverOutputChange(t *testing.T) {
	g := newTestGate(t)
	row := testRow()
	snapshot := g.InputSnapshot(row)
	prevOutputs := OutputValues(row)

	// Both an INPUT and an OUTPUT moved: re-analysis governs, edits are not
	// reported because the OUTPUT drift may be stale against the new inputs.
	row.TaxAmount = 9000
	row.FinalDecision = model.DecisionDoNotAdd

	result := g.Evaluate(row, snapshot, prevOutputs)

	assert.True(t, result.NeedsReanalysis)
	assert.Empty(t, result.EditedFields)
}
