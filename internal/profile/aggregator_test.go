package profile

import (
	"fmt"
	"testing"

	"github.com/refundworks/refundflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedRow(vendor, category, basis, methodology, notes string) model.TransactionRow {
	return model.TransactionRow{
		Vendor:         vendor,
		Description:    "line item from " + vendor,
		TaxCategory:    category,
		RefundBasis:    basis,
		Methodology:    methodology,
		Notes:          notes,
		FinalDecision:  model.DecisionAddToClaim,
		HumanConfirmed: true,
	}
}

func TestRebuildDominantSelection(t *testing.T) {
	// Scenario D: 10 confirmed rows, 6 category A / 4 category B.
	var rows []model.TransactionRow
	for i := 0; i < 6; i++ {
		rows = append(rows, confirmedRow("ACME", "A", "basis-a", "MPU", ""))
	}
	for i := 0; i < 4; i++ {
		rows = append(rows, confirmedRow("ACME", "B", "basis-b", "MPU", ""))
	}

	profiles, errs := NewAggregator(DefaultConfig()).Rebuild(rows)
	require.Empty(t, errs)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, "ACME", p.VendorKey)
	assert.Equal(t, 10, p.TotalRows)
	assert.Equal(t, model.DominantValue{Value: "A", Count: 6}, p.DominantCategory)
	assert.Equal(t, 6, p.CategoryCounts["A"])
	assert.Equal(t, 4, p.CategoryCounts["B"])
}

func TestRebuildTieBreakFirstSeen(t *testing.T) {
	rows := []model.TransactionRow{
		confirmedRow("ACME", "B", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "B", "basis", "MPU", ""),
	}

	// 2-2 tie: B was seen first and must win, on every rebuild.
	for i := 0; i < 5; i++ {
		profiles, errs := NewAggregator(DefaultConfig()).Rebuild(rows)
		require.Empty(t, errs)
		require.Len(t, profiles, 1)
		assert.Equal(t, model.DominantValue{Value: "B", Count: 2}, profiles[0].DominantCategory)
	}

	// Reversed order flips the tie-break.
	reversed := []model.TransactionRow{rows[1], rows[0], rows[3], rows[2]}
	profiles, errs := NewAggregator(DefaultConfig()).Rebuild(reversed)
	require.Empty(t, errs)
	assert.Equal(t, "A", profiles[0].DominantCategory.Value)
}

func TestRebuildSkipsUnconfirmedRows(t *testing.T) {
	rows := []model.TransactionRow{
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
	}
	unconfirmed := confirmedRow("ACME", "B", "basis", "MPU", "")
	unconfirmed.HumanConfirmed = false
	rows = append(rows, unconfirmed, unconfirmed, unconfirmed, unconfirmed)

	profiles, errs := NewAggregator(DefaultConfig()).Rebuild(rows)
	require.Empty(t, errs)
	require.Len(t, profiles, 1)

	// Machine-guessed rows contribute nothing.
	assert.Equal(t, 3, profiles[0].TotalRows)
	assert.Zero(t, profiles[0].CategoryCounts["B"])
}

func TestRebuildMinRowsThreshold(t *testing.T) {
	rows := []model.TransactionRow{
		confirmedRow("SMALLCO", "A", "basis", "MPU", ""),
		confirmedRow("SMALLCO", "A", "basis", "MPU", ""),
		confirmedRow("BIGCO", "A", "basis", "MPU", ""),
		confirmedRow("BIGCO", "A", "basis", "MPU", ""),
		confirmedRow("BIGCO", "B", "basis", "MPU", ""),
	}

	profiles, errs := NewAggregator(Config{MinRows: 3, FewShotLimit: 5}).Rebuild(rows)
	require.Empty(t, errs)
	require.Len(t, profiles, 1)
	assert.Equal(t, "BIGCO", profiles[0].VendorKey)
}

func TestRebuildMethodologyMix(t *testing.T) {
	pct := func(v float64) *float64 { return &v }

	rows := []model.TransactionRow{
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "Direct Exclusion", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
	}
	rows[0].AllocationPct = pct(0.30)
	rows[1].AllocationPct = pct(0.46)
	rows[3].AllocationPct = pct(1.7) // out of range, ignored

	profiles, errs := NewAggregator(DefaultConfig()).Rebuild(rows)
	require.Empty(t, errs)
	require.Len(t, profiles, 1)

	mix := profiles[0].MethodologyMix
	require.Contains(t, mix, "MPU")
	require.NotNil(t, mix["MPU"].AveragePct)
	assert.InDelta(t, 0.38, *mix["MPU"].AveragePct, 1e-9)
	assert.Equal(t, 3, mix["MPU"].Count)

	// No recorded percentage leaves the average nil, never zero.
	require.Contains(t, mix, "Direct Exclusion")
	assert.Nil(t, mix["Direct Exclusion"].AveragePct)
}

func TestRebuildFewShotSelection(t *testing.T) {
	var rows []model.TransactionRow
	// Three (category, basis) groups of sizes 3, 2, 1. Within the largest
	// group the longest note should represent it.
	for i := 0; i < 3; i++ {
		row := confirmedRow("ACME", "A", "basis-a", "MPU", "")
		row.Notes = fmt.Sprintf("note %d", i)
		row.Description = fmt.Sprintf("group-a item %d", i)
		rows = append(rows, row)
	}
	rows[1].Notes = "this is the longest, most informative analyst note"
	for i := 0; i < 2; i++ {
		rows = append(rows, confirmedRow("ACME", "B", "basis-b", "MPU", "short"))
	}
	rows = append(rows, confirmedRow("ACME", "C", "basis-c", "MPU", ""))

	profiles, errs := NewAggregator(Config{MinRows: 3, FewShotLimit: 2}).Rebuild(rows)
	require.Empty(t, errs)
	require.Len(t, profiles, 1)

	examples := profiles[0].FewShotExamples
	require.Len(t, examples, 2)

	// Largest group first, represented by the longest note.
	assert.Equal(t, "A", examples[0].TaxCategory)
	assert.Equal(t, "this is the longest, most informative analyst note", examples[0].Notes)
	assert.Equal(t, "B", examples[1].TaxCategory)

	// Distinct (category, basis) pairs.
	pairs := map[string]bool{}
	for _, ex := range examples {
		pairs[ex.TaxCategory+"|"+ex.RefundBasis] = true
	}
	assert.Len(t, pairs, len(examples))
}

func TestRebuildVendorFailureDoesNotAbort(t *testing.T) {
	rows := []model.TransactionRow{
		// Empty vendor name normalizes to an empty key, which fails that
		// vendor's build.
		confirmedRow("", "A", "basis", "MPU", ""),
		confirmedRow("", "A", "basis", "MPU", ""),
		confirmedRow("", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
		confirmedRow("ACME", "A", "basis", "MPU", ""),
	}

	profiles, errs := NewAggregator(DefaultConfig()).Rebuild(rows)

	require.Len(t, errs, 1)
	require.Len(t, profiles, 1)
	assert.Equal(t, "ACME", profiles[0].VendorKey)
}

func TestRebuildGroupsByNormalizedVendor(t *testing.T) {
	rows := []model.TransactionRow{
		confirmedRow("Acme Corp.", "A", "basis", "MPU", ""),
		confirmedRow("ACME CORPORATION", "A", "basis", "MPU", ""),
		confirmedRow("acme, inc", "A", "basis", "MPU", ""),
	}

	profiles, errs := NewAggregator(DefaultConfig()).Rebuild(rows)
	require.Empty(t, errs)
	require.Len(t, profiles, 1)
	assert.Equal(t, "ACME", profiles[0].VendorKey)
	assert.Equal(t, 3, profiles[0].TotalRows)
}
