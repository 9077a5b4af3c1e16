package engine

import (
	"sort"

	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/model"
)

// MergeResult reconciles a fresh classification with a row's human-edited
// provenance. Every edited field keeps its current row value; each blocked
// write is reported as a conflict. Storage re-checks the same guard inside
// the commit transaction, so a stale provenance map here can delay but never
// corrupt a row.
func MergeResult(row *model.TransactionRow, result model.ClassificationResult) (model.ClassificationResult, []*common.MergeConflictError) {
	var conflicts []*common.MergeConflictError

	keep := func(field model.Field, restore func()) {
		if !row.IsEdited(field) {
			return
		}
		restore()
		conflicts = append(conflicts, &common.MergeConflictError{RowID: row.ID, Field: field})
	}

	keep(model.FieldTaxCategory, func() { result.TaxCategory = row.TaxCategory })
	keep(model.FieldRefundBasis, func() { result.RefundBasis = row.RefundBasis })
	keep(model.FieldMethodology, func() { result.Methodology = row.Methodology })
	keep(model.FieldFinalDecision, func() { result.Decision = row.FinalDecision })
	keep(model.FieldConfidence, func() { result.Confidence = row.Confidence })
	keep(model.FieldEstimatedRefund, func() { result.EstimatedRefund = row.EstimatedRefund })
	keep(model.FieldCitation, func() { result.Citation = row.Citation })
	keep(model.FieldNotes, func() { result.Notes = row.Notes })

	return result, conflicts
}

// ConsolidateRows collapses line items that reference the same source invoice
// into one logical row for reporting: monetary fields sum, descriptive fields
// take the first non-empty value in original row order. Rows without an
// invoice reference pass through untouched.
func ConsolidateRows(rows []model.TransactionRow) []model.TransactionRow {
	ordered := make([]model.TransactionRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RowIndex < ordered[j].RowIndex
	})

	groups := make(map[string]int)
	var out []model.TransactionRow

	for _, row := range ordered {
		key := row.VendorKey() + "\x00" + row.InvoiceNumber
		if row.InvoiceNumber == "" {
			out = append(out, row)
			continue
		}

		idx, seen := groups[key]
		if !seen {
			groups[key] = len(out)
			out = append(out, row)
			continue
		}

		merged := &out[idx]
		merged.Subtotal += row.Subtotal
		merged.TaxAmount += row.TaxAmount
		merged.TaxRemitted += row.TaxRemitted
		merged.Total += row.Total
		merged.EstimatedRefund += row.EstimatedRefund

		fillEmpty(&merged.PONumber, row.PONumber)
		fillEmpty(&merged.PrimaryFileRef, row.PrimaryFileRef)
		fillEmpty(&merged.AltFileRef, row.AltFileRef)
		fillEmpty(&merged.Description, row.Description)
	}

	return out
}

func fillEmpty(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}
