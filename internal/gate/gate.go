// Package gate implements the change-detection gate: the sole authority on
// whether automated re-classification may run for a row.
package gate

import (
	"strconv"

	"github.com/refundworks/refundflow/internal/columns"
	"github.com/refundworks/refundflow/internal/model"
)

// Result is the gate's verdict for a single row.
type Result struct {
	// NeedsReanalysis is true when the row is new or any INPUT column
	// changed since the stored snapshot.
	NeedsReanalysis bool
	// EditedFields lists OUTPUT fields whose values diverged from the
	// snapshot with no INPUT change: analyst edits to be flagged human_edited.
	EditedFields []model.Field
	// Snapshot is the refreshed INPUT snapshot the caller must persist.
	Snapshot map[string]string
}

// Gate evaluates rows against their stored INPUT snapshots.
type Gate struct {
	registry *columns.Registry
}

// New creates a gate bound to a column registry.
func New(registry *columns.Registry) *Gate {
	return &Gate{registry: registry}
}

// Evaluate decides whether a row needs re-analysis. A nil snapshot means the
// row is new and always re-analyzed. When only OUTPUT values moved, the row is
// not re-analyzed and the moved fields are reported as analyst edits.
//
// prevOutputs carries the previously persisted OUTPUT values, keyed by column
// name, so analyst edits can be distinguished from untouched fields.
func (g *Gate) Evaluate(row *model.TransactionRow, snapshot, prevOutputs map[string]string) Result {
	current := g.InputSnapshot(row)

	if snapshot == nil {
		return Result{NeedsReanalysis: true, Snapshot: current}
	}

	for _, col := range g.registry.InputColumns() {
		if current[col] != snapshot[col] {
			return Result{NeedsReanalysis: true, Snapshot: current}
		}
	}

	// No INPUT movement. Any OUTPUT drift is an analyst edit.
	var edited []model.Field
	if prevOutputs != nil {
		outputs := OutputValues(row)
		for _, col := range g.registry.OutputColumns() {
			prev, ok := prevOutputs[col]
			if !ok {
				continue
			}
			if outputs[col] != prev {
				edited = append(edited, model.Field(col))
			}
		}
	}

	return Result{NeedsReanalysis: false, EditedFields: edited, Snapshot: current}
}

// InputSnapshot renders the row's INPUT column values as a flat string map,
// the persisted form the gate compares against.
func (g *Gate) InputSnapshot(row *model.TransactionRow) map[string]string {
	all := map[string]string{
		"vendor":                 row.Vendor,
		"invoice_number":         row.InvoiceNumber,
		"po_number":              row.PONumber,
		"description":            row.Description,
		"subtotal":               strconv.FormatInt(row.Subtotal, 10),
		"tax_amount":             strconv.FormatInt(row.TaxAmount, 10),
		"tax_remitted":           strconv.FormatInt(row.TaxRemitted, 10),
		"total":                  strconv.FormatInt(row.Total, 10),
		"invoice_file_reference": row.PrimaryFileRef,
		"alt_file_reference":     row.AltFileRef,
	}

	snapshot := make(map[string]string)
	for _, col := range g.registry.InputColumns() {
		if v, ok := all[col]; ok {
			snapshot[col] = v
		}
	}
	return snapshot
}

// OutputValues renders the row's OUTPUT fields as a flat string map.
func OutputValues(row *model.TransactionRow) map[string]string {
	return map[string]string{
		"tax_category":     row.TaxCategory,
		"refund_basis":     row.RefundBasis,
		"methodology":      row.Methodology,
		"final_decision":   string(row.FinalDecision),
		"confidence":       strconv.Itoa(row.Confidence),
		"estimated_refund": strconv.FormatInt(row.EstimatedRefund, 10),
		"citation":         row.Citation,
		"notes":            row.Notes,
	}
}
