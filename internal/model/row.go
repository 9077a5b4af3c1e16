// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Decision is the final refund decision for a transaction row.
type Decision string

// Final decision constants. AddToClaim and DoNotAdd are terminal: once set,
// automation only revisits them when an INPUT column changes.
const (
	DecisionUnclassified Decision = "Unclassified"
	DecisionNeedsReview  Decision = "Needs Review"
	DecisionAddToClaim   Decision = "Add to Claim"
	DecisionDoNotAdd     Decision = "Do Not Add"
)

// IsTerminal reports whether the decision is a terminal state.
func (d Decision) IsTerminal() bool {
	return d == DecisionAddToClaim || d == DecisionDoNotAdd
}

// Field identifies an OUTPUT field on a TransactionRow. Provenance flags and
// the merge engine are keyed by Field.
type Field string

// OUTPUT field constants.
const (
	FieldTaxCategory     Field = "tax_category"
	FieldRefundBasis     Field = "refund_basis"
	FieldMethodology     Field = "methodology"
	FieldFinalDecision   Field = "final_decision"
	FieldConfidence      Field = "confidence"
	FieldEstimatedRefund Field = "estimated_refund"
	FieldCitation        Field = "citation"
	FieldNotes           Field = "notes"
)

// OutputFields lists every OUTPUT field in stable order.
func OutputFields() []Field {
	return []Field{
		FieldTaxCategory,
		FieldRefundBasis,
		FieldMethodology,
		FieldFinalDecision,
		FieldConfidence,
		FieldEstimatedRefund,
		FieldCitation,
		FieldNotes,
	}
}

// TransactionRow represents a single invoice or purchase-order line item under
// refund review. Monetary fields are in cents.
type TransactionRow struct {
	ID             string
	RowIndex       int // original position in the source document
	Vendor         string
	InvoiceNumber  string
	PONumber       string
	PrimaryFileRef string
	AltFileRef     string
	Description    string

	Subtotal    int64
	TaxAmount   int64
	TaxRemitted int64
	Total       int64

	// Classification outputs.
	TaxCategory     string
	RefundBasis     string
	Methodology     string
	FinalDecision   Decision
	Confidence      int // 0-100
	EstimatedRefund int64
	Citation        string
	Notes           string

	// HumanEdited marks OUTPUT fields an analyst has touched. A flagged field
	// is never overwritten by automation.
	HumanEdited map[Field]bool

	// AllocationPct is the analyst-recorded allocation share in [0,1] for the
	// row's methodology, when one was worked out for this transaction.
	AllocationPct *float64

	// HumanConfirmed marks the row's classification as analyst-approved,
	// making it eligible for vendor profile aggregation.
	HumanConfirmed bool

	ImportedAt time.Time
}

// VendorKey returns the normalized vendor key used to group rows and index
// vendor profiles.
func (r *TransactionRow) VendorKey() string {
	return NormalizeVendor(r.Vendor)
}

// MarkEdited flags an OUTPUT field as human edited.
func (r *TransactionRow) MarkEdited(f Field) {
	if r.HumanEdited == nil {
		r.HumanEdited = make(map[Field]bool)
	}
	r.HumanEdited[f] = true
}

// IsEdited reports whether an OUTPUT field carries the human-edited flag.
func (r *TransactionRow) IsEdited(f Field) bool {
	return r.HumanEdited[f]
}

// GenerateHash creates a stable identity hash for duplicate detection.
func (r *TransactionRow) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%d:%d",
		r.VendorKey(),
		r.InvoiceNumber,
		r.PONumber,
		r.Total,
		r.RowIndex)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// legalSuffixes are trailing corporate designators stripped during vendor
// normalization so "Acme Corp." and "ACME CORPORATION" share a key.
var legalSuffixes = []string{
	"INCORPORATED", "CORPORATION", "COMPANY", "LIMITED",
	"INC", "CORP", "LLC", "LLP", "LTD", "CO",
}

// NormalizeVendor reduces a raw vendor name to a grouping key: upper-cased,
// punctuation removed, whitespace collapsed, legal suffixes dropped.
func NormalizeVendor(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))

	var b strings.Builder
	for _, ch := range upper {
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == ' ', ch == '\t':
			b.WriteRune(' ')
		default:
			// Punctuation separates tokens rather than vanishing, so
			// "ACME,INC" still splits cleanly.
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		stripped := false
		for _, suffix := range legalSuffixes {
			if last == suffix {
				tokens = tokens[:len(tokens)-1]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	return strings.Join(tokens, " ")
}
