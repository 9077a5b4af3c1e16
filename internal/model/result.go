package model

import "time"

// ClassificationStatus indicates how a row's classification was produced.
type ClassificationStatus string

// Classification status constants.
const (
	StatusClassifiedByRule ClassificationStatus = "CLASSIFIED_BY_RULE"
	StatusClassifiedByAI   ClassificationStatus = "CLASSIFIED_BY_AI"
	StatusUserModified     ClassificationStatus = "USER_MODIFIED"
)

// ClassificationResult is the ephemeral output bundle produced for a single
// row before the merge engine reconciles it with persisted state.
type ClassificationResult struct {
	RowID           string
	TaxCategory     string
	RefundBasis     string
	Methodology     string
	Decision        Decision
	Confidence      int // 0-100
	EstimatedRefund int64
	Citation        string
	Notes           string
	Status          ClassificationStatus
	RuleName        string
	ClassifiedAt    time.Time
}

// AnomalyResult carries hidden-tax evidence from the anomaly detector.
// It is advisory: the classifier decides whether to act on it.
type AnomalyResult struct {
	Flagged     bool
	ImpliedBase int64 // cents
	ImpliedTax  int64 // cents
}
