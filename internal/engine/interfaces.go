// Package engine orchestrates the classification pipeline: change gate,
// anomaly detection, rule cascade, semantic refinement, and the non-destructive
// merge back into storage.
package engine

import (
	"context"

	"github.com/refundworks/refundflow/internal/llm"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

// SemanticRefiner confirms or corrects rule verdicts that need judgment
// beyond keyword matching. Implemented by llm.Classifier.
type SemanticRefiner interface {
	Refine(ctx context.Context, row *model.TransactionRow, candidate model.ClassificationResult, profile *model.VendorProfile) (llm.Response, error)
	RetryOptions() service.RetryOptions
	Close() error
}
