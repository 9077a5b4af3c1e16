// Package llm wraps the external semantic-classification service: an
// unreliable, latent, rate-limited collaborator consulted for rules that need
// judgment beyond keyword matching.
package llm

import "context"

// Client defines the interface for semantic-classification providers.
type Client interface {
	Classify(ctx context.Context, prompt string) (Response, error)
}

// Response is the provider's structured classification of one row.
type Response struct {
	TaxCategory string
	RefundBasis string
	Methodology string
	Decision    string
	Confidence  int // 0-100
	Citation    string
	Reasoning   string
}
