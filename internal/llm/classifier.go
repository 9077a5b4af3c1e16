package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

// Config holds configuration for the semantic classifier.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	RateLimit   int // requests per minute
	Temperature float64
	MaxTokens   int
}

// Classifier applies semantic judgment to rule verdicts using an external
// provider, with rate limiting and bounded retries.
type Classifier struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
	timeout     time.Duration
}

// NewClassifier creates a semantic classifier for the configured provider.
func NewClassifier(cfg Config, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Classifier{
		client:      client,
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		retryOpts:   retryOpts,
		timeout:     timeout,
	}, nil
}

// NewClassifierWithClient wires an explicit client, used by tests and the
// engine's mock provider.
func NewClassifierWithClient(client Client, logger *slog.Logger) *Classifier {
	return &Classifier{
		client:      client,
		logger:      logger,
		rateLimiter: newRateLimiter(0),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
		timeout: 5 * time.Second,
	}
}

// RetryOptions exposes the classifier's retry policy for callers that wrap
// the Refine call themselves.
func (c *Classifier) RetryOptions() service.RetryOptions {
	return c.retryOpts
}

// Refine asks the provider to confirm or correct a rule verdict for a row.
// The call is rate limited and runs under a bounded timeout; the caller owns
// retry and fallback policy.
func (c *Classifier) Refine(ctx context.Context, row *model.TransactionRow, candidate model.ClassificationResult, profile *model.VendorProfile) (Response, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit error: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildRefinePrompt(row, candidate, profile)

	response, err := c.client.Classify(callCtx, prompt)
	if err != nil {
		return Response{}, err
	}

	if _, ok := ParseDecision(response.Decision); !ok {
		return Response{}, fmt.Errorf("%w: invalid decision in response: %q", common.ErrClassificationFailed, response.Decision)
	}

	c.logger.Debug("semantic classification succeeded",
		"row_id", row.ID,
		"decision", response.Decision,
		"confidence", response.Confidence)

	return response, nil
}

// Close releases the rate limiter.
func (c *Classifier) Close() error {
	if c.rateLimiter != nil {
		c.rateLimiter.Close()
	}
	return nil
}

// ParseDecision maps a provider decision string onto the decision state
// machine, tolerating case and spacing drift.
func ParseDecision(s string) (model.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add to claim", "add_to_claim":
		return model.DecisionAddToClaim, true
	case "do not add", "do_not_add":
		return model.DecisionDoNotAdd, true
	case "needs review", "needs_review":
		return model.DecisionNeedsReview, true
	default:
		return "", false
	}
}

// buildRefinePrompt renders the row, the rule verdict under review, and the
// vendor's few-shot history into a single provider prompt.
func buildRefinePrompt(row *model.TransactionRow, candidate model.ClassificationResult, profile *model.VendorProfile) string {
	var b strings.Builder

	b.WriteString("Review this invoice line item for sales/use tax refund eligibility.\n\n")

	fmt.Fprintf(&b, "Line Item:\nVendor: %s\nDescription: %s\nSubtotal: $%.2f\nTax Amount: $%.2f\nTax Remitted: $%.2f\nTotal: $%.2f\n",
		row.Vendor,
		row.Description,
		dollars(row.Subtotal),
		dollars(row.TaxAmount),
		dollars(row.TaxRemitted),
		dollars(row.Total))

	if candidate.RuleName != "" {
		fmt.Fprintf(&b, "\nPreliminary rule match: %s\nCategory: %s\nRefund basis: %s\nMethodology: %s\n",
			candidate.RuleName,
			candidate.TaxCategory,
			candidate.RefundBasis,
			candidate.Methodology)
	}

	if profile != nil && len(profile.FewShotExamples) > 0 {
		b.WriteString("\nPrior analyst-confirmed classifications for this vendor:\n")
		for _, ex := range profile.FewShotExamples {
			fmt.Fprintf(&b, "- %q -> category %q, basis %q, methodology %q, decision %q\n",
				ex.Description, ex.TaxCategory, ex.RefundBasis, ex.Methodology, ex.Decision)
		}
	}

	b.WriteString(`
Respond with a JSON object:
{
  "tax_category": "...",
  "refund_basis": "...",
  "methodology": "...",
  "decision": "Add to Claim" | "Do Not Add" | "Needs Review",
  "confidence": 0-100,
  "citation": "...",
  "reasoning": "one sentence"
}`)

	return b.String()
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}
