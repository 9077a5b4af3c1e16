package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/refundworks/refundflow/internal/anomaly"
	"github.com/refundworks/refundflow/internal/columns"
	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/gate"
	"github.com/refundworks/refundflow/internal/llm"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/profile"
	"github.com/refundworks/refundflow/internal/rules"
	"github.com/refundworks/refundflow/internal/service"
)

// Config tunes a classification engine.
type Config struct {
	// Workers bounds concurrent row classification. The ceiling exists for
	// the external semantic service, not local CPU.
	Workers int

	// TaxRate is the jurisdiction rate used by hidden-tax detection.
	TaxRate float64

	// ReviewThreshold routes results below this confidence to the review
	// queue listing. Policy knob, not a classification input.
	ReviewThreshold int

	// AllocationDefaults maps methodology name to its global default
	// allocation percentage in [0,1].
	AllocationDefaults map[string]float64
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		TaxRate:         anomaly.DefaultRate,
		ReviewThreshold: 90,
	}
}

// Engine runs the classification pipeline over stored rows.
type Engine struct {
	storage    service.Storage
	gate       *gate.Gate
	cascade    *rules.Cascade
	refiner    SemanticRefiner
	aggregator *profile.Aggregator
	logger     *slog.Logger
	cfg        Config
}

// New creates a classification engine. refiner may be nil, in which case
// semantic rules stand on their keyword verdict alone.
func New(storage service.Storage, registry *columns.Registry, refiner SemanticRefiner, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.TaxRate <= 0 {
		cfg.TaxRate = anomaly.DefaultRate
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = DefaultConfig().ReviewThreshold
	}

	return &Engine{
		storage:    storage,
		gate:       gate.New(registry),
		cascade:    rules.DefaultCascade(),
		refiner:    refiner,
		aggregator: profile.NewAggregator(profile.DefaultConfig()),
		logger:     logger,
		cfg:        cfg,
	}
}

// rowOutcome is the per-row result bucket used for run statistics.
type rowOutcome int

const (
	outcomeRule rowOutcome = iota
	outcomeAI
	outcomeReview
	outcomeSkipped
	outcomeUnprocessed
)

// ClassifyAll classifies every stored row matching the filter. Rows run
// through a bounded worker pool; a failure on one row never aborts the batch.
func (e *Engine) ClassifyAll(ctx context.Context, filter service.RowFilter) (service.CompletionStats, error) {
	start := time.Now()

	rows, err := e.storage.GetRows(ctx, filter)
	if err != nil {
		return service.CompletionStats{}, fmt.Errorf("failed to load rows: %w", err)
	}
	if len(rows) == 0 {
		return service.CompletionStats{}, common.ErrNoRows
	}

	resolver, err := e.buildResolver(ctx)
	if err != nil {
		return service.CompletionStats{}, err
	}

	stats := service.CompletionStats{TotalRows: len(rows)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Workers)

	for i := range rows {
		row := rows[i]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := e.classifyRow(ctx, &row, resolver)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeRule:
				stats.ClassifiedByRule++
			case outcomeAI:
				stats.ClassifiedByAI++
			case outcomeReview:
				stats.NeedsReview++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeUnprocessed:
				stats.Unprocessed++
			}
		}()
	}

	wg.Wait()
	stats.Duration = time.Since(start)

	e.logger.Info("Classification run complete",
		"total", stats.TotalRows,
		"by_rule", stats.ClassifiedByRule,
		"by_ai", stats.ClassifiedByAI,
		"needs_review", stats.NeedsReview,
		"skipped", stats.Skipped,
		"unprocessed", stats.Unprocessed,
		"duration", stats.Duration)

	return stats, nil
}

// classifyRow runs the full pipeline for one row: validation, change gate,
// anomaly detection, rule cascade, semantic refinement, merge, commit.
func (e *Engine) classifyRow(ctx context.Context, row *model.TransactionRow, resolver *profile.Resolver) rowOutcome {
	if err := e.validateInputs(row); err != nil {
		e.logger.Warn("Row failed input validation", "row_id", row.ID, "error", err)
		return outcomeUnprocessed
	}

	snapshot, err := e.storage.GetInputSnapshot(ctx, row.ID)
	if err != nil {
		e.logger.Error("Failed to load input snapshot", "row_id", row.ID, "error", err)
		return outcomeUnprocessed
	}

	verdict := e.gate.Evaluate(row, snapshot, nil)
	if !verdict.NeedsReanalysis {
		return outcomeSkipped
	}

	anom := anomaly.Detect(row.Total, row.TaxAmount, e.cfg.TaxRate)
	vendorProfile := e.lookupProfile(ctx, row.VendorKey())

	result := e.cascade.Classify(row, anom, vendorProfile)
	outcome := outcomeRule

	if e.refiner != nil && e.cascade.IsSemantic(result.RuleName) {
		refined, err := e.refine(ctx, row, result, vendorProfile, anom)
		if err != nil {
			e.logger.Warn("Semantic refinement failed, routing to review",
				"row_id", row.ID, "rule", result.RuleName, "error", err)
			result = reviewFallback(row.ID, result.RuleName, err)
			outcome = outcomeReview
		} else {
			result = refined
			outcome = outcomeAI
		}
	}

	if outcome != outcomeReview {
		result = e.applyAllocation(result, row, resolver)
	}

	merged, conflicts := MergeResult(row, result)
	for _, conflict := range conflicts {
		e.logger.Warn("Merge conflict: keeping analyst value", "error", conflict)
	}

	if err := e.storage.CommitClassification(ctx, row, &merged); err != nil {
		e.logger.Error("Failed to commit classification", "row_id", row.ID, "error", err)
		return outcomeUnprocessed
	}
	if err := e.storage.SaveInputSnapshot(ctx, row.ID, verdict.Snapshot); err != nil {
		e.logger.Error("Failed to save input snapshot", "row_id", row.ID, "error", err)
	}

	if outcome != outcomeReview && merged.Decision == model.DecisionNeedsReview {
		return outcomeReview
	}
	return outcome
}

// validateInputs checks the columns a row cannot be classified without.
func (e *Engine) validateInputs(row *model.TransactionRow) error {
	if row.Vendor == "" {
		return &common.ValidationError{RowID: row.ID, Column: "vendor"}
	}
	if row.Description == "" {
		return &common.ValidationError{RowID: row.ID, Column: "description"}
	}
	if row.Total == 0 && row.Subtotal == 0 {
		return &common.ValidationError{RowID: row.ID, Column: "total"}
	}
	return nil
}

func (e *Engine) lookupProfile(ctx context.Context, vendorKey string) *model.VendorProfile {
	p, err := e.storage.GetProfile(ctx, vendorKey)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			e.logger.Warn("Failed to load vendor profile", "vendor_key", vendorKey, "error", err)
		}
		return nil
	}
	return p
}

// refine confirms a semantic rule verdict with the external service, retrying
// with exponential backoff before giving up.
func (e *Engine) refine(ctx context.Context, row *model.TransactionRow, candidate model.ClassificationResult, vendorProfile *model.VendorProfile, anom model.AnomalyResult) (model.ClassificationResult, error) {
	var response llm.Response

	err := common.WithRetry(ctx, func() error {
		var callErr error
		response, callErr = e.refiner.Refine(ctx, row, candidate, vendorProfile)
		return callErr
	}, e.refiner.RetryOptions())
	if err != nil {
		return model.ClassificationResult{}, &common.ClassificationServiceError{RowID: row.ID, Err: err}
	}

	decision, ok := llm.ParseDecision(response.Decision)
	if !ok {
		return model.ClassificationResult{}, &common.ParseError{
			RowID:   row.ID,
			Content: response.Decision,
			Err:     fmt.Errorf("unrecognized decision %q", response.Decision),
		}
	}

	result := candidate
	result.Status = model.StatusClassifiedByAI
	result.Decision = decision
	result.Confidence = response.Confidence
	if response.TaxCategory != "" {
		result.TaxCategory = response.TaxCategory
	}
	if response.RefundBasis != "" {
		result.RefundBasis = response.RefundBasis
	}
	if response.Methodology != "" {
		result.Methodology = response.Methodology
	}
	if response.Citation != "" {
		result.Citation = response.Citation
	}
	if response.Reasoning != "" {
		result.Notes = response.Reasoning
	}
	// The decision may have moved, so the estimate must be recomputed: an
	// upgraded claim gets its refund, a downgraded one loses it.
	result.EstimatedRefund = rules.EstimateRefund(result.Decision, row.TaxAmount, anom)
	result.ClassifiedAt = time.Now()

	return result, nil
}

// reviewFallback is the terminal state for rows the semantic service could
// not judge: Needs Review at zero confidence with the failure in notes.
func reviewFallback(rowID, ruleName string, err error) model.ClassificationResult {
	return model.ClassificationResult{
		RowID:        rowID,
		RuleName:     ruleName,
		Decision:     model.DecisionNeedsReview,
		Confidence:   0,
		Citation:     "Requires manual review",
		Notes:        fmt.Sprintf("Classification service error: %v", err),
		Status:       model.StatusClassifiedByRule,
		ClassifiedAt: time.Now(),
	}
}

// applyAllocation scales a claim's refund estimate by the resolved allocation
// percentage. An unresolvable percentage is flagged for manual input rather
// than silently treated as zero or one.
func (e *Engine) applyAllocation(result model.ClassificationResult, row *model.TransactionRow, resolver *profile.Resolver) model.ClassificationResult {
	if result.Methodology == "" || result.Decision != model.DecisionAddToClaim {
		return result
	}

	pct := resolver.Resolve(row.VendorKey(), result.Methodology)
	if pct == nil {
		result.Notes = appendNote(result.Notes, "Allocation percentage unresolved; manual input required.")
		return result
	}

	result.EstimatedRefund = int64(math.Round(float64(result.EstimatedRefund) * *pct))
	return result
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + " " + extra
}

// buildResolver snapshots the current profile set into an allocation resolver
// for this run. Profiles replaced mid-run are picked up on the next run.
func (e *Engine) buildResolver(ctx context.Context) (*profile.Resolver, error) {
	profiles, err := e.storage.GetAllProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	resolver, err := profile.NewResolver(profiles, e.cfg.AllocationDefaults)
	if err != nil {
		return nil, fmt.Errorf("failed to build allocation resolver: %w", err)
	}
	return resolver, nil
}

// RebuildProfiles regenerates every vendor profile from the full
// human-confirmed row set and replaces the stored set atomically. Per-vendor
// failures are returned but never abort the rebuild.
func (e *Engine) RebuildProfiles(ctx context.Context) (service.RebuildStats, []error, error) {
	start := time.Now()

	rows, err := e.storage.GetConfirmedRows(ctx)
	if err != nil {
		return service.RebuildStats{}, nil, fmt.Errorf("failed to load confirmed rows: %w", err)
	}

	profiles, vendorErrs := e.aggregator.Rebuild(rows)
	for _, vendorErr := range vendorErrs {
		e.logger.Warn("Vendor profile rebuild failed", "error", vendorErr)
	}

	if err := e.storage.ReplaceProfiles(ctx, profiles); err != nil {
		return service.RebuildStats{}, vendorErrs, fmt.Errorf("failed to replace profiles: %w", err)
	}

	stats := service.RebuildStats{
		VendorsProfiled: len(profiles),
		VendorsSkipped:  len(vendorErrs),
		RowsConsumed:    len(rows),
		Duration:        time.Since(start),
	}

	e.logger.Info("Profile rebuild complete",
		"vendors", stats.VendorsProfiled,
		"skipped", stats.VendorsSkipped,
		"rows", stats.RowsConsumed,
		"duration", stats.Duration)

	return stats, vendorErrs, nil
}

// ReconcileImport folds a re-imported row set into storage. New rows are
// saved as-is; for existing rows the change gate separates INPUT changes
// (snapshot invalidated, row re-enters classification) from analyst OUTPUT
// edits (values adopted and flagged human-edited).
func (e *Engine) ReconcileImport(ctx context.Context, incoming []model.TransactionRow) (int, error) {
	edits := 0

	for i := range incoming {
		row := &incoming[i]

		existing, err := e.storage.GetRow(ctx, row.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return edits, fmt.Errorf("failed to load row %s: %w", row.ID, err)
		}

		snapshot, err := e.storage.GetInputSnapshot(ctx, row.ID)
		if err != nil {
			return edits, fmt.Errorf("failed to load snapshot for row %s: %w", row.ID, err)
		}

		verdict := e.gate.Evaluate(row, snapshot, gate.OutputValues(existing))
		if len(verdict.EditedFields) == 0 {
			continue
		}

		if err := e.storage.ApplyEdits(ctx, row, verdict.EditedFields); err != nil {
			return edits, fmt.Errorf("failed to apply edits for row %s: %w", row.ID, err)
		}
		edits += len(verdict.EditedFields)

		e.logger.Info("Adopted analyst edits", "row_id", row.ID, "fields", len(verdict.EditedFields))
	}

	if err := e.storage.SaveRows(ctx, incoming); err != nil {
		return edits, fmt.Errorf("failed to save imported rows: %w", err)
	}

	return edits, nil
}

// ReviewQueue lists rows awaiting human attention: explicit Needs Review
// decisions plus anything classified below the review threshold.
func (e *Engine) ReviewQueue(ctx context.Context) ([]model.TransactionRow, error) {
	rows, err := e.storage.GetRows(ctx, service.RowFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}

	var queue []model.TransactionRow
	for _, row := range rows {
		switch {
		case row.HumanConfirmed:
			continue
		case row.FinalDecision == model.DecisionNeedsReview:
			queue = append(queue, row)
		case row.FinalDecision.IsTerminal() && row.Confidence < e.cfg.ReviewThreshold:
			queue = append(queue, row)
		}
	}

	return queue, nil
}
