// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/refundworks/refundflow/internal/model"
)

// RowFilter defines filtering options for row queries.
type RowFilter struct {
	VendorKey     string
	Decision      model.Decision
	ConfirmedOnly bool
	Limit         int
	Offset        int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Row operations
	SaveRows(ctx context.Context, rows []model.TransactionRow) error
	GetRow(ctx context.Context, id string) (*model.TransactionRow, error)
	GetRows(ctx context.Context, filter RowFilter) ([]model.TransactionRow, error)
	GetRowsByVendor(ctx context.Context, vendorKey string) ([]model.TransactionRow, error)
	GetConfirmedRows(ctx context.Context) ([]model.TransactionRow, error)

	// Input snapshot operations (change-detection gate)
	GetInputSnapshot(ctx context.Context, rowID string) (map[string]string, error)
	SaveInputSnapshot(ctx context.Context, rowID string, snapshot map[string]string) error

	// Classification write-back. All OUTPUT fields for a row commit atomically.
	CommitClassification(ctx context.Context, row *model.TransactionRow, result *model.ClassificationResult) error
	MarkFieldEdited(ctx context.Context, rowID string, field model.Field) error
	MarkConfirmed(ctx context.Context, rowID string, confirmed bool) error

	// ApplyEdits writes analyst-supplied OUTPUT values for the named fields and
	// flags them human-edited, in one transaction. This is the explicit
	// override path; automation can never reach these fields afterward.
	ApplyEdits(ctx context.Context, row *model.TransactionRow, fields []model.Field) error

	// Vendor profile operations. ReplaceProfiles swaps the whole set in one
	// transaction; profiles are never partially updated.
	GetProfile(ctx context.Context, vendorKey string) (*model.VendorProfile, error)
	GetAllProfiles(ctx context.Context) ([]model.VendorProfile, error)
	ReplaceProfiles(ctx context.Context, profiles []model.VendorProfile) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// CompletionStats shows the results of a classification run.
type CompletionStats struct {
	TotalRows        int
	ClassifiedByRule int
	ClassifiedByAI   int
	NeedsReview      int
	Unprocessed      int
	Skipped          int
	Duration         time.Duration
}

// RebuildStats summarizes a profile aggregation pass.
type RebuildStats struct {
	VendorsProfiled int
	VendorsSkipped  int
	RowsConsumed    int
	Duration        time.Duration
}
