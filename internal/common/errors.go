// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/refundworks/refundflow/internal/model"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Classification errors.
	ErrNoRows               = errors.New("no rows to classify")
	ErrClassificationFailed = errors.New("classification failed")

	// Configuration errors. Both are fatal at startup.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError marks a row that is missing a required INPUT column. The
// row is skipped and reported as unprocessed, never classified.
type ValidationError struct {
	RowID  string
	Column string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %s: missing required input column %q", e.RowID, e.Column)
}

// ClassificationServiceError indicates the external semantic-classification
// call failed after exhausting retries.
type ClassificationServiceError struct {
	Err   error
	RowID string
}

func (e *ClassificationServiceError) Error() string {
	return fmt.Sprintf("classification service failed for row %s: %v", e.RowID, e.Err)
}

func (e *ClassificationServiceError) Unwrap() error {
	return e.Err
}

// ParseError indicates the external service returned output that could not
// be interpreted. Treated identically to a service failure downstream.
type ParseError struct {
	Err     error
	RowID   string
	Content string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable classification response for row %s: %v", e.RowID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AggregationError marks a single vendor whose profile rebuild failed. The
// vendor is skipped; the rebuild continues for everyone else.
type AggregationError struct {
	Err       error
	VendorKey string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("profile aggregation failed for vendor %s: %v", e.VendorKey, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// MergeConflictError is raised when automation attempts to overwrite a
// human-edited OUTPUT field. The original value is kept.
type MergeConflictError struct {
	RowID string
	Field model.Field
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("row %s: refusing to overwrite human-edited field %s", e.RowID, e.Field)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
