package storage

import (
	"context"
	"fmt"

	"github.com/refundworks/refundflow/internal/model"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return nil
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateRow(row *model.TransactionRow) error {
	if row == nil {
		return fmt.Errorf("row cannot be nil")
	}
	if row.ID == "" {
		return fmt.Errorf("row ID cannot be empty")
	}
	if row.Vendor == "" {
		return fmt.Errorf("row %s: vendor cannot be empty", row.ID)
	}
	return nil
}

func validateRows(rows []model.TransactionRow) error {
	for i := range rows {
		if err := validateRow(&rows[i]); err != nil {
			return fmt.Errorf("invalid row at index %d: %w", i, err)
		}
	}
	return nil
}
