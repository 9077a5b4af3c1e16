package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/model"
)

// Profiles are stored as opaque JSON documents keyed by vendor and only ever
// swapped wholesale, so the schema stays a simple key/value table.

// GetProfile retrieves the aggregated profile for a vendor key.
func (s *SQLiteStorage) GetProfile(ctx context.Context, vendorKey string) (*model.VendorProfile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return nil, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT profile FROM vendor_profiles WHERE vendor_key = ?`, vendorKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", vendorKey, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile model.VendorProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", vendorKey, err)
	}
	return &profile, nil
}

// GetAllProfiles retrieves every stored vendor profile, ordered by vendor key.
func (s *SQLiteStorage) GetAllProfiles(ctx context.Context) ([]model.VendorProfile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT vendor_key, profile FROM vendor_profiles ORDER BY vendor_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []model.VendorProfile
	for rows.Next() {
		var vendorKey, raw string
		if err := rows.Scan(&vendorKey, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}

		var profile model.VendorProfile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile %s: %w", vendorKey, err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile iteration failed: %w", err)
	}

	return profiles, nil
}

// ReplaceProfiles swaps the entire profile set in one transaction. A rebuild
// either lands completely or not at all; readers never see a partial set.
func (s *SQLiteStorage) ReplaceProfiles(ctx context.Context, profiles []model.VendorProfile) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vendor_profiles`); err != nil {
		return fmt.Errorf("failed to clear profiles: %w", err)
	}

	for i := range profiles {
		p := &profiles[i]
		if p.VendorKey == "" {
			return fmt.Errorf("profile at index %d has empty vendor key", i)
		}

		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode profile %s: %w", p.VendorKey, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO vendor_profiles (vendor_key, profile, rebuilt_at) VALUES (?, ?, ?)
		`, p.VendorKey, string(raw), p.RebuiltAt)
		if err != nil {
			return fmt.Errorf("failed to insert profile %s: %w", p.VendorKey, err)
		}
	}

	return tx.Commit()
}
