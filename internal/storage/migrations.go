package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rows (
					id TEXT PRIMARY KEY,
					row_index INTEGER NOT NULL,
					vendor TEXT NOT NULL,
					vendor_key TEXT NOT NULL,
					invoice_number TEXT NOT NULL DEFAULT '',
					po_number TEXT NOT NULL DEFAULT '',
					primary_file_ref TEXT NOT NULL DEFAULT '',
					alt_file_ref TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					subtotal INTEGER NOT NULL DEFAULT 0,
					tax_amount INTEGER NOT NULL DEFAULT 0,
					tax_remitted INTEGER NOT NULL DEFAULT 0,
					total INTEGER NOT NULL DEFAULT 0,
					tax_category TEXT NOT NULL DEFAULT '',
					refund_basis TEXT NOT NULL DEFAULT '',
					methodology TEXT NOT NULL DEFAULT '',
					final_decision TEXT NOT NULL DEFAULT 'Unclassified',
					confidence INTEGER NOT NULL DEFAULT 0,
					estimated_refund INTEGER NOT NULL DEFAULT 0,
					citation TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					allocation_pct REAL,
					human_confirmed INTEGER NOT NULL DEFAULT 0,
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rows_vendor_key ON rows(vendor_key)`,
				`CREATE INDEX idx_rows_decision ON rows(final_decision)`,

				`CREATE TABLE IF NOT EXISTS edited_fields (
					row_id TEXT NOT NULL,
					field TEXT NOT NULL,
					edited_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (row_id, field),
					FOREIGN KEY (row_id) REFERENCES rows(id)
				)`,

				`CREATE TABLE IF NOT EXISTS input_snapshots (
					row_id TEXT PRIMARY KEY,
					snapshot TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (row_id) REFERENCES rows(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Vendor profile snapshots",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS vendor_profiles (
					vendor_key TEXT PRIMARY KEY,
					profile TEXT NOT NULL,
					rebuilt_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)
			`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Classification history for auditing",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS classification_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					row_id TEXT NOT NULL,
					rule_name TEXT,
					final_decision TEXT NOT NULL,
					confidence INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (row_id) REFERENCES rows(id)
				)
			`)
			return err
		},
	},
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`, m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
