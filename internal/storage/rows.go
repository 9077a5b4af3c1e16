package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/refundworks/refundflow/internal/common"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

const rowColumns = `id, row_index, vendor, invoice_number, po_number,
	primary_file_ref, alt_file_ref, description,
	subtotal, tax_amount, tax_remitted, total,
	tax_category, refund_basis, methodology, final_decision,
	confidence, estimated_refund, citation, notes,
	allocation_pct, human_confirmed, imported_at`

// SaveRows upserts imported rows. On conflict only INPUT columns are
// refreshed; classification outputs and provenance are left alone so a
// re-import never clobbers analyst work.
func (s *SQLiteStorage) SaveRows(ctx context.Context, rows []model.TransactionRow) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRows(rows); err != nil {
		return err
	}

	seen := make(map[string]bool, len(rows))
	for i := range rows {
		if seen[rows[i].ID] {
			return fmt.Errorf("row %s appears more than once in batch: %w", rows[i].ID, common.ErrDuplicateEntry)
		}
		seen[rows[i].ID] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range rows {
		row := &rows[i]
		if row.ImportedAt.IsZero() {
			row.ImportedAt = time.Now()
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO rows (
				id, row_index, vendor, vendor_key, invoice_number, po_number,
				primary_file_ref, alt_file_ref, description,
				subtotal, tax_amount, tax_remitted, total,
				final_decision, imported_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				row_index = excluded.row_index,
				vendor = excluded.vendor,
				vendor_key = excluded.vendor_key,
				invoice_number = excluded.invoice_number,
				po_number = excluded.po_number,
				primary_file_ref = excluded.primary_file_ref,
				alt_file_ref = excluded.alt_file_ref,
				description = excluded.description,
				subtotal = excluded.subtotal,
				tax_amount = excluded.tax_amount,
				tax_remitted = excluded.tax_remitted,
				total = excluded.total
		`,
			row.ID, row.RowIndex, row.Vendor, row.VendorKey(), row.InvoiceNumber, row.PONumber,
			row.PrimaryFileRef, row.AltFileRef, row.Description,
			row.Subtotal, row.TaxAmount, row.TaxRemitted, row.Total,
			string(model.DecisionUnclassified), row.ImportedAt)
		if err != nil {
			return fmt.Errorf("failed to save row %s: %w", row.ID, err)
		}
	}

	return tx.Commit()
}

// GetRow retrieves a single row with its provenance flags.
func (s *SQLiteStorage) GetRow(ctx context.Context, id string) (*model.TransactionRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row, err := s.getRowTx(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	edited, err := s.getEditedFields(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	row.HumanEdited = edited

	return row, nil
}

func (s *SQLiteStorage) getRowTx(ctx context.Context, q queryable, id string) (*model.TransactionRow, error) {
	r := q.QueryRowContext(ctx, `SELECT `+rowColumns+` FROM rows WHERE id = ?`, id)

	row, err := scanRow(r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("row %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}

	return row, nil
}

// GetRows retrieves rows matching a filter, ordered by original row index.
func (s *SQLiteStorage) GetRows(ctx context.Context, filter service.RowFilter) ([]model.TransactionRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + rowColumns + ` FROM rows WHERE 1=1`
	var args []any

	if filter.VendorKey != "" {
		query += ` AND vendor_key = ?`
		args = append(args, filter.VendorKey)
	}
	if filter.Decision != "" {
		query += ` AND final_decision = ?`
		args = append(args, string(filter.Decision))
	}
	if filter.ConfirmedOnly {
		query += ` AND human_confirmed = 1`
	}

	query += ` ORDER BY row_index`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	return s.queryRows(ctx, query, args...)
}

// GetRowsByVendor retrieves all rows for a normalized vendor key.
func (s *SQLiteStorage) GetRowsByVendor(ctx context.Context, vendorKey string) ([]model.TransactionRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return nil, err
	}
	return s.GetRows(ctx, service.RowFilter{VendorKey: vendorKey})
}

// GetConfirmedRows retrieves every human-confirmed row, in original row
// order, for profile aggregation.
func (s *SQLiteStorage) GetConfirmedRows(ctx context.Context) ([]model.TransactionRow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.GetRows(ctx, service.RowFilter{ConfirmedOnly: true})
}

func (s *SQLiteStorage) queryRows(ctx context.Context, query string, args ...any) ([]model.TransactionRow, error) {
	dbRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer func() { _ = dbRows.Close() }()

	var rows []model.TransactionRow
	for dbRows.Next() {
		row, err := scanRow(dbRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rows = append(rows, *row)
	}
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	if err := s.attachEditedFields(ctx, rows); err != nil {
		return nil, err
	}

	return rows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*model.TransactionRow, error) {
	var row model.TransactionRow
	var decision string
	var allocationPct sql.NullFloat64

	err := r.Scan(
		&row.ID, &row.RowIndex, &row.Vendor, &row.InvoiceNumber, &row.PONumber,
		&row.PrimaryFileRef, &row.AltFileRef, &row.Description,
		&row.Subtotal, &row.TaxAmount, &row.TaxRemitted, &row.Total,
		&row.TaxCategory, &row.RefundBasis, &row.Methodology, &decision,
		&row.Confidence, &row.EstimatedRefund, &row.Citation, &row.Notes,
		&allocationPct, &row.HumanConfirmed, &row.ImportedAt,
	)
	if err != nil {
		return nil, err
	}

	row.FinalDecision = model.Decision(decision)
	if allocationPct.Valid {
		pct := allocationPct.Float64
		row.AllocationPct = &pct
	}

	return &row, nil
}

func (s *SQLiteStorage) attachEditedFields(ctx context.Context, rows []model.TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	dbRows, err := s.db.QueryContext(ctx, `SELECT row_id, field FROM edited_fields`)
	if err != nil {
		return fmt.Errorf("failed to query edited fields: %w", err)
	}
	defer func() { _ = dbRows.Close() }()

	edited := make(map[string]map[model.Field]bool)
	for dbRows.Next() {
		var rowID, field string
		if err := dbRows.Scan(&rowID, &field); err != nil {
			return fmt.Errorf("failed to scan edited field: %w", err)
		}
		if edited[rowID] == nil {
			edited[rowID] = make(map[model.Field]bool)
		}
		edited[rowID][model.Field(field)] = true
	}
	if err := dbRows.Err(); err != nil {
		return fmt.Errorf("edited field iteration failed: %w", err)
	}

	for i := range rows {
		if flags, ok := edited[rows[i].ID]; ok {
			rows[i].HumanEdited = flags
		}
	}

	return nil
}

func (s *SQLiteStorage) getEditedFields(ctx context.Context, q queryable, rowID string) (map[model.Field]bool, error) {
	dbRows, err := q.QueryContext(ctx, `SELECT field FROM edited_fields WHERE row_id = ?`, rowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edited fields: %w", err)
	}
	defer func() { _ = dbRows.Close() }()

	edited := make(map[model.Field]bool)
	for dbRows.Next() {
		var field string
		if err := dbRows.Scan(&field); err != nil {
			return nil, fmt.Errorf("failed to scan edited field: %w", err)
		}
		edited[model.Field(field)] = true
	}
	return edited, dbRows.Err()
}

// MarkFieldEdited flags an OUTPUT field as analyst-edited.
func (s *SQLiteStorage) MarkFieldEdited(ctx context.Context, rowID string, field model.Field) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(rowID, "rowID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edited_fields (row_id, field) VALUES (?, ?)
		ON CONFLICT(row_id, field) DO NOTHING
	`, rowID, string(field))
	if err != nil {
		return fmt.Errorf("failed to mark field edited: %w", err)
	}
	return nil
}

// MarkConfirmed sets or clears the analyst-confirmed flag on a row.
func (s *SQLiteStorage) MarkConfirmed(ctx context.Context, rowID string, confirmed bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(rowID, "rowID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE rows SET human_confirmed = ? WHERE id = ?`, confirmed, rowID)
	if err != nil {
		return fmt.Errorf("failed to mark row confirmed: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("row %s: %w", rowID, common.ErrNotFound)
	}
	return nil
}

// GetInputSnapshot loads the stored INPUT snapshot for a row, or nil when
// the row has never been evaluated.
func (s *SQLiteStorage) GetInputSnapshot(ctx context.Context, rowID string) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(rowID, "rowID"); err != nil {
		return nil, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM input_snapshots WHERE row_id = ?`, rowID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get input snapshot: %w", err)
	}

	var snapshot map[string]string
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode input snapshot: %w", err)
	}
	return snapshot, nil
}

// SaveInputSnapshot stores the refreshed INPUT snapshot for a row.
func (s *SQLiteStorage) SaveInputSnapshot(ctx context.Context, rowID string, snapshot map[string]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(rowID, "rowID"); err != nil {
		return err
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode input snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO input_snapshots (row_id, snapshot, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(row_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, rowID, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save input snapshot: %w", err)
	}
	return nil
}

// ApplyEdits adopts analyst-supplied values for the named OUTPUT fields and
// flags them human-edited in the same transaction. This is the explicit
// override path, so the edited-field guard does not apply.
func (s *SQLiteStorage) ApplyEdits(ctx context.Context, row *model.TransactionRow, fields []model.Field) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRow(row); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	columns := map[model.Field]any{
		model.FieldTaxCategory:     row.TaxCategory,
		model.FieldRefundBasis:     row.RefundBasis,
		model.FieldMethodology:     row.Methodology,
		model.FieldFinalDecision:   string(row.FinalDecision),
		model.FieldConfidence:      row.Confidence,
		model.FieldEstimatedRefund: row.EstimatedRefund,
		model.FieldCitation:        row.Citation,
		model.FieldNotes:           row.Notes,
	}

	for _, field := range fields {
		value, ok := columns[field]
		if !ok {
			return fmt.Errorf("unknown output field %q", field)
		}

		// Field names come from the fixed OUTPUT registry, never user input.
		query := fmt.Sprintf(`UPDATE rows SET %s = ? WHERE id = ?`, string(field))
		if _, err := tx.ExecContext(ctx, query, value, row.ID); err != nil {
			return fmt.Errorf("failed to apply edit to %s: %w", field, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO edited_fields (row_id, field) VALUES (?, ?)
			ON CONFLICT(row_id, field) DO NOTHING
		`, row.ID, string(field))
		if err != nil {
			return fmt.Errorf("failed to mark field edited: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO classification_history (row_id, final_decision, confidence, status)
		VALUES (?, ?, ?, ?)
	`, row.ID, string(row.FinalDecision), row.Confidence, string(model.StatusUserModified))
	if err != nil {
		return fmt.Errorf("failed to record edit history: %w", err)
	}

	return tx.Commit()
}

// CommitClassification writes a classification result into a row. All OUTPUT
// fields commit atomically; human-edited fields are re-checked inside the
// transaction and kept, so a conflicting write can never slip through even if
// the caller's merge missed it.
func (s *SQLiteStorage) CommitClassification(ctx context.Context, row *model.TransactionRow, result *model.ClassificationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRow(row); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.getRowTx(ctx, tx, row.ID)
	if err != nil {
		return err
	}

	edited, err := s.getEditedFields(ctx, tx, row.ID)
	if err != nil {
		return err
	}

	merged := *existing
	merged.HumanEdited = edited
	applyResult(&merged, result)

	_, err = tx.ExecContext(ctx, `
		UPDATE rows SET
			tax_category = ?,
			refund_basis = ?,
			methodology = ?,
			final_decision = ?,
			confidence = ?,
			estimated_refund = ?,
			citation = ?,
			notes = ?
		WHERE id = ?
	`,
		merged.TaxCategory, merged.RefundBasis, merged.Methodology,
		string(merged.FinalDecision), merged.Confidence, merged.EstimatedRefund,
		merged.Citation, merged.Notes, merged.ID)
	if err != nil {
		return fmt.Errorf("failed to update row outputs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO classification_history (row_id, rule_name, final_decision, confidence, status)
		VALUES (?, ?, ?, ?, ?)
	`, merged.ID, result.RuleName, string(merged.FinalDecision), merged.Confidence, string(result.Status))
	if err != nil {
		return fmt.Errorf("failed to record classification history: %w", err)
	}

	return tx.Commit()
}

// applyResult adopts result values for every OUTPUT field that is not
// human-edited. Conflicting writes keep the existing value and are logged.
func applyResult(row *model.TransactionRow, result *model.ClassificationResult) {
	set := func(field model.Field, apply func()) {
		if row.IsEdited(field) {
			conflict := &common.MergeConflictError{RowID: row.ID, Field: field}
			slog.Warn("Merge conflict: keeping analyst value", "error", conflict)
			return
		}
		apply()
	}

	set(model.FieldTaxCategory, func() { row.TaxCategory = result.TaxCategory })
	set(model.FieldRefundBasis, func() { row.RefundBasis = result.RefundBasis })
	set(model.FieldMethodology, func() { row.Methodology = result.Methodology })
	set(model.FieldFinalDecision, func() { row.FinalDecision = result.Decision })
	set(model.FieldConfidence, func() { row.Confidence = result.Confidence })
	set(model.FieldEstimatedRefund, func() { row.EstimatedRefund = result.EstimatedRefund })
	set(model.FieldCitation, func() { row.Citation = result.Citation })
	set(model.FieldNotes, func() { row.Notes = result.Notes })
}
