package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/refundworks/refundflow/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import transaction rows from a CSV export",
		Long: `Import rows from the review workbook's CSV export.

Existing rows are reconciled through the change gate: analyst edits to
output columns are adopted and flagged human-edited, while input changes
invalidate the row's snapshot so it re-enters classification.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	rows, err := parseCSVRows(file)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no rows found in %s", path)
	}

	eng, store, err := buildEngine(ctx, false)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	bar := progressbar.NewOptions(len(rows),
		progressbar.OptionSetDescription("Importing rows"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	adopted := 0
	for i := range rows {
		n, err := eng.ReconcileImport(ctx, rows[i:i+1])
		if err != nil {
			return fmt.Errorf("import failed at row %s: %w", rows[i].ID, err)
		}
		adopted += n
		_ = bar.Add(1)
	}

	slog.Info("Import complete", "rows", len(rows), "edits_adopted", adopted)
	cmd.Printf("Imported %d row(s), adopted %d analyst edit(s)\n", len(rows), adopted)
	return nil
}

// csvColumns is the expected header order for import and export.
var csvColumns = []string{
	"id", "row_index", "vendor", "invoice_number", "po_number",
	"invoice_file_reference", "alt_file_reference", "description",
	"subtotal", "tax_amount", "tax_remitted", "total",
	"tax_category", "refund_basis", "methodology", "final_decision",
	"confidence", "estimated_refund", "citation", "notes",
}

// parseCSVRows reads a header-indexed CSV into transaction rows. Unknown
// columns are ignored; missing monetary values default to zero.
func parseCSVRows(r io.Reader) ([]model.TransactionRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["vendor"]; !ok {
		return nil, fmt.Errorf("CSV is missing required column %q", "vendor")
	}

	var rows []model.TransactionRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", line+1, err)
		}
		line++

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := model.TransactionRow{
			ID:             field("id"),
			Vendor:         field("vendor"),
			InvoiceNumber:  field("invoice_number"),
			PONumber:       field("po_number"),
			PrimaryFileRef: field("invoice_file_reference"),
			AltFileRef:     field("alt_file_reference"),
			Description:    field("description"),
			TaxCategory:    field("tax_category"),
			RefundBasis:    field("refund_basis"),
			Methodology:    field("methodology"),
			Citation:       field("citation"),
			Notes:          field("notes"),
			ImportedAt:     time.Now(),
		}

		if v := field("row_index"); v != "" {
			row.RowIndex, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid row_index %q", line, v)
			}
		} else {
			row.RowIndex = line - 1
		}

		for _, m := range []struct {
			dst  *int64
			name string
		}{
			{&row.Subtotal, "subtotal"},
			{&row.TaxAmount, "tax_amount"},
			{&row.TaxRemitted, "tax_remitted"},
			{&row.Total, "total"},
			{&row.EstimatedRefund, "estimated_refund"},
		} {
			*m.dst, err = parseMoney(field(m.name))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, m.name, err)
			}
		}

		if v := field("confidence"); v != "" {
			row.Confidence, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid confidence %q", line, v)
			}
		}
		if v := field("final_decision"); v != "" {
			row.FinalDecision = model.Decision(v)
		}

		if row.ID == "" {
			row.ID = row.GenerateHash()
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// parseMoney converts a dollar amount string to cents. Accepts optional
// leading $, thousands separators, and up to two decimal places.
func parseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	total := dollars*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}
