package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/refundworks/refundflow/internal/engine"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Export classified rows to CSV",
		Long: `Export stored rows, with their classification outputs, to a CSV
file the review workbook can ingest.

Examples:
  refundflow export claim.csv --decision "Add to Claim"
  refundflow export claim.csv --consolidate   # one line per invoice`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	cmd.Flags().String("decision", "", "only export rows with this final decision")
	cmd.Flags().Bool("consolidate", false, "collapse rows sharing an invoice reference")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	decision, _ := cmd.Flags().GetString("decision")
	consolidate, _ := cmd.Flags().GetBool("consolidate")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStorage(store)

	rows, err := store.GetRows(ctx, service.RowFilter{Decision: model.Decision(decision)})
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}
	if consolidate {
		rows = engine.ConsolidateRows(rows)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range rows {
		if err := writer.Write(csvRecord(&rows[i])); err != nil {
			return fmt.Errorf("failed to write row %s: %w", rows[i].ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	cmd.Printf("Exported %d row(s) to %s\n", len(rows), path)
	return nil
}

func csvRecord(row *model.TransactionRow) []string {
	return []string{
		row.ID,
		strconv.Itoa(row.RowIndex),
		row.Vendor,
		row.InvoiceNumber,
		row.PONumber,
		row.PrimaryFileRef,
		row.AltFileRef,
		row.Description,
		formatMoneyPlain(row.Subtotal),
		formatMoneyPlain(row.TaxAmount),
		formatMoneyPlain(row.TaxRemitted),
		formatMoneyPlain(row.Total),
		row.TaxCategory,
		row.RefundBasis,
		row.Methodology,
		string(row.FinalDecision),
		strconv.Itoa(row.Confidence),
		formatMoneyPlain(row.EstimatedRefund),
		row.Citation,
		row.Notes,
	}
}

// formatMoneyPlain renders cents as an unadorned decimal for spreadsheets.
func formatMoneyPlain(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
