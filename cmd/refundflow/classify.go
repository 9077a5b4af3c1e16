package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/refundworks/refundflow/internal/cli"
	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/service"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify transaction rows for refund eligibility",
		Long: `Run the classification pipeline over stored rows.

Rows whose INPUT columns have not changed since the last pass are skipped by
the change gate. Rules marked for semantic judgment are confirmed with the
configured provider; a failed call routes the row to manual review.

Examples:
  refundflow classify                    # classify everything eligible
  refundflow classify --vendor "ACME"    # one vendor's rows only
  refundflow classify --no-llm           # keyword rules only`,
		RunE: runClassify,
	}

	cmd.Flags().String("vendor", "", "restrict to one normalized vendor key")
	cmd.Flags().Bool("no-llm", false, "skip semantic refinement")
	cmd.Flags().IntP("workers", "w", 0, "concurrent classification workers")

	_ = viper.BindPFlag("classification.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	vendorKey, _ := cmd.Flags().GetString("vendor")
	noLLM, _ := cmd.Flags().GetBool("no-llm")

	slog.Info("Starting classification run", "vendor", vendorKey, "llm", !noLLM)

	eng, store, err := buildEngine(ctx, !noLLM)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	filter := service.RowFilter{VendorKey: model.NormalizeVendor(vendorKey)}
	stats, err := eng.ClassifyAll(ctx, filter)
	if err != nil {
		return fmt.Errorf("classification run failed: %w", err)
	}

	cmd.Print(cli.RenderCompletionStats(stats))
	return nil
}
