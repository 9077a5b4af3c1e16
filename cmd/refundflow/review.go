package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/refundworks/refundflow/internal/cli"
	"github.com/refundworks/refundflow/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the manual review queue",
		Long: `List rows awaiting human attention: explicit Needs Review
decisions plus anything classified below the review threshold.`,
		RunE: runReviewList,
	}

	cmd.AddCommand(reviewConfirmCmd())

	return cmd
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	eng, store, err := buildEngine(ctx, false)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	queue, err := eng.ReviewQueue(ctx)
	if err != nil {
		return err
	}

	cmd.Print(cli.RenderReviewQueue(queue))
	return nil
}

func reviewConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <row-id>...",
		Short: "Mark rows as analyst-confirmed",
		Long: `Confirm that a row's classification has been reviewed and
approved. Confirmed rows feed the next vendor profile rebuild.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runReviewConfirm,
	}

	cmd.Flags().Bool("revoke", false, "withdraw a previous confirmation")

	return cmd
}

func runReviewConfirm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	revoke, _ := cmd.Flags().GetBool("revoke")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStorage(store)

	for _, id := range args {
		row, err := store.GetRow(ctx, id)
		if err != nil {
			return err
		}
		if !revoke && row.FinalDecision == model.DecisionUnclassified {
			return fmt.Errorf("row %s is unclassified and cannot be confirmed", id)
		}

		if err := store.MarkConfirmed(ctx, id, !revoke); err != nil {
			return err
		}
	}

	verb := "Confirmed"
	if revoke {
		verb = "Unconfirmed"
	}
	cmd.Printf("%s %d row(s)\n", verb, len(args))
	return nil
}
