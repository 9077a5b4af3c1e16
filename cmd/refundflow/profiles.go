package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/refundworks/refundflow/internal/cli"
	"github.com/refundworks/refundflow/internal/model"
)

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage vendor behavioral profiles",
	}

	cmd.AddCommand(profilesRebuildCmd())
	cmd.AddCommand(profilesShowCmd())
	cmd.AddCommand(profilesListCmd())

	return cmd
}

func profilesRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild all vendor profiles from confirmed rows",
		Long: `Regenerate every vendor profile from the full human-confirmed
row set and replace the stored set atomically. Run this between
classification batches, never during one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			eng, store, err := buildEngine(ctx, false)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			stats, vendorErrs, err := eng.RebuildProfiles(ctx)
			if err != nil {
				return err
			}

			cmd.Printf("Rebuilt %d profile(s) from %d confirmed row(s)\n", stats.VendorsProfiled, stats.RowsConsumed)
			for _, vendorErr := range vendorErrs {
				cmd.Println(cli.WarningStyle.Render(fmt.Sprintf("skipped: %v", vendorErr)))
			}
			return nil
		},
	}
}

func profilesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <vendor>",
		Short: "Show one vendor's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer closeStorage(store)

			profile, err := store.GetProfile(ctx, model.NormalizeVendor(args[0]))
			if err != nil {
				return err
			}

			cmd.Print(cli.RenderProfile(profile))
			return nil
		},
	}
}

func profilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all vendor profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer closeStorage(store)

			profiles, err := store.GetAllProfiles(ctx)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				cmd.Println("No vendor profiles. Run 'refundflow profiles rebuild' after confirming rows.")
				return nil
			}

			for i := range profiles {
				p := &profiles[i]
				cmd.Printf("%-32s %4d row(s)  %s\n",
					p.VendorKey, p.TotalRows,
					cli.SubtleStyle.Render(p.DominantCategory.Value))
			}
			return nil
		},
	}
}
