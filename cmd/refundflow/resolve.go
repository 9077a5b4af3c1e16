package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/refundworks/refundflow/internal/model"
	"github.com/refundworks/refundflow/internal/profile"
)

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <vendor> <methodology>",
		Short: "Resolve the allocation percentage for a vendor and methodology",
		Long: `Report which allocation percentage would apply: the vendor's
historical average when one exists, otherwise the global default from the
allocation config. Prints "unresolved" when neither exists.`,
		Args: cobra.ExactArgs(2),
		RunE: runResolve,
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	vendorKey := model.NormalizeVendor(args[0])
	methodology := args[1]

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStorage(store)

	defaults, err := loadAllocationDefaults()
	if err != nil {
		return err
	}

	profiles, err := store.GetAllProfiles(ctx)
	if err != nil {
		return err
	}

	resolver, err := profile.NewResolver(profiles, defaults)
	if err != nil {
		return err
	}

	pct := resolver.Resolve(vendorKey, methodology)
	if pct == nil {
		cmd.Printf("%s / %s: unresolved (manual input required)\n", vendorKey, methodology)
		return nil
	}

	source := "global default"
	for i := range profiles {
		if profiles[i].VendorKey != vendorKey {
			continue
		}
		if stats, ok := profiles[i].MethodologyMix[methodology]; ok && stats.AveragePct != nil {
			source = fmt.Sprintf("vendor average over %d row(s)", stats.Count)
		}
	}

	cmd.Printf("%s / %s: %.1f%% (%s)\n", vendorKey, methodology, *pct*100, source)
	return nil
}
