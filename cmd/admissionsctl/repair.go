package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"admissions/internal/app"
)

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Mark paid every application whose payment succeeded",
		Long: `Scans for applications that have a SUCCESS payment but still report an
unpaid status and sets them to SUCCESS. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				repaired, err := a.Payments.RepairApplications(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "repaired %d application(s)\n", repaired)
				return err
			})
		},
	}
}
