package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"admissions/internal/app"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Open an admission period with a starter course catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			year, _ := cmd.Flags().GetString("year")
			fee, _ := cmd.Flags().GetString("fee")
			days, _ := cmd.Flags().GetInt("days")

			amount, err := decimal.NewFromString(fee)
			if err != nil {
				return fmt.Errorf("invalid --fee %q: %w", fee, err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				period, err := a.SeedDemo(ctx, time.Now(), app.SeedOptions{
					PeriodName:     name,
					AcademicYear:   year,
					ApplicationFee: amount,
					OpenFor:        time.Duration(days) * 24 * time.Hour,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "opened %s (%s) until %s\n",
					period.Name, period.ID, period.EndsAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().String("name", "Undergraduate Admissions", "Admission period name")
	cmd.Flags().String("year", "", "Academic year, e.g. 2025-26 (defaults from today)")
	cmd.Flags().String("fee", "5000", "Base application fee")
	cmd.Flags().Int("days", 90, "Days the period stays open")
	return cmd
}

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin [email]",
		Short: "Create an ADMIN account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				user, err := a.Identity.CreateAdmin(ctx, args[0], password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("password", "", "Initial password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
