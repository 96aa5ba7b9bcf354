// Command admissionsctl runs operator tasks against the admissions stores.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"admissions/internal/app"
	"admissions/internal/platform/config"
	"admissions/internal/platform/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "admissionsctl",
		Short:         "Operator tools for the admission portal payment core",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file (overrides ADMISSIONS_CONFIG)")

	rootCmd.AddCommand(repairCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp builds the object graph, runs fn and drains side effects.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("ADMISSIONS_CONFIG", path); err != nil {
			return err
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required; in-memory stores do not outlive the command")
	}

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel))
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
