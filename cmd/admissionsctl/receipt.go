package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"admissions/internal/app"
	identitymodels "admissions/internal/identity/models"
	id "admissions/pkg/domain"
)

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt [payment-id]",
		Short: "Re-issue the PDF receipt of a successful payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID, err := id.ParsePaymentID(args[0])
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("out")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				operator := identitymodels.Caller{UserID: id.UserID(uuid.Nil), Role: identitymodels.RoleAdmin}
				pdf, name, err := a.Payments.Receipt(ctx, operator, paymentID)
				if err != nil {
					return err
				}
				path := filepath.Join(dir, name)
				if err := os.WriteFile(path, pdf, 0o644); err != nil {
					return fmt.Errorf("write receipt: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(pdf))
				return nil
			})
		},
	}
	cmd.Flags().StringP("out", "o", ".", "Directory to write the receipt into")
	return cmd
}
