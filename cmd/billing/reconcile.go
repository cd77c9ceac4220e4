package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/paysync/internal/billing/service"
	"github.com/dukerupert/paysync/internal/billing/store"
	billingstripe "github.com/dukerupert/paysync/internal/billing/stripe"
	"github.com/dukerupert/paysync/internal/database"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [customer-id]",
		Short: "Refresh one customer's subscription row from Stripe",
		Long: `Fetch the customer's most recent subscription from Stripe and store it,
exactly as a webhook delivery would. Use it to repair a row after missed
or failed deliveries.

Example:
  billing reconcile cus_NffrFeUfNV2Hib`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireStripe(); err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			client := billingstripe.NewClient(billingstripe.Config{
				SecretKey:     cfg.StripeSecretKey,
				WebhookSecret: cfg.StripeWebhookSecret,
			})
			r := service.NewReconciler(client, store.NewSubscriptionStore(db), nil, logger.With("component", "reconcile"))

			sub, err := r.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sub)
		},
	}
}
