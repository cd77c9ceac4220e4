package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/paysync/internal/billing/store"
	"github.com/dukerupert/paysync/internal/database"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts and API sessions",
	}
	cmd.AddCommand(accountCreateCmd())
	return cmd
}

func accountCreateCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "create [email]",
		Short: "Create an account (or reuse it) and print a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			accounts := store.NewAccountStore(db)
			account, err := accounts.GetByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			if account == nil {
				if account, err = accounts.Create(ctx, args[0]); err != nil {
					return err
				}
			}

			token, sess, err := store.NewSessionStore(db).Create(ctx, account.ID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "account %d (%s), session expires %s\n",
				account.ID, account.Email, sess.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "session lifetime")
	return cmd
}
