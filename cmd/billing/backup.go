package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/paysync/internal/backup"
	"github.com/dukerupert/paysync/internal/config"
	"github.com/dukerupert/paysync/internal/database"
)

func backupCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload an encrypted snapshot of the billing database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			m, err := newBackupManager(cfg.Backup, db, logger)
			if err != nil {
				return err
			}

			key, err := m.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)

			if prune {
				n, err := m.Prune(cmd.Context(), cfg.Backup.Retention)
				if err != nil {
					return err
				}
				logger.Info("pruned old backups", "count", n, "retention", cfg.Backup.Retention)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", true, "delete snapshots older than BILLING_BACKUP_RETENTION")
	cmd.AddCommand(restoreCmd())
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [key] [path]",
		Short: "Download a snapshot into a new database file",
		Long: `Download, decrypt and integrity-check a snapshot, writing it to path.
The running database is left alone; stop the service and swap files by hand.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := newBackupManager(cfg.Backup, nil, logger)
			if err != nil {
				return err
			}
			return m.Restore(cmd.Context(), args[0], args[1])
		},
	}
}

func newBackupManager(cfg config.Backup, db *sql.DB, logger *slog.Logger) (*backup.Manager, error) {
	return backup.NewManager(db, backup.S3Config{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Prefix:    cfg.Prefix,
	}, cfg.Passphrase, logger.With("component", "backup"))
}
