package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/paysync/internal/billing/catalog"
	"github.com/dukerupert/paysync/internal/billing/server"
	billingstripe "github.com/dukerupert/paysync/internal/billing/stripe"
	"github.com/dukerupert/paysync/internal/database"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the billing HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireStripe(); err != nil {
				return err
			}

			products, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			srv := server.New(db, server.Config{
				Stripe: billingstripe.Config{
					SecretKey:     cfg.StripeSecretKey,
					WebhookSecret: cfg.StripeWebhookSecret,
				},
				BaseURL:           cfg.BaseURL,
				Catalog:           products,
				RequestTimeout:    cfg.RequestTimeout,
				CheckoutRateLimit: cfg.CheckoutRateLimit,
			}, logger)

			addr := fmt.Sprintf(":%d", cfg.Port)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go cleanup(ctx, srv, cfg.SessionCleanup)

			errc := make(chan error, 1)
			go func() {
				slog.Info("billing service starting", "addr", addr, "products", len(products.Products()))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			select {
			case err := <-errc:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}

// cleanup prunes expired sessions and rate limit windows until ctx ends.
func cleanup(ctx context.Context, srv *server.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := srv.SessionStore().DeleteExpired(ctx); err != nil {
				slog.Error("cleanup expired sessions", "error", err)
			} else if n > 0 {
				slog.Info("cleaned up expired sessions", "count", n)
			}
			srv.RateLimiter().Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
