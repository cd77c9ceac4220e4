package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/metrics"
	"github.com/dukerupert/paysync/internal/billing/model"
	"github.com/dukerupert/paysync/internal/billing/store"
)

const maxEnsureAttempts = 3

// Directory maps accounts to provider customers, creating the customer on
// first use. The store's unique index on live mappings is the only lock.
type Directory struct {
	provider  Provider
	customers CustomerStore
	subs      SubscriptionStore
	logger    *slog.Logger
}

func NewDirectory(provider Provider, customers CustomerStore, subs SubscriptionStore, logger *slog.Logger) *Directory {
	return &Directory{
		provider:  provider,
		customers: customers,
		subs:      subs,
		logger:    logger.With("component", "customer_directory"),
	}
}

// EnsureCustomer returns the account's provider customer id, creating the
// customer and its mapping if none exists. In subscription mode the customer
// also gets a not_started subscription row.
func (d *Directory) EnsureCustomer(ctx context.Context, id auth.Identity, mode model.Mode) (string, error) {
	for attempt := 1; attempt <= maxEnsureAttempts; attempt++ {
		existing, err := d.customers.GetByAccountID(ctx, id.AccountID)
		if err != nil {
			return "", transient("lookup customer", err)
		}
		if existing != nil {
			if mode == model.ModeSubscription {
				if err := d.subs.InsertNotStarted(ctx, existing.CustomerID); err != nil {
					return "", transient("ensure subscription row", err)
				}
			}
			metrics.CustomersTotal.WithLabelValues("existing").Inc()
			return existing.CustomerID, nil
		}

		customerID, err := d.create(ctx, id, mode)
		if errors.Is(err, store.ErrConflict) {
			metrics.CustomersTotal.WithLabelValues("conflict").Inc()
			d.logger.Info("lost customer creation race, rereading", "account_id", id.AccountID, "attempt", attempt)
			continue
		}
		if err != nil {
			return "", err
		}
		metrics.CustomersTotal.WithLabelValues("created").Inc()
		d.logger.Info("customer created", "account_id", id.AccountID, "customer_id", customerID)
		return customerID, nil
	}
	return "", transient("ensure customer", fmt.Errorf("account %d: mapping still contended after %d attempts", id.AccountID, maxEnsureAttempts))
}

func (d *Directory) create(ctx context.Context, id auth.Identity, mode model.Mode) (string, error) {
	customerID, err := d.provider.CreateCustomer(ctx, id.Email, id.AccountID)
	if err != nil {
		return "", transient("create provider customer", err)
	}

	if _, err := d.customers.Insert(ctx, id.AccountID, customerID); err != nil {
		d.rollback(ctx, customerID, false)
		if errors.Is(err, store.ErrConflict) {
			return "", err
		}
		return "", transient("insert customer mapping", err)
	}

	if mode == model.ModeSubscription {
		if err := d.subs.InsertNotStarted(ctx, customerID); err != nil {
			d.rollback(ctx, customerID, true)
			return "", transient("insert subscription row", err)
		}
	}
	return customerID, nil
}

// rollback undoes a partially provisioned customer. It runs detached from
// the request's cancellation so a dropped client cannot leave an orphan.
func (d *Directory) rollback(ctx context.Context, customerID string, mapped bool) {
	ctx = context.WithoutCancel(ctx)
	metrics.CustomersTotal.WithLabelValues("rollback").Inc()

	if err := d.provider.DeleteCustomer(ctx, customerID); err != nil {
		d.logger.Error("rollback: delete provider customer", "customer_id", customerID, "error", err)
	}
	if err := d.subs.DeleteByCustomerID(ctx, customerID); err != nil {
		d.logger.Error("rollback: delete subscription row", "customer_id", customerID, "error", err)
	}
	if mapped {
		if err := d.customers.SoftDelete(ctx, customerID); err != nil {
			d.logger.Error("rollback: soft delete mapping", "customer_id", customerID, "error", err)
		}
	}
}
