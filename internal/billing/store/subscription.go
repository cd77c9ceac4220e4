package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/paysync/internal/billing/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(s scanner) (*model.Subscription, error) {
	var sub model.Subscription
	var subID, priceID, brand, last4 sql.NullString
	var periodStart, periodEnd sql.NullInt64
	var status string
	var cancelAtPeriodEnd int
	err := s.Scan(
		&sub.ID, &sub.CustomerID, &subID, &status, &priceID,
		&periodStart, &periodEnd, &cancelAtPeriodEnd, &brand, &last4,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = model.SubscriptionStatus(status)
	sub.SubscriptionID = stringPtr(subID)
	sub.PriceID = stringPtr(priceID)
	sub.PaymentMethodBrand = stringPtr(brand)
	sub.PaymentMethodLast4 = stringPtr(last4)
	sub.CurrentPeriodStart = int64Ptr(periodStart)
	sub.CurrentPeriodEnd = int64Ptr(periodEnd)
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	return &sub, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

const subscriptionCols = `id, customer_id, subscription_id, status, price_id, current_period_start, current_period_end, cancel_at_period_end, payment_method_brand, payment_method_last4, created_at, updated_at`

// Upsert writes the full provider state for sub.CustomerID: insert, or on a
// customer_id conflict overwrite every provider-derived column. updated_at
// only moves when one of those columns actually changes, so replaying the
// same state leaves the row untouched.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub *model.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			customer_id, subscription_id, status, price_id,
			current_period_start, current_period_end, cancel_at_period_end,
			payment_method_brand, payment_method_last4
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			subscription_id      = excluded.subscription_id,
			status               = excluded.status,
			price_id             = excluded.price_id,
			current_period_start = excluded.current_period_start,
			current_period_end   = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			payment_method_brand = excluded.payment_method_brand,
			payment_method_last4 = excluded.payment_method_last4,
			updated_at           = CURRENT_TIMESTAMP
		WHERE subscriptions.subscription_id      IS NOT excluded.subscription_id
		   OR subscriptions.status               IS NOT excluded.status
		   OR subscriptions.price_id             IS NOT excluded.price_id
		   OR subscriptions.current_period_start IS NOT excluded.current_period_start
		   OR subscriptions.current_period_end   IS NOT excluded.current_period_end
		   OR subscriptions.cancel_at_period_end IS NOT excluded.cancel_at_period_end
		   OR subscriptions.payment_method_brand IS NOT excluded.payment_method_brand
		   OR subscriptions.payment_method_last4 IS NOT excluded.payment_method_last4`,
		sub.CustomerID, nullString(sub.SubscriptionID), string(sub.Status), nullString(sub.PriceID),
		nullInt64(sub.CurrentPeriodStart), nullInt64(sub.CurrentPeriodEnd), boolInt(sub.CancelAtPeriodEnd),
		nullString(sub.PaymentMethodBrand), nullString(sub.PaymentMethodLast4),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// InsertNotStarted creates a not_started row for the customer unless one
// already exists.
func (s *SubscriptionStore) InsertNotStarted(ctx context.Context, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (customer_id, status) VALUES (?, ?) ON CONFLICT(customer_id) DO NOTHING`,
		customerID, string(model.StatusNotStarted),
	)
	if err != nil {
		return fmt.Errorf("insert not_started subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE customer_id = ?`,
		customerID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by customer: %w", err)
	}
	return sub, nil
}

// GetByAccountID returns the subscription of the account's live customer
// mapping, or nil.
func (s *SubscriptionStore) GetByAccountID(ctx context.Context, accountID int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.customer_id, s.subscription_id, s.status, s.price_id,
		       s.current_period_start, s.current_period_end, s.cancel_at_period_end,
		       s.payment_method_brand, s.payment_method_last4, s.created_at, s.updated_at
		FROM subscriptions s
		JOIN billing_customers c ON c.customer_id = s.customer_id
		WHERE c.account_id = ? AND c.deleted_at IS NULL`,
		accountID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by account: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) DeleteByCustomerID(ctx context.Context, customerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE customer_id = ?`, customerID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
