package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/paysync/internal/billing/model"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(s scanner) (*model.Order, error) {
	var o model.Order
	var status string
	err := s.Scan(
		&o.ID, &o.CheckoutSessionID, &o.PaymentIntentID, &o.CustomerID,
		&o.AmountSubtotal, &o.AmountTotal, &o.Currency, &o.PaymentStatus,
		&status, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

const orderCols = `id, checkout_session_id, payment_intent_id, customer_id, amount_subtotal, amount_total, currency, payment_status, status, created_at`

// Insert records an order. A second insert for the same checkout session
// returns ErrConflict.
func (s *OrderStore) Insert(ctx context.Context, o *model.Order) (*model.Order, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			checkout_session_id, payment_intent_id, customer_id,
			amount_subtotal, amount_total, currency, payment_status, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.CheckoutSessionID, o.PaymentIntentID, o.CustomerID,
		o.AmountSubtotal, o.AmountTotal, o.Currency, o.PaymentStatus, string(o.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert order: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return created, nil
}

func (s *OrderStore) GetBySessionID(ctx context.Context, sessionID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM orders WHERE checkout_session_id = ?`,
		sessionID,
	)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by session: %w", err)
	}
	return o, nil
}

// ListByAccountID returns orders placed through the account's customer
// mappings, newest first.
func (s *OrderStore) ListByAccountID(ctx context.Context, accountID int64) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.checkout_session_id, o.payment_intent_id, o.customer_id,
		       o.amount_subtotal, o.amount_total, o.currency, o.payment_status,
		       o.status, o.created_at
		FROM orders o
		JOIN billing_customers c ON c.customer_id = o.customer_id
		WHERE c.account_id = ? AND c.deleted_at IS NULL
		ORDER BY o.created_at DESC, o.id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}
