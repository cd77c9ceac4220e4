package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/paysync/internal/billing/model"
)

// CustomerStore persists the account → provider customer mapping. A partial
// unique index allows a single live row per account.
type CustomerStore struct {
	db *sql.DB
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

func scanCustomer(s scanner) (*model.BillingCustomer, error) {
	var c model.BillingCustomer
	var deletedAt sql.NullTime
	if err := s.Scan(&c.ID, &c.AccountID, &c.CustomerID, &c.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return &c, nil
}

const customerCols = `id, account_id, customer_id, created_at, deleted_at`

// Insert records a new live mapping. It returns ErrConflict when the account
// already has a live mapping or the customer id is taken.
func (s *CustomerStore) Insert(ctx context.Context, accountID int64, customerID string) (*model.BillingCustomer, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO billing_customers (account_id, customer_id) VALUES (?, ?)`,
		accountID, customerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert billing customer: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert billing customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM billing_customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("get billing customer: %w", err)
	}
	return c, nil
}

// GetByAccountID returns the live mapping for the account, or nil.
func (s *CustomerStore) GetByAccountID(ctx context.Context, accountID int64) (*model.BillingCustomer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerCols+` FROM billing_customers WHERE account_id = ? AND deleted_at IS NULL`,
		accountID,
	)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get billing customer by account: %w", err)
	}
	return c, nil
}

// GetByCustomerID returns the mapping for a provider customer, including
// soft-deleted rows.
func (s *CustomerStore) GetByCustomerID(ctx context.Context, customerID string) (*model.BillingCustomer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerCols+` FROM billing_customers WHERE customer_id = ?`,
		customerID,
	)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get billing customer: %w", err)
	}
	return c, nil
}

// SoftDelete marks the mapping deleted. Deleting an already deleted or
// unknown customer is a no-op.
func (s *CustomerStore) SoftDelete(ctx context.Context, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE billing_customers SET deleted_at = CURRENT_TIMESTAMP WHERE customer_id = ? AND deleted_at IS NULL`,
		customerID,
	)
	if err != nil {
		return fmt.Errorf("soft delete billing customer: %w", err)
	}
	return nil
}
