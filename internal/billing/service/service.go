// Package service implements the billing synchronizer: customer provisioning,
// checkout, webhook ingestion, subscription reconciliation and order
// recording. Collaborators are injected through the interfaces below.
package service

import (
	"context"

	"github.com/dukerupert/paysync/internal/billing/event"
	"github.com/dukerupert/paysync/internal/billing/model"
	"github.com/dukerupert/paysync/internal/billing/stripe"
)

// Provider is the subset of the payment provider API the service calls.
type Provider interface {
	CreateCustomer(ctx context.Context, email string, accountID int64) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (*stripe.CheckoutSession, error)
	LatestSubscription(ctx context.Context, customerID string) (*stripe.Snapshot, error)
}

// Verifier authenticates a webhook payload against its signature header.
type Verifier interface {
	ConstructEvent(payload []byte, sigHeader string) (event.Envelope, error)
}

type CustomerStore interface {
	Insert(ctx context.Context, accountID int64, customerID string) (*model.BillingCustomer, error)
	GetByAccountID(ctx context.Context, accountID int64) (*model.BillingCustomer, error)
	SoftDelete(ctx context.Context, customerID string) error
}

type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *model.Subscription) error
	InsertNotStarted(ctx context.Context, customerID string) error
	GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error)
	GetByAccountID(ctx context.Context, accountID int64) (*model.Subscription, error)
	DeleteByCustomerID(ctx context.Context, customerID string) error
}

type OrderStore interface {
	Insert(ctx context.Context, o *model.Order) (*model.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Order, error)
}

// Notifier is told about every reconciled subscription row.
type Notifier interface {
	SubscriptionUpdated(customerID string, sub *model.Subscription)
}

type nopNotifier struct{}

func (nopNotifier) SubscriptionUpdated(string, *model.Subscription) {}
