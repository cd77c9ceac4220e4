package model

import "time"

type Account struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// BillingCustomer links an account to its provider-side customer.
type BillingCustomer struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	CustomerID string     `json:"customer_id"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Mode is the checkout mode requested by the client.
type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// SubscriptionStatus mirrors the provider's subscription status, plus
// not_started for customers that have never subscribed.
type SubscriptionStatus string

const (
	StatusNotStarted        SubscriptionStatus = "not_started"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// Premium reports whether the status grants access to premium content.
func (s SubscriptionStatus) Premium() bool {
	return s == StatusActive || s == StatusTrialing
}

// Live reports whether the status describes a subscription that can still
// bill or grant access.
func (s SubscriptionStatus) Live() bool {
	switch s {
	case StatusNotStarted, StatusCanceled, StatusIncompleteExpired:
		return false
	}
	return true
}

// Subscription is the latest known provider state for one customer.
// Period bounds are epoch seconds.
type Subscription struct {
	ID                 int64              `json:"-"`
	CustomerID         string             `json:"customer_id"`
	SubscriptionID     *string            `json:"subscription_id"`
	Status             SubscriptionStatus `json:"subscription_status"`
	PriceID            *string            `json:"price_id"`
	CurrentPeriodStart *int64             `json:"current_period_start"`
	CurrentPeriodEnd   *int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	PaymentMethodBrand *string            `json:"payment_method_brand"`
	PaymentMethodLast4 *string            `json:"payment_method_last4"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NotStartedSubscription is the row for a customer with no provider
// subscription: every provider-derived field is cleared.
func NotStartedSubscription(customerID string) *Subscription {
	return &Subscription{
		CustomerID: customerID,
		Status:     StatusNotStarted,
	}
}

// SameState reports whether two rows carry identical provider state,
// ignoring surrogate keys and timestamps.
func (s *Subscription) SameState(o *Subscription) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.CustomerID == o.CustomerID &&
		eqString(s.SubscriptionID, o.SubscriptionID) &&
		s.Status == o.Status &&
		eqString(s.PriceID, o.PriceID) &&
		eqInt64(s.CurrentPeriodStart, o.CurrentPeriodStart) &&
		eqInt64(s.CurrentPeriodEnd, o.CurrentPeriodEnd) &&
		s.CancelAtPeriodEnd == o.CancelAtPeriodEnd &&
		eqString(s.PaymentMethodBrand, o.PaymentMethodBrand) &&
		eqString(s.PaymentMethodLast4, o.PaymentMethodLast4)
}

func eqString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCanceled  OrderStatus = "canceled"
)

type Order struct {
	ID                int64       `json:"id"`
	CheckoutSessionID string      `json:"checkout_session_id"`
	PaymentIntentID   string      `json:"payment_intent_id"`
	CustomerID        string      `json:"customer_id"`
	AmountSubtotal    int64       `json:"amount_subtotal"`
	AmountTotal       int64       `json:"amount_total"`
	Currency          string      `json:"currency"`
	PaymentStatus     string      `json:"payment_status"`
	Status            OrderStatus `json:"order_status"`
	CreatedAt         time.Time   `json:"order_date"`
}
