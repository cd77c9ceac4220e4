// Package event turns verified provider webhook payloads into a closed set
// of typed events. Kinds this service does not act on decode to Unhandled.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSignature is returned by verifiers when a payload's
	// signature header is missing, stale or does not match the secret.
	ErrInvalidSignature = errors.New("event: invalid signature")

	// ErrMalformed is returned when a verified payload cannot be decoded.
	ErrMalformed = errors.New("event: malformed payload")
)

// Envelope is a signature-verified event before its object is decoded.
type Envelope struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// Event is one of SubscriptionChanged, InvoiceChanged, CheckoutCompleted,
// PaymentSucceeded or Unhandled.
type Event interface {
	EventID() string
	EventType() string
	// Customer returns the provider customer the event concerns, or "".
	Customer() string
	isEvent()
}

type base struct {
	ID   string
	Type string
}

func (b base) EventID() string   { return b.ID }
func (b base) EventType() string { return b.Type }
func (base) isEvent()            {}

// SubscriptionChanged covers customer.subscription.* lifecycle events.
type SubscriptionChanged struct {
	base
	CustomerID     string
	SubscriptionID string
	Status         string
}

func (e SubscriptionChanged) Customer() string { return e.CustomerID }

// InvoiceChanged covers invoice payment outcomes, which move subscription
// status (e.g. to past_due) without a subscription event of their own.
type InvoiceChanged struct {
	base
	CustomerID string
	InvoiceID  string
}

func (e InvoiceChanged) Customer() string { return e.CustomerID }

// CheckoutCompleted is a finished hosted checkout session.
type CheckoutCompleted struct {
	base
	SessionID       string
	CustomerID      string
	Mode            string
	PaymentStatus   string
	PaymentIntentID string
	AmountSubtotal  int64
	AmountTotal     int64
	Currency        string
}

func (e CheckoutCompleted) Customer() string { return e.CustomerID }

// Paid reports whether this is a settled one-time payment.
func (e CheckoutCompleted) Paid() bool {
	return e.Mode == "payment" && e.PaymentStatus == "paid"
}

// PaymentSucceeded is a payment_intent.succeeded event.
type PaymentSucceeded struct {
	base
	PaymentIntentID string
	CustomerID      string
	// HasInvoice is set when the intent pays an invoice (a subscription
	// charge) rather than a one-time checkout.
	HasInvoice bool
}

func (e PaymentSucceeded) Customer() string { return e.CustomerID }

// Unhandled is any event kind outside this service's scope.
type Unhandled struct {
	base
	CustomerID string
}

func (e Unhandled) Customer() string { return e.CustomerID }

var subscriptionTypes = map[string]bool{
	"customer.subscription.created":                true,
	"customer.subscription.updated":                true,
	"customer.subscription.deleted":                true,
	"customer.subscription.paused":                 true,
	"customer.subscription.resumed":                true,
	"customer.subscription.trial_will_end":         true,
	"customer.subscription.pending_update_applied": true,
	"customer.subscription.pending_update_expired": true,
}

var invoiceTypes = map[string]bool{
	"invoice.paid":              true,
	"invoice.payment_succeeded": true,
	"invoice.payment_failed":    true,
}

// Parse decodes env.Object according to env.Type.
func Parse(env Envelope) (Event, error) {
	b := base{ID: env.ID, Type: env.Type}
	if len(env.Object) == 0 {
		return nil, fmt.Errorf("%w: %s has no data object", ErrMalformed, env.Type)
	}

	switch {
	case subscriptionTypes[env.Type]:
		var obj struct {
			ID       string    `json:"id"`
			Customer reference `json:"customer"`
			Status   string    `json:"status"`
		}
		if err := decode(env, &obj); err != nil {
			return nil, err
		}
		return SubscriptionChanged{base: b, CustomerID: obj.Customer.ID, SubscriptionID: obj.ID, Status: obj.Status}, nil

	case invoiceTypes[env.Type]:
		var obj struct {
			ID       string    `json:"id"`
			Customer reference `json:"customer"`
		}
		if err := decode(env, &obj); err != nil {
			return nil, err
		}
		return InvoiceChanged{base: b, CustomerID: obj.Customer.ID, InvoiceID: obj.ID}, nil

	case env.Type == "checkout.session.completed", env.Type == "checkout.session.async_payment_succeeded":
		var obj struct {
			ID             string    `json:"id"`
			Customer       reference `json:"customer"`
			Mode           string    `json:"mode"`
			PaymentStatus  string    `json:"payment_status"`
			PaymentIntent  reference `json:"payment_intent"`
			AmountSubtotal int64     `json:"amount_subtotal"`
			AmountTotal    int64     `json:"amount_total"`
			Currency       string    `json:"currency"`
		}
		if err := decode(env, &obj); err != nil {
			return nil, err
		}
		return CheckoutCompleted{
			base:            b,
			SessionID:       obj.ID,
			CustomerID:      obj.Customer.ID,
			Mode:            obj.Mode,
			PaymentStatus:   obj.PaymentStatus,
			PaymentIntentID: obj.PaymentIntent.ID,
			AmountSubtotal:  obj.AmountSubtotal,
			AmountTotal:     obj.AmountTotal,
			Currency:        obj.Currency,
		}, nil

	case env.Type == "payment_intent.succeeded":
		var obj struct {
			ID       string    `json:"id"`
			Customer reference `json:"customer"`
			Invoice  reference `json:"invoice"`
		}
		if err := decode(env, &obj); err != nil {
			return nil, err
		}
		return PaymentSucceeded{base: b, PaymentIntentID: obj.ID, CustomerID: obj.Customer.ID, HasInvoice: obj.Invoice.ID != ""}, nil

	default:
		var obj struct {
			Customer reference `json:"customer"`
		}
		// Out-of-scope objects may not be JSON objects at all; their
		// customer is informational only.
		_ = json.Unmarshal(env.Object, &obj)
		return Unhandled{base: b, CustomerID: obj.Customer.ID}, nil
	}
}

func decode(env Envelope, v any) error {
	if err := json.Unmarshal(env.Object, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

// reference is a provider field that is either an id string, an expanded
// object with an "id", or null.
type reference struct {
	ID string
}

func (r *reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.ID = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.ID = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = strings.TrimSpace(obj.ID)
	return nil
}
