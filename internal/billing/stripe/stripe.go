package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/paysync/internal/billing/event"
	"github.com/dukerupert/paysync/internal/billing/model"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

// Client wraps one Stripe API handle. It holds no package-level state, so
// several clients with different keys can coexist.
type Client struct {
	cfg Config
	api *client.API
}

// NewClient builds a client on the default Stripe backends.
func NewClient(cfg Config) *Client {
	return NewClientWithBackends(cfg, nil)
}

// NewClientWithBackends builds a client on explicit backends; tests point
// these at an httptest server.
func NewClientWithBackends(cfg Config, backends *stripe.Backends) *Client {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Client{cfg: cfg, api: api}
}

// CreateCustomer creates a Stripe customer tagged with the owning account.
func (c *Client) CreateCustomer(ctx context.Context, email string, accountID int64) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"account_id": strconv.FormatInt(accountID, 10),
		},
	}
	params.Context = ctx
	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// DeleteCustomer removes a customer created by a request that failed before
// its local records were written.
func (c *Client) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := c.api.Customers.Del(customerID, params); err != nil {
		return fmt.Errorf("delete stripe customer %s: %w", customerID, err)
	}
	return nil
}

// CheckoutParams describes a hosted checkout session for one price.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	Mode       model.Mode
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the part of a created session the caller needs.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a Stripe checkout session for a single
// line item of quantity one, paid by card.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		Mode:               stripe.String(string(p.Mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreateBillingPortalSession creates a Stripe billing portal session and returns the URL.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// Snapshot is the current subscription state of a customer as reported by
// Stripe. Competing is set when more than one live subscription exists.
type Snapshot struct {
	Subscription *model.Subscription
	Competing    bool
}

// LatestSubscription fetches the customer's most recent subscription of any
// status, with its default payment method expanded. A customer without
// subscriptions yields a not_started snapshot.
func (c *Client) LatestSubscription(ctx context.Context, customerID string) (*Snapshot, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Limit = stripe.Int64(2)
	params.AddExpand("data.default_payment_method")
	params.Context = ctx

	var subs []*stripe.Subscription
	iter := c.api.Subscriptions.List(params)
	for len(subs) < 2 && iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", customerID, err)
	}
	return snapshot(customerID, subs), nil
}

// snapshot reduces a newest-first subscription list to the row we store.
func snapshot(customerID string, subs []*stripe.Subscription) *Snapshot {
	if len(subs) == 0 || subs[0] == nil {
		return &Snapshot{Subscription: model.NotStartedSubscription(customerID)}
	}
	snap := &Snapshot{Subscription: SubscriptionState(customerID, subs[0])}
	if len(subs) > 1 && subs[1] != nil && model.SubscriptionStatus(subs[1].Status).Live() && snap.Subscription.Status.Live() {
		snap.Competing = true
	}
	return snap
}

// SubscriptionState maps a Stripe subscription onto the stored row. Period
// bounds and price come from the first item; card details from the expanded
// default payment method when it is a card.
func SubscriptionState(customerID string, s *stripe.Subscription) *model.Subscription {
	sub := &model.Subscription{
		CustomerID:        customerID,
		SubscriptionID:    stripe.String(s.ID),
		Status:            model.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0] != nil {
		item := s.Items.Data[0]
		if item.Price != nil && item.Price.ID != "" {
			sub.PriceID = stripe.String(item.Price.ID)
		}
		if item.CurrentPeriodStart != 0 {
			sub.CurrentPeriodStart = stripe.Int64(item.CurrentPeriodStart)
		}
		if item.CurrentPeriodEnd != 0 {
			sub.CurrentPeriodEnd = stripe.Int64(item.CurrentPeriodEnd)
		}
	}
	if pm := s.DefaultPaymentMethod; pm != nil && pm.Card != nil {
		if brand := string(pm.Card.Brand); brand != "" {
			sub.PaymentMethodBrand = stripe.String(brand)
		}
		if pm.Card.Last4 != "" {
			sub.PaymentMethodLast4 = stripe.String(pm.Card.Last4)
		}
	}
	return sub
}

// ConstructEvent verifies the signature and returns the event envelope.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (event.Envelope, error) {
	return constructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}

func constructEvent(payload []byte, sigHeader, secret string) (event.Envelope, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return event.Envelope{}, errors.Join(event.ErrInvalidSignature, err)
	}
	env := event.Envelope{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		env.Object = ev.Data.Raw
	}
	return env, nil
}
