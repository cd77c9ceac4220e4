package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/metrics"
	"github.com/dukerupert/paysync/internal/billing/model"
	"github.com/dukerupert/paysync/internal/billing/stripe"
	"github.com/dukerupert/paysync/internal/billing/validate"
)

// CheckoutRequest is the body of a checkout start request.
type CheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	Mode       string `json:"mode" validate:"oneof=payment subscription"`
	SuccessURL string `json:"successUrl" validate:"required"`
	CancelURL  string `json:"cancelUrl" validate:"required"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Initiator opens hosted checkout sessions. It writes nothing locally
// beyond what the Directory provisions.
type Initiator struct {
	provider  Provider
	directory *Directory
	logger    *slog.Logger
}

func NewInitiator(provider Provider, directory *Directory, logger *slog.Logger) *Initiator {
	return &Initiator{
		provider:  provider,
		directory: directory,
		logger:    logger.With("component", "checkout"),
	}
}

func (i *Initiator) StartCheckout(ctx context.Context, id auth.Identity, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validate.Struct(req); err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			return nil, &ValidationError{Field: verr.Field, Message: verr.Message}
		}
		return nil, &ValidationError{Message: err.Error()}
	}
	mode := model.Mode(req.Mode)

	customerID, err := i.directory.EnsureCustomer(ctx, id, mode)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(req.Mode, "error").Inc()
		return nil, err
	}

	sess, err := i.provider.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		CustomerID: customerID,
		PriceID:    req.PriceID,
		Mode:       mode,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(req.Mode, "error").Inc()
		return nil, transient("create checkout session", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues(req.Mode, "ok").Inc()
	i.logger.Info("checkout session created",
		"account_id", id.AccountID,
		"customer_id", customerID,
		"session_id", sess.ID,
		"mode", req.Mode,
	)
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}
