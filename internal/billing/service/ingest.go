package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/paysync/internal/billing/event"
)

// Ingestor verifies provider webhooks and routes them to the reconciler or
// the order recorder. It mutates no state itself.
type Ingestor struct {
	verifier   Verifier
	reconciler *Reconciler
	orders     *OrderRecorder
	logger     *slog.Logger
}

func NewIngestor(verifier Verifier, reconciler *Reconciler, orders *OrderRecorder, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		verifier:   verifier,
		reconciler: reconciler,
		orders:     orders,
		logger:     logger.With("component", "ingestor"),
	}
}

// Ingest handles one webhook delivery and returns the decoded event, which
// is nil when verification fails. ErrInvalidSignature and ErrMalformedEvent
// are terminal; a *TransientError asks the sender to redeliver.
func (in *Ingestor) Ingest(ctx context.Context, body []byte, signature string) (event.Event, error) {
	env, err := in.verifier.ConstructEvent(body, signature)
	if err != nil {
		in.logger.Warn("webhook signature verification failed", "security", true, "error", err)
		if !errors.Is(err, ErrInvalidSignature) {
			err = errors.Join(ErrInvalidSignature, err)
		}
		return nil, err
	}

	ev, err := event.Parse(env)
	if err != nil {
		in.logger.Warn("malformed webhook payload", "event_id", env.ID, "type", env.Type, "error", err)
		return nil, err
	}

	if _, ok := ev.(event.Unhandled); ok {
		in.logger.Debug("ignoring webhook", "event_id", ev.EventID(), "type", ev.EventType())
		return ev, nil
	}
	if ev.Customer() == "" {
		in.logger.Warn("webhook has no customer, discarding", "event_id", ev.EventID(), "type", ev.EventType())
		return ev, nil
	}

	return ev, in.dispatch(ctx, ev)
}

func (in *Ingestor) dispatch(ctx context.Context, ev event.Event) error {
	log := in.logger.With("event_id", ev.EventID(), "type", ev.EventType(), "customer_id", ev.Customer())

	switch e := ev.(type) {
	case event.SubscriptionChanged, event.InvoiceChanged:
		_, err := in.reconciler.Reconcile(ctx, e.Customer())
		return err

	case event.CheckoutCompleted:
		switch {
		case e.Mode == "subscription":
			_, err := in.reconciler.Reconcile(ctx, e.CustomerID)
			return err
		case e.Paid():
			_, err := in.orders.RecordOrder(ctx, e)
			return err
		default:
			log.Info("checkout completed without settled payment", "mode", e.Mode, "payment_status", e.PaymentStatus)
			return nil
		}

	case event.PaymentSucceeded:
		if !e.HasInvoice {
			log.Debug("one-time payment intent, handled by checkout completion")
			return nil
		}
		_, err := in.reconciler.Reconcile(ctx, e.CustomerID)
		return err
	}
	return nil
}
