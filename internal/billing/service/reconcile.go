package service

import (
	"context"
	"log/slog"

	"github.com/dukerupert/paysync/internal/billing/metrics"
	"github.com/dukerupert/paysync/internal/billing/model"
)

// Reconciler copies the provider's current subscription for a customer into
// the local store. Calls for the same customer may overlap; the upsert keyed
// by customer id makes the last writer win with provider truth either way.
type Reconciler struct {
	provider Provider
	subs     SubscriptionStore
	notifier Notifier
	logger   *slog.Logger
}

func NewReconciler(provider Provider, subs SubscriptionStore, notifier Notifier, logger *slog.Logger) *Reconciler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Reconciler{
		provider: provider,
		subs:     subs,
		notifier: notifier,
		logger:   logger.With("component", "reconciler"),
	}
}

// Reconcile fetches and stores the customer's latest subscription. Errors are
// transient and safe to retry.
func (r *Reconciler) Reconcile(ctx context.Context, customerID string) (*model.Subscription, error) {
	snap, err := r.provider.LatestSubscription(ctx, customerID)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("error").Inc()
		return nil, transient("fetch subscription", err)
	}
	if snap.Competing {
		metrics.CompetingSubscriptions.Inc()
		r.logger.Warn("customer has more than one live subscription, using the most recent",
			"customer_id", customerID,
			"subscription_id", deref(snap.Subscription.SubscriptionID),
		)
	}

	sub := snap.Subscription
	if err := r.subs.Upsert(ctx, sub); err != nil {
		metrics.ReconcileTotal.WithLabelValues("error").Inc()
		return nil, transient("upsert subscription", err)
	}

	metrics.ReconcileTotal.WithLabelValues("ok").Inc()
	r.logger.Info("subscription reconciled",
		"customer_id", customerID,
		"status", sub.Status,
		"subscription_id", deref(sub.SubscriptionID),
	)
	r.notifier.SubscriptionUpdated(customerID, sub)
	return sub, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
