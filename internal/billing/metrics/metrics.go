// Package metrics holds the Prometheus collectors for the billing service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ReconcileTotal counts subscription reconciliations by outcome.
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "reconcile_total",
		Help:      "Subscription reconciliations by outcome (ok/error).",
	}, []string{"outcome"})

	// CompetingSubscriptions counts customers seen with more than one live subscription.
	CompetingSubscriptions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "competing_subscriptions_total",
		Help:      "Reconciliations that found more than one live subscription for a customer.",
	})

	// CustomersTotal counts customer provisioning attempts by outcome.
	CustomersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "customers_total",
		Help:      "Customer provisioning by outcome (existing/created/conflict/rollback).",
	}, []string{"outcome"})

	// CheckoutSessionsTotal counts checkout sessions by mode and outcome.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "checkout_sessions_total",
		Help:      "Checkout sessions started by mode and outcome.",
	}, []string{"mode", "outcome"})

	// OrdersTotal counts one-time orders by outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysync",
		Subsystem: "billing",
		Name:      "orders_total",
		Help:      "One-time orders recorded by outcome (created/duplicate).",
	}, []string{"outcome"})
)
