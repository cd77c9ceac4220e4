package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/paysync/internal/billing/event"
	"github.com/dukerupert/paysync/internal/billing/metrics"
	"github.com/dukerupert/paysync/internal/billing/model"
	"github.com/dukerupert/paysync/internal/billing/store"
)

// OrderRecorder stores one order per completed one-time checkout session.
type OrderRecorder struct {
	orders OrderStore
	logger *slog.Logger
}

func NewOrderRecorder(orders OrderStore, logger *slog.Logger) *OrderRecorder {
	return &OrderRecorder{
		orders: orders,
		logger: logger.With("component", "orders"),
	}
}

// RecordOrder inserts the order for ev's session. A redelivered event finds
// the row already present and returns it without error.
func (r *OrderRecorder) RecordOrder(ctx context.Context, ev event.CheckoutCompleted) (*model.Order, error) {
	o, err := r.orders.Insert(ctx, &model.Order{
		CheckoutSessionID: ev.SessionID,
		PaymentIntentID:   ev.PaymentIntentID,
		CustomerID:        ev.CustomerID,
		AmountSubtotal:    ev.AmountSubtotal,
		AmountTotal:       ev.AmountTotal,
		Currency:          ev.Currency,
		PaymentStatus:     ev.PaymentStatus,
		Status:            model.OrderCompleted,
	})
	if errors.Is(err, store.ErrConflict) {
		metrics.OrdersTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("order already recorded", "session_id", ev.SessionID)
		existing, err := r.orders.GetBySessionID(ctx, ev.SessionID)
		if err != nil {
			return nil, transient("get order", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, transient("insert order", err)
	}

	metrics.OrdersTotal.WithLabelValues("created").Inc()
	r.logger.Info("order recorded",
		"session_id", o.CheckoutSessionID,
		"customer_id", o.CustomerID,
		"amount_total", o.AmountTotal,
		"currency", o.Currency,
	)
	return o, nil
}
