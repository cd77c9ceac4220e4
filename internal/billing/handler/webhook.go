package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/paysync/internal/billing/event"
	"github.com/dukerupert/paysync/internal/billing/metrics"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

type EventIngestor interface {
	Ingest(ctx context.Context, body []byte, signature string) (event.Event, error)
}

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}

type WebhookHandler struct {
	ingestor EventIngestor
	logger   *slog.Logger
}

func NewWebhookHandler(ingestor EventIngestor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor, logger: logger}
}

// ServeHTTP verifies the Stripe signature and hands the event to the
// ingestor. Only transient failures answer 500, which makes Stripe redeliver.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeError(w, status, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeError(w, status, "failed to read request body")
		return
	}

	ev, err := h.ingestor.Ingest(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if ev != nil {
		eventType = ev.EventType()
	}
	if err != nil {
		status = writeServiceError(w, h.logger.With("event_type", eventType), err)
		return
	}

	writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
}
