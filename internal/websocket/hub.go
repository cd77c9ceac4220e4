package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/paysync/internal/billing/model"
)

// Message is a push notification sent to the listeners of one customer.
type Message struct {
	Type         string              `json:"type"`
	CustomerID   string              `json:"customer_id"`
	Subscription *model.Subscription `json:"subscription,omitempty"`
}

const TypeSubscriptionUpdated = "subscription_updated"

// Hub tracks connected clients by customer and fans messages out to them.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[c.topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[c.topic] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[c.topic]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.topics, c.topic)
	}
}

// Publish sends msg to every client listening on topic.
func (h *Hub) Publish(topic string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block the publisher.
			h.logger.Warn("dropping message for slow client", "topic", topic, "type", msg.Type)
		}
	}
}

// SubscriptionUpdated pushes a reconciled subscription to its customer's
// listeners.
func (h *Hub) SubscriptionUpdated(customerID string, sub *model.Subscription) {
	h.Publish(customerID, Message{
		Type:         TypeSubscriptionUpdated,
		CustomerID:   customerID,
		Subscription: sub,
	})
}

// ClientCount returns the number of connected clients across all topics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.topics {
		n += len(set)
	}
	return n
}
