package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/catalog"
	"github.com/dukerupert/paysync/internal/billing/handler"
	"github.com/dukerupert/paysync/internal/billing/service"
	"github.com/dukerupert/paysync/internal/billing/store"
	billingstripe "github.com/dukerupert/paysync/internal/billing/stripe"
	"github.com/dukerupert/paysync/internal/middleware"
	"github.com/dukerupert/paysync/internal/websocket"
)

type Server struct {
	db            *sql.DB
	accountStore  *store.AccountStore
	sessionStore  *store.SessionStore
	customerStore *store.CustomerStore
	reconciler    *service.Reconciler
	webhookH      *handler.WebhookHandler
	checkoutH     *handler.CheckoutHandler
	accountH      *handler.AccountHandler
	hub           *websocket.Hub
	rateLimiter   *middleware.RateLimiter
	cfg           Config
	logger        *slog.Logger
}

type Config struct {
	Stripe            billingstripe.Config
	BaseURL           string
	Catalog           *catalog.Catalog
	RequestTimeout    time.Duration
	CheckoutRateLimit int // per account per minute
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	return NewWithClient(db, billingstripe.NewClient(cfg.Stripe), cfg, logger)
}

// NewWithClient builds the server around an existing Stripe client.
func NewWithClient(db *sql.DB, stripeClient *billingstripe.Client, cfg Config, logger *slog.Logger) *Server {
	if cfg.Catalog == nil {
		cfg.Catalog, _ = catalog.New(nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.CheckoutRateLimit <= 0 {
		cfg.CheckoutRateLimit = 10
	}

	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db)
	customerStore := store.NewCustomerStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)
	orderStore := store.NewOrderStore(db)

	hub := websocket.NewHub(logger.With("component", "websocket"))

	directory := service.NewDirectory(stripeClient, customerStore, subscriptionStore, logger)
	initiator := service.NewInitiator(stripeClient, directory, logger)
	reconciler := service.NewReconciler(stripeClient, subscriptionStore, hub, logger)
	orders := service.NewOrderRecorder(orderStore, logger)
	ingestor := service.NewIngestor(stripeClient, reconciler, orders, logger)
	entitlements := service.NewEntitlements(subscriptionStore)

	return &Server{
		db:            db,
		accountStore:  accountStore,
		sessionStore:  sessionStore,
		customerStore: customerStore,
		reconciler:    reconciler,
		webhookH:      handler.NewWebhookHandler(ingestor, logger.With("component", "webhook")),
		checkoutH:     handler.NewCheckoutHandler(initiator, stripeClient, customerStore, cfg.BaseURL, logger.With("component", "checkout")),
		accountH:      handler.NewAccountHandler(subscriptionStore, orderStore, entitlements, cfg.Catalog, logger.With("component", "account")),
		hub:           hub,
		rateLimiter:   middleware.NewRateLimiter(),
		cfg:           cfg,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Reconciler returns the subscription reconciler for operator commands.
func (s *Server) Reconciler() *service.Reconciler {
	return s.reconciler
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	authMw := middleware.RequireBearer(s.sessionStore, s.accountStore, s.logger.With("component", "auth"))
	timeout := middleware.Timeout(s.cfg.RequestTimeout)
	checkoutLimit := middleware.RateLimit(s.rateLimiter, middleware.ByAccount, s.cfg.CheckoutRateLimit, time.Minute)
	protected := func(h http.HandlerFunc) http.Handler {
		return authMw(timeout(h))
	}

	mux.HandleFunc("GET /health", s.healthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Stripe webhook (public, signature verified)
	mux.Handle("/webhooks/stripe", middleware.CORS("POST, OPTIONS")(timeout(s.webhookH)))

	// Checkout: preflight is answered before authentication.
	checkout := middleware.CORS("POST, OPTIONS")(
		authMw(checkoutLimit(timeout(http.HandlerFunc(s.checkoutH.CreateCheckoutSession)))),
	)
	mux.Handle("POST /api/checkout", checkout)
	mux.Handle("OPTIONS /api/checkout", checkout)
	mux.Handle("POST /api/billing-portal", protected(s.checkoutH.BillingPortal))

	mux.Handle("GET /api/subscription", protected(s.accountH.Subscription))
	mux.Handle("GET /api/entitlements", protected(s.accountH.Entitlements))
	mux.Handle("GET /api/orders", protected(s.accountH.Orders))
	mux.HandleFunc("GET /api/products", s.accountH.Products)

	// Long-lived: no request timeout.
	mux.Handle("GET /api/subscription/events", authMw(
		websocket.HandleSubscribe(s.hub, s.customerTopic, s.logger.With("component", "websocket")),
	))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

// customerTopic subscribes a socket to the caller's provider customer.
func (s *Server) customerTopic(r *http.Request) (string, bool, error) {
	c, err := s.customerStore.GetByAccountID(r.Context(), auth.AccountID(r.Context()))
	if err != nil || c == nil {
		return "", false, err
	}
	return c.CustomerID, true, nil
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
