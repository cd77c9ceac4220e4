package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/catalog"
	"github.com/dukerupert/paysync/internal/billing/model"
)

type SubscriptionReader interface {
	GetByAccountID(ctx context.Context, accountID int64) (*model.Subscription, error)
}

type OrderLister interface {
	ListByAccountID(ctx context.Context, accountID int64) ([]model.Order, error)
}

type PremiumChecker interface {
	IsPremium(ctx context.Context, accountID int64) (bool, error)
}

// AccountHandler serves the authenticated account's billing views.
type AccountHandler struct {
	subs         SubscriptionReader
	orders       OrderLister
	entitlements PremiumChecker
	catalog      *catalog.Catalog
	logger       *slog.Logger
}

func NewAccountHandler(
	subs SubscriptionReader,
	orders OrderLister,
	entitlements PremiumChecker,
	cat *catalog.Catalog,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		subs:         subs,
		orders:       orders,
		entitlements: entitlements,
		catalog:      cat,
		logger:       logger,
	}
}

type subscriptionResponse struct {
	*model.Subscription
	ProductName *string `json:"product_name"`
	IsPremium   bool    `json:"is_premium"`
}

// Subscription returns the account's subscription row with its product
// name, or a not_started view when the account has never checked out.
func (h *AccountHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())

	sub, err := h.subs.GetByAccountID(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if sub == nil {
		sub = model.NotStartedSubscription("")
	}

	resp := subscriptionResponse{Subscription: sub, IsPremium: sub.Status.Premium()}
	if sub.PriceID != nil {
		if p, ok := h.catalog.ByPriceID(*sub.PriceID); ok {
			resp.ProductName = &p.Name
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Entitlements answers the premium gate for content services.
func (h *AccountHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	premium, err := h.entitlements.IsPremium(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"premium": premium})
}

func (h *AccountHandler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByAccountID(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *AccountHandler) Products(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Products())
}
