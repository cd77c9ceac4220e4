package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/model"
	"github.com/dukerupert/paysync/internal/billing/service"
)

const checkoutBodyLimit = 64 * 1024

type CheckoutStarter interface {
	StartCheckout(ctx context.Context, id auth.Identity, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

type PortalCreator interface {
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type CustomerReader interface {
	GetByAccountID(ctx context.Context, accountID int64) (*model.BillingCustomer, error)
}

type CheckoutHandler struct {
	checkout  CheckoutStarter
	portal    PortalCreator
	customers CustomerReader
	baseURL   string
	logger    *slog.Logger
}

func NewCheckoutHandler(checkout CheckoutStarter, portal PortalCreator, customers CustomerReader, baseURL string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:  checkout,
		portal:    portal,
		customers: customers,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// CreateCheckoutSession starts a hosted checkout for the authenticated
// account and returns the session id and redirect URL.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate user")
		return
	}

	var req service.CheckoutRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, checkoutBodyLimit))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	res, err := h.checkout.StartCheckout(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BillingPortal creates a Stripe billing portal session for the account's
// customer and returns the URL.
func (h *CheckoutHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())
	if accountID == 0 {
		writeError(w, http.StatusUnauthorized, "Failed to authenticate user")
		return
	}

	customer, err := h.customers.GetByAccountID(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "no billing account")
		return
	}

	returnURL := r.Header.Get("Referer")
	if returnURL == "" {
		returnURL = h.baseURL
	}

	url, err := h.portal.CreateBillingPortalSession(r.Context(), customer.CustomerID, returnURL)
	if err != nil {
		h.logger.Error("create portal session", "customer_id", customer.CustomerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create portal session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
