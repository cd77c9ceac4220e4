package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/paysync/internal/billing/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Transient failures hide their cause from the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Failed to authenticate user")
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid Stripe signature")
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, "malformed event payload")
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
		return http.StatusNotFound
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return http.StatusInternalServerError
	}
}
