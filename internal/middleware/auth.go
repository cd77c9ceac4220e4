package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/model"
)

type SessionLookup interface {
	GetByToken(ctx context.Context, token string) (*model.Session, error)
}

type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
}

// RequireBearer resolves the Authorization bearer token to an account and
// stores its auth.Identity in the request context.
func RequireBearer(sessions SessionLookup, accounts AccountLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				jsonError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				jsonError(w, http.StatusUnauthorized, "Failed to authenticate user")
				return
			}

			sess, err := sessions.GetByToken(r.Context(), token)
			if err != nil {
				logger.Error("session lookup", "error", err)
				jsonError(w, http.StatusInternalServerError, "Failed to authenticate user")
				return
			}
			if sess == nil {
				logger.Warn("rejected bearer token", "security", true, "remote", RealIP(r))
				jsonError(w, http.StatusUnauthorized, "Failed to authenticate user")
				return
			}

			account, err := accounts.GetByID(r.Context(), sess.AccountID)
			if err != nil {
				logger.Error("account lookup", "account_id", sess.AccountID, "error", err)
				jsonError(w, http.StatusInternalServerError, "Failed to authenticate user")
				return
			}
			if account == nil {
				jsonError(w, http.StatusNotFound, "User not found")
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{
				AccountID: account.ID,
				Email:     account.Email,
				SessionID: sess.ID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
