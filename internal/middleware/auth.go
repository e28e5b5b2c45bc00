// Package middleware provides the HTTP middleware for the API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/storage"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

// HeaderAPIKey is the credential header clients must send.
const HeaderAPIKey = "Api-Key"

type contextKey string

const identityKey contextKey = "identity"

// KeyResolver resolves a raw API key to its identity.
type KeyResolver interface {
	Authenticate(ctx context.Context, key string) (identity.Identity, error)
}

// APIKeyAuth authenticates requests by the Api-Key header. A missing header
// yields 401; an unknown key yields 403. Status and budget checks happen
// later in the quota ledger, not here.
type APIKeyAuth struct {
	resolver KeyResolver
	log      *logger.Logger
}

// NewAPIKeyAuth creates the authentication middleware.
func NewAPIKeyAuth(resolver KeyResolver, log *logger.Logger) *APIKeyAuth {
	return &APIKeyAuth{resolver: resolver, log: log}
}

// Handler returns the middleware handler.
func (m *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			writeMessage(w, http.StatusUnauthorized, "missing Api-Key header")
			return
		}

		ident, err := m.resolver.Authenticate(r.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeMessage(w, http.StatusForbidden, "invalid api key")
				return
			}
			m.log.WithError(err).Error("api key lookup failed")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, ident identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFrom extracts the authenticated identity, if any.
func IdentityFrom(ctx context.Context) (identity.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(identity.Identity)
	return ident, ok
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
