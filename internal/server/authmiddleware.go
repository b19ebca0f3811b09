package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/frenet-gateway/internal/pkg/auth"
)

// APIKeyContextKey is the context key for the authenticated API key.
const APIKeyContextKey contextKey = "api_key"

// AuthMiddleware validates API keys and injects the matching key into the context.
// If the authenticator is nil or has no keys, the middleware is a no-op.
// The API key is extracted from the Authorization header (Bearer token format).
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !authenticator.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract API key from Authorization header
			apiKey := r.Header.Get("Authorization")
			if apiKey == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Remove "Bearer " prefix if present
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}

			key, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			AddLogField(r.Context(), "api_key", key.Description)
			ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey retrieves the authenticated key from context.
// Returns nil if no key is set.
func GetAPIKey(ctx context.Context) *auth.Key {
	if k, ok := ctx.Value(APIKeyContextKey).(*auth.Key); ok {
		return k
	}
	return nil
}
