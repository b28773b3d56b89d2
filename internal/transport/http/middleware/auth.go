package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-mystery-message/internal/domain"
	jwtinfra "github.com/go-mystery-message/internal/infrastructure/jwt"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Auth returns middleware that validates the Bearer JWT and injects the caller
// identity into the request context.
func Auth(provider *jwtinfra.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "Not Authenticated")
				return
			}
			claims, err := provider.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "Not Authenticated")
				return
			}
			ctx := context.WithValue(r.Context(), IdentityKey, claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext extracts the caller identity placed by Auth.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	who, ok := ctx.Value(IdentityKey).(domain.Identity)
	if !ok || !who.Valid() {
		return domain.Identity{}, false
	}
	return who, true
}
