// Package auth guards the HTTP boundary: it validates inbound bearer
// credentials, places the resulting Principal on the request context,
// and enforces per-principal rate limits.
package auth

import (
	"net/http"
	"strings"

	"github.com/beaconops/vigil/pkg/api"
	"github.com/beaconops/vigil/pkg/token"
)

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/readiness",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware creates bearer-credential auth middleware backed by the
// token service. If tokens is nil, all non-public requests are rejected
// (fail closed).
func NewMiddleware(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if tokens == nil {
				api.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired credential")
				return
			}

			principal := &Principal{
				ID:        claims.Subject,
				AgentID:   claims.AgentID,
				UserID:    claims.UserID,
				Scopes:    claims.Scopes(),
				Delegated: claims.Delegation != nil,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}
