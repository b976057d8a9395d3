package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/contractor-booking/internal/http/sessiontoken"
)

type contextKey string

const sessionClaimsKey contextKey = "sessionClaims"

// TokenVerifier checks a session bearer token.
type TokenVerifier interface {
	Verify(token string) (*sessiontoken.Claims, error)
}

// SessionAuth requires a session token whose subject matches the {param}
// URL parameter. Browsers cannot set headers on websocket upgrades, so the
// token may also arrive as the access_token query parameter.
func SessionAuth(verifier TokenVerifier, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				http.Error(w, "session auth disabled", http.StatusUnauthorized)
				return
			}
			tokenString := bearerToken(r)
			if tokenString == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := verifier.Verify(tokenString)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if id := chi.URLParam(r, param); id != "" && id != claims.SessionID() {
				http.Error(w, "token does not match session", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), sessionClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionClaimsFromContext returns the verified session claims if present.
func SessionClaimsFromContext(ctx context.Context) (*sessiontoken.Claims, bool) {
	claims, ok := ctx.Value(sessionClaimsKey).(*sessiontoken.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
