// Package middleware carries the HTTP middleware: request
// authentication via the principal resolver, and request logging.
package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/services/iam"
)

// Credentials are the session and refresh tokens extracted from one
// request, plus the raw headers forwarded on proxied gateway calls.
type Credentials struct {
	SessionToken string
	RefreshToken string

	Authorization string
	Cookie        string
}

// ExtractCredentials pulls tokens from the Authorization header first,
// then falls back to the identity provider's session cookies.
func ExtractCredentials(r *http.Request, cfg config.IdentityConfig) Credentials {
	creds := Credentials{
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
	}

	if header := creds.Authorization; header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			creds.SessionToken = strings.TrimSpace(token)
		}
	}
	if creds.SessionToken == "" {
		if cookie, err := r.Cookie(cfg.SessionCookieName); err == nil {
			creds.SessionToken = cookie.Value
		}
	}
	if cookie, err := r.Cookie(cfg.RefreshCookieName); err == nil {
		creds.RefreshToken = cookie.Value
	}
	return creds
}

// Authentication resolves the request principal and stores it in the
// request context. Resolution failures end the request with 401; the
// anonymous path (when enabled) resolves without touching the identity
// provider, so every handler downstream always finds a principal.
func Authentication(resolver *iam.Resolver, cfg config.IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			creds := ExtractCredentials(r, cfg)

			principal, err := resolver.Resolve(ctx, creds.SessionToken, creds.RefreshToken)
			if err != nil {
				log.Printf("INFO: authentication failed for %s %s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication failed"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(iam.WithPrincipal(ctx, principal)))
		})
	}
}
