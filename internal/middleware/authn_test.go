package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/identity"
	"github.com/opsgate/opsgate/internal/services/iam"
)

func identityCfg() config.IdentityConfig {
	return config.IdentityConfig{
		SessionCookieName: "DS",
		RefreshCookieName: "DSR",
	}
}

func TestExtractCredentials_BearerHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	r.Header.Set("Authorization", "Bearer token-abc")

	creds := ExtractCredentials(r, identityCfg())
	require.Equal(t, "token-abc", creds.SessionToken)
	require.Equal(t, "Bearer token-abc", creds.Authorization)
	require.Empty(t, creds.RefreshToken)
}

func TestExtractCredentials_CookieFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	r.AddCookie(&http.Cookie{Name: "DS", Value: "cookie-session"})
	r.AddCookie(&http.Cookie{Name: "DSR", Value: "cookie-refresh"})

	creds := ExtractCredentials(r, identityCfg())
	require.Equal(t, "cookie-session", creds.SessionToken)
	require.Equal(t, "cookie-refresh", creds.RefreshToken)
}

func TestExtractCredentials_HeaderWinsOverCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: "DS", Value: "cookie-session"})

	creds := ExtractCredentials(r, identityCfg())
	require.Equal(t, "header-token", creds.SessionToken)
}

func TestExtractCredentials_NonBearerSchemeIgnored(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	creds := ExtractCredentials(r, identityCfg())
	require.Empty(t, creds.SessionToken)
}

type staticProvider struct {
	claims identity.Claims
	err    error
}

func (p *staticProvider) Validate(ctx context.Context, sessionToken, refreshToken string) (identity.Claims, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.claims, nil
}

func (p *staticProvider) Logout(ctx context.Context, refreshToken string) error { return nil }

func (p *staticProvider) DelegatedCheck(ctx context.Context, claims map[string]string, required []string, kind identity.CheckKind) (bool, error) {
	return true, nil
}

func newTestPolicy(t *testing.T) *iam.PolicyTable {
	t.Helper()
	table, err := iam.NewPolicyTable(config.PolicyConfig{Roles: config.DefaultPolicy()})
	require.NoError(t, err)
	return table
}

func TestAuthentication_ValidTokenSetsPrincipal(t *testing.T) {
	provider := &staticProvider{claims: identity.Claims{
		"sub":   "user-1",
		"roles": []any{"Developer"},
	}}
	resolver := iam.NewResolver(provider, newTestPolicy(t), false)

	var seen *iam.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := iam.PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = principal
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	r.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()

	Authentication(resolver, identityCfg())(next).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.UserID)
	require.Contains(t, seen.Roles, "Developer")
}

func TestAuthentication_MissingCredentialsRejected(t *testing.T) {
	resolver := iam.NewResolver(&staticProvider{}, newTestPolicy(t), false)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a principal")
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	w := httptest.NewRecorder()

	Authentication(resolver, identityCfg())(next).ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"authentication failed"}`, w.Body.String())
}

func TestAuthentication_AnonymousObserverWhenAllowed(t *testing.T) {
	resolver := iam.NewResolver(nil, newTestPolicy(t), true)

	var seen *iam.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = iam.PrincipalFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	w := httptest.NewRecorder()

	Authentication(resolver, identityCfg())(next).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	require.True(t, seen.IsAnonymous())
	require.Contains(t, seen.Permissions, "read_logs")
}
