package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/errs"
)

// providerStub counts calls per endpoint and serves canned responses.
type providerStub struct {
	validateCalls atomic.Int32
	refreshCalls  atomic.Int32

	validateStatus int
	validateBody   map[string]any
	refreshStatus  int
	refreshBody    map[string]any

	lastAuthorization string
}

func (s *providerStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		s.validateCalls.Add(1)
		s.lastAuthorization = r.Header.Get("Authorization")
		writeStub(w, s.validateStatus, s.validateBody)
	})
	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		writeStub(w, s.refreshStatus, s.refreshBody)
	})
	return mux
}

func writeStub(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newStubProvider(t *testing.T, stub *providerStub) *RemoteProvider {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewRemoteProvider(config.IdentityConfig{
		BaseURL:       srv.URL,
		ProjectID:     "proj-1",
		ManagementKey: "mk-1",
	})
}

// expiredJWT builds a token whose exp claim is in the past. The
// signature never gets verified; only the claim matters here.
func expiredJWT(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestRemoteProvider_ValidateReturnsClaims(t *testing.T) {
	stub := &providerStub{
		validateStatus: http.StatusOK,
		validateBody:   map[string]any{"sub": "user-1", "roles": []any{"SRE"}},
	}
	provider := newStubProvider(t, stub)

	claims, err := provider.Validate(context.Background(), "session-token", "")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, int32(1), stub.validateCalls.Load())
	require.Equal(t, "Bearer proj-1:mk-1", stub.lastAuthorization)
}

func TestRemoteProvider_ExpiredSessionRefreshesOnce(t *testing.T) {
	stub := &providerStub{
		validateStatus: http.StatusUnauthorized,
		validateBody:   map[string]any{"errorCode": "E062004"},
		refreshStatus:  http.StatusOK,
		refreshBody:    map[string]any{"sub": "user-1", "roles": []any{"Developer"}},
	}
	provider := newStubProvider(t, stub)

	claims, err := provider.Validate(context.Background(), "stale-token", "refresh-token")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, int32(1), stub.validateCalls.Load())
	require.Equal(t, int32(1), stub.refreshCalls.Load())
}

func TestRemoteProvider_GoneSessionRefreshes(t *testing.T) {
	stub := &providerStub{
		validateStatus: http.StatusGone,
		validateBody:   map[string]any{"errorCode": "session_expired"},
		refreshStatus:  http.StatusOK,
		refreshBody:    map[string]any{"sub": "user-2"},
	}
	provider := newStubProvider(t, stub)

	claims, err := provider.Validate(context.Background(), "stale-token", "refresh-token")
	require.NoError(t, err)
	require.Equal(t, "user-2", claims["sub"])
	require.Equal(t, int32(1), stub.refreshCalls.Load())
}

func TestRemoteProvider_RefreshFailureIsAuthenticationError(t *testing.T) {
	stub := &providerStub{
		validateStatus: http.StatusUnauthorized,
		validateBody:   map[string]any{"errorCode": "E062004"},
		refreshStatus:  http.StatusInternalServerError,
		refreshBody:    map[string]any{},
	}
	provider := newStubProvider(t, stub)

	_, err := provider.Validate(context.Background(), "stale-token", "refresh-token")
	var authErr *errs.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, int32(1), stub.refreshCalls.Load())
}

func TestRemoteProvider_RejectionWithoutExpiryCodeSkipsRefresh(t *testing.T) {
	stub := &providerStub{
		validateStatus: http.StatusUnauthorized,
		validateBody:   map[string]any{"errorCode": "E061102"},
	}
	provider := newStubProvider(t, stub)

	_, err := provider.Validate(context.Background(), "bad-token", "refresh-token")
	var authErr *errs.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Zero(t, stub.refreshCalls.Load())
}

func TestRemoteProvider_ExpiredWithoutRefreshTokenFails(t *testing.T) {
	stub := &providerStub{
		validateStatus: http.StatusUnauthorized,
		validateBody:   map[string]any{"errorCode": "E062004"},
	}
	provider := newStubProvider(t, stub)

	_, err := provider.Validate(context.Background(), "stale-token", "")
	var authErr *errs.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Zero(t, stub.refreshCalls.Load())
}

func TestRemoteProvider_LocallyExpiredTokenGoesStraightToRefresh(t *testing.T) {
	stub := &providerStub{
		refreshStatus: http.StatusOK,
		refreshBody:   map[string]any{"sub": "user-1"},
	}
	provider := newStubProvider(t, stub)

	claims, err := provider.Validate(context.Background(), expiredJWT(t), "refresh-token")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Zero(t, stub.validateCalls.Load())
	require.Equal(t, int32(1), stub.refreshCalls.Load())
}

func TestRemoteProvider_EmptySessionToken(t *testing.T) {
	provider := newStubProvider(t, &providerStub{})

	_, err := provider.Validate(context.Background(), "", "refresh-token")
	var authErr *errs.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}
