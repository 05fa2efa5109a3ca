package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/errs"
)

// RemoteProvider talks to the identity provider's management REST API.
//
// Endpoints used:
//
//	POST {base}/v1/auth/validate   {"sessionToken": ...}          → claims
//	POST {base}/v1/auth/refresh    {"refreshToken": ...}          → claims
//	POST {base}/v1/auth/logout     {"refreshToken": ...}          → 200
//	POST {base}/v1/auth/check      {"claims":..,"required":..,"kind":..} → {"valid": bool}
//
// Requests authenticate with "Bearer <projectID>:<managementKey>".
type RemoteProvider struct {
	baseURL       string
	projectID     string
	managementKey string
	client        *http.Client
}

// NewRemoteProvider constructs a provider client from configuration.
func NewRemoteProvider(cfg config.IdentityConfig) *RemoteProvider {
	return &RemoteProvider{
		baseURL:       cfg.BaseURL,
		projectID:     cfg.ProjectID,
		managementKey: cfg.ManagementKey,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Validate checks the session token with the provider. An expired
// session is refreshed once when a refresh token is available; every
// other failure surfaces as an authentication error.
func (p *RemoteProvider) Validate(ctx context.Context, sessionToken, refreshToken string) (Claims, error) {
	if sessionToken == "" {
		return nil, errs.NewAuthentication("no session token", nil)
	}

	// Peek at the unverified expiry so a locally known-expired token can
	// go straight to refresh instead of burning a provider round trip.
	if refreshToken != "" && tokenExpired(sessionToken) {
		log.Printf("INFO: session token expired locally, attempting refresh")
		return p.refresh(ctx, refreshToken)
	}

	claims, err := p.post(ctx, "/v1/auth/validate", map[string]string{"sessionToken": sessionToken})
	if err == nil {
		return claims, nil
	}

	// Provider-side expiry: one refresh attempt before failing.
	var expiredErr *sessionExpiredError
	if errors.As(err, &expiredErr) && refreshToken != "" {
		log.Printf("INFO: provider reported expired session, attempting refresh")
		return p.refresh(ctx, refreshToken)
	}

	return nil, errs.NewAuthentication("session validation failed", err)
}

// refresh exchanges the refresh token for fresh session claims.
func (p *RemoteProvider) refresh(ctx context.Context, refreshToken string) (Claims, error) {
	claims, err := p.post(ctx, "/v1/auth/refresh", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, errs.NewAuthentication("session refresh failed", err)
	}
	return claims, nil
}

// Logout terminates the provider-side session.
func (p *RemoteProvider) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return errs.NewAuthentication("no refresh token", nil)
	}
	if _, err := p.post(ctx, "/v1/auth/logout", map[string]string{"refreshToken": refreshToken}); err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}

// DelegatedCheck asks the provider to evaluate the required set against
// the original session claims.
func (p *RemoteProvider) DelegatedCheck(ctx context.Context, claims map[string]string, required []string, kind CheckKind) (bool, error) {
	body := map[string]any{
		"claims":   claims,
		"required": required,
		"kind":     string(kind),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshal delegated check: %w", err)
	}

	resp, err := p.do(ctx, "/v1/auth/check", payload)
	if err != nil {
		return false, fmt.Errorf("delegated check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("delegated check: provider returned %d", resp.StatusCode)
	}

	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode delegated check response: %w", err)
	}

	return result.Valid, nil
}

// sessionExpiredError distinguishes provider-reported expiry from other
// validation failures so Validate can attempt a refresh.
type sessionExpiredError struct{}

func (e *sessionExpiredError) Error() string { return "session expired" }

// post sends a JSON body and decodes the claims payload from the reply.
func (p *RemoteProvider) post(ctx context.Context, path string, body map[string]string) (Claims, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.do(ctx, path, payload)
	if err != nil {
		return nil, fmt.Errorf("provider request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusGone, http.StatusUnauthorized:
		// Providers signal expiry either with 410 or a 401 carrying an
		// expired error code; both allow a refresh attempt.
		if providerSaysExpired(resp.Body) {
			return nil, &sessionExpiredError{}
		}
		return nil, fmt.Errorf("provider rejected credential (%d)", resp.StatusCode)
	default:
		return nil, fmt.Errorf("provider returned %d for %s", resp.StatusCode, path)
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	return claims, nil
}

func (p *RemoteProvider) do(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s:%s", p.projectID, p.managementKey))

	return p.client.Do(req)
}

// providerSaysExpired inspects an error body for the expired-session
// error code without failing on unexpected shapes.
func providerSaysExpired(body io.Reader) bool {
	var errBody struct {
		ErrorCode string `json:"errorCode"`
	}
	if err := json.NewDecoder(body).Decode(&errBody); err != nil {
		return false
	}
	return errBody.ErrorCode == "E062004" || errBody.ErrorCode == "session_expired"
}

// tokenExpired reports whether the session JWT's exp claim is in the
// past. The parse is unverified on purpose: the provider (or the JWKS
// validator) remains the authority; this only short-circuits the
// obviously dead token straight to refresh.
func tokenExpired(sessionToken string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(sessionToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
