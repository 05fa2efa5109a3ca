package identity

import (
	"context"
	"fmt"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/opsgate/opsgate/internal/config"
)

// LocalValidator validates session JWTs against the provider's JWKS
// without a network round trip per request. Refresh, logout and
// delegated checks still go to the remote provider; only the hot
// validation path is served locally.
//
// Constructed when IDP_ISSUER is configured; otherwise the remote
// provider handles validation too.
type LocalValidator struct {
	tokenHandler *oidctoken.TokenHandler[map[string]any]
	remote       Provider
}

// NewLocalValidator builds a JWKS-backed validator that falls back to
// the remote provider for refresh and delegated operations.
func NewLocalValidator(cfg config.IdentityConfig, remote Provider) (*LocalValidator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required for local validation")
	}

	oidcOpts := []options.Option{
		options.WithIssuer(cfg.Issuer),
	}
	if cfg.Audience != "" {
		oidcOpts = append(oidcOpts, options.WithRequiredAudience(cfg.Audience))
	}

	tokenHandler, err := oidctoken.New[map[string]any](nil, oidcOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize oidc token handler: %w", err)
	}

	return &LocalValidator{
		tokenHandler: tokenHandler,
		remote:       remote,
	}, nil
}

// Validate parses and verifies the session JWT locally. Verification
// failures (including expiry) fall through to the remote provider,
// which owns the refresh path.
func (v *LocalValidator) Validate(ctx context.Context, sessionToken, refreshToken string) (Claims, error) {
	if sessionToken != "" {
		claims, err := v.tokenHandler.ParseToken(ctx, sessionToken)
		if err == nil {
			return Claims(claims), nil
		}
	}
	return v.remote.Validate(ctx, sessionToken, refreshToken)
}

// Logout delegates to the remote provider.
func (v *LocalValidator) Logout(ctx context.Context, refreshToken string) error {
	return v.remote.Logout(ctx, refreshToken)
}

// DelegatedCheck delegates to the remote provider.
func (v *LocalValidator) DelegatedCheck(ctx context.Context, claims map[string]string, required []string, kind CheckKind) (bool, error) {
	return v.remote.DelegatedCheck(ctx, claims, required, kind)
}
