package iam

import "context"

// AnonymousUserID is the sentinel subject assigned when anonymous access
// is enabled and a request carries no credentials.
const AnonymousUserID = "anonymous"

// ObserverRole is the read-only role granted to anonymous principals.
const ObserverRole = "Observer"

// Principal represents a resolved identity with pre-flattened roles and
// permissions.
//
// This struct is IMMUTABLE after construction. Roles and permissions are
// computed once at resolution time and never modified, so handlers and
// the permission engine can read them concurrently without locking.
//
// The Principal is stored in request context by the authentication
// middleware and consumed by authorization checks and the gateway
// router (which forwards Token on proxied calls).
type Principal struct {
	// UserID is the stable subject identifier, or "anonymous".
	UserID string

	// LoginID is the provider-side login handle (usually an email).
	LoginID string

	// Email is the email address, when the session carries one.
	Email string

	// Name is the display name, when the session carries one.
	Name string

	// Tenant identifies the organization for B2B sessions. Empty for
	// single-tenant deployments.
	Tenant string

	// Roles are the role names asserted by the session, merged across
	// flat and tenant-scoped claims.
	Roles []string

	// Permissions are the flattened permission names. When the session
	// asserts none, these are derived from Roles via the policy table.
	//
	// This is the SOURCE OF TRUTH for authorization decisions.
	Permissions []string

	// Token is the validated session token, forwarded on proxied
	// gateway calls. Empty for anonymous principals.
	Token string

	// RefreshToken is the refresh credential, used for logout and
	// session renewal. Empty for anonymous principals.
	RefreshToken string

	// RawClaims preserves the original claims as strings for delegated
	// provider-side re-checks and debugging.
	RawClaims map[string]string
}

// IsAnonymous reports whether this is the synthetic unauthenticated
// principal.
func (p *Principal) IsAnonymous() bool {
	return p.UserID == AnonymousUserID && p.Token == ""
}

// HasPermission reports whether the flattened permission set contains
// the given permission. Wildcard handling lives in the Engine, not here.
func (p *Principal) HasPermission(permission string) bool {
	for _, have := range p.Permissions {
		if have == permission {
			return true
		}
	}
	return false
}

// Scopes returns the permission set under its legacy name. Older
// clients of the admin API read "scopes" from the whoami payload.
func (p *Principal) Scopes() []string {
	return p.Permissions
}

type contextKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext extracts the principal stored by the
// authentication middleware. The boolean is false when no middleware
// ran, which is a wiring bug on authenticated routes.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}
