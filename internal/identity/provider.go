// Package identity wraps the external identity provider behind a narrow
// interface. opsgate never implements authentication itself: it hands a
// session token to the provider, receives raw claims back, and may ask
// the provider to re-evaluate role or permission requirements that were
// not flattened into the session (delegated checks).
package identity

import "context"

// Claims are the raw key/value assertions returned by the provider after
// validating a credential.
type Claims map[string]any

// CheckKind selects what a delegated check evaluates.
type CheckKind string

const (
	// CheckRoles asks the provider to match required role names.
	CheckRoles CheckKind = "role"

	// CheckPermissions asks the provider to match required permissions.
	CheckPermissions CheckKind = "permission"
)

// Provider validates sessions and answers delegated authorization
// questions. Implementations must be safe for concurrent use.
type Provider interface {
	// Validate checks a session token and returns its claims. When the
	// session is expired and refreshToken is non-empty, implementations
	// attempt exactly one refresh before failing. Failures are
	// *errs.AuthenticationError.
	Validate(ctx context.Context, sessionToken, refreshToken string) (Claims, error)

	// Logout terminates the provider-side session for the refresh token.
	Logout(ctx context.Context, refreshToken string) error

	// DelegatedCheck asks the provider whether the session the claims
	// came from satisfies the required set. Used when the locally
	// flattened permission set denies: some providers compute
	// permissions dynamically and never embed them in the session.
	// Errors mean "could not confirm", so callers must fail closed.
	DelegatedCheck(ctx context.Context, claims map[string]string, required []string, kind CheckKind) (bool, error)
}
