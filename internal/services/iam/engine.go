package iam

import (
	"context"
	"log"

	"github.com/opsgate/opsgate/internal/auth"
	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/identity"
)

// Mode selects how a multi-permission requirement combines.
type Mode string

const (
	// ModeAny grants when at least one required permission is held.
	ModeAny Mode = "any"

	// ModeAll grants only when every required permission is held.
	ModeAll Mode = "all"
)

// Engine makes authorization decisions against resolved principals.
//
// The decision order is fixed: wildcard short-circuit, then the
// principal's flattened permissions, then the policy table keyed by the
// principal's roles, then a single delegated re-check with the identity
// provider. Delegated checks exist for providers that compute
// permissions dynamically and never embed them in the session; any
// provider error there means denial, never a fallback to allow.
type Engine struct {
	policy   *PolicyTable
	provider identity.Provider
}

// NewEngine wires the permission engine. provider may be nil, which
// disables delegated re-checks.
func NewEngine(policy *PolicyTable, provider identity.Provider) *Engine {
	return &Engine{policy: policy, provider: provider}
}

// Authorize checks the principal against the required permissions.
// Returns nil when granted and *errs.PermissionError when denied, so
// the transport layer maps denials to 403.
func (e *Engine) Authorize(ctx context.Context, principal *Principal, required []string, mode Mode) error {
	if len(required) == 0 {
		return nil
	}

	for _, held := range principal.Permissions {
		if auth.IsWildcard(held) {
			return nil
		}
	}

	if e.grantedLocally(principal, required, mode) {
		return nil
	}

	if e.delegated(ctx, principal, required) {
		return nil
	}

	log.Printf("WARNING: permission denied for user %s: required %v (mode %s)", principal.UserID, required, mode)
	return errs.NewPermission(required...)
}

// AuthorizeEnvironment checks the environment-scoped permission for a
// deploy or rollback. An unknown environment is a validation error (the
// request is malformed), not a permission denial.
func (e *Engine) AuthorizeEnvironment(ctx context.Context, principal *Principal, operation, environment string) error {
	var permission string
	var ok bool
	switch operation {
	case "deploy":
		permission, ok = auth.DeployPermission(environment)
	case "rollback":
		permission, ok = auth.RollbackPermission(environment)
	}
	if !ok {
		return errs.NewValidation("environment", "must be one of: staging, production")
	}
	return e.Authorize(ctx, principal, []string{permission}, ModeAny)
}

// grantedLocally evaluates the principal's flattened permissions and
// the policy table without touching the network.
func (e *Engine) grantedLocally(principal *Principal, required []string, mode Mode) bool {
	for _, want := range required {
		held := principal.HasPermission(want) || e.policy.Allows(principal.Roles, want)
		if held && mode == ModeAny {
			return true
		}
		if !held && mode == ModeAll {
			return false
		}
	}
	// ModeAny fell through every miss; ModeAll passed every check.
	return mode == ModeAll
}

// delegated asks the identity provider to re-evaluate the requirement
// against the original session. Fails closed on any error.
func (e *Engine) delegated(ctx context.Context, principal *Principal, required []string) bool {
	if e.provider == nil || principal.IsAnonymous() || principal.Token == "" {
		return false
	}

	ok, err := e.provider.DelegatedCheck(ctx, principal.RawClaims, required, identity.CheckPermissions)
	if err != nil {
		log.Printf("ERROR: delegated permission check failed for user %s: %v", principal.UserID, err)
		return false
	}
	return ok
}
