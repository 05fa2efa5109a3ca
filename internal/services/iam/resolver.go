package iam

import (
	"context"
	"log"

	"github.com/opsgate/opsgate/internal/auth"
	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/identity"
)

// Claim keys carrying role and permission assertions. Flat keys apply
// to every session; the tenant-scoped variants are maps keyed by tenant
// ID and only the resolved tenant's entry is merged.
const (
	rolesClaimKey             = "roles"
	permissionsClaimKey       = "permissions"
	tenantRolesClaimKey       = "tenantRoles"
	tenantPermissionsClaimKey = "tenantPermissions"
)

// Resolver turns request credentials into an immutable Principal.
//
// Resolution is step-wise: validate the credential with the identity
// provider (which refreshes expired sessions once), extract identity
// fields through the ordered claim-key lists, merge flat and
// tenant-scoped role/permission claims, and fall back to the policy
// table when the session asserts roles but no permissions.
type Resolver struct {
	provider       identity.Provider
	policy         *PolicyTable
	allowAnonymous bool
}

// NewResolver wires the resolver. provider may be nil when only
// anonymous access is configured.
func NewResolver(provider identity.Provider, policy *PolicyTable, allowAnonymous bool) *Resolver {
	return &Resolver{
		provider:       provider,
		policy:         policy,
		allowAnonymous: allowAnonymous,
	}
}

// Resolve authenticates the request credentials and builds a Principal.
//
// A request with no credentials resolves to the anonymous principal
// when anonymous access is enabled, and fails with an authentication
// error otherwise. All provider failures surface as
// *errs.AuthenticationError so the transport layer maps them to 401.
func (r *Resolver) Resolve(ctx context.Context, sessionToken, refreshToken string) (*Principal, error) {
	if sessionToken == "" && refreshToken == "" {
		if r.allowAnonymous {
			return r.Anonymous(), nil
		}
		return nil, errs.NewAuthentication("missing credentials", nil)
	}

	if r.provider == nil {
		// Credentials presented but nothing can validate them. Treating
		// them as anonymous would silently ignore a bad token.
		return nil, errs.NewAuthentication("no identity provider configured", nil)
	}

	claims, err := r.provider.Validate(ctx, sessionToken, refreshToken)
	if err != nil {
		return nil, err
	}

	return r.fromClaims(claims, sessionToken, refreshToken)
}

// Anonymous returns the synthetic unauthenticated principal: Observer
// role, read-only permissions from the policy table.
func (r *Resolver) Anonymous() *Principal {
	return &Principal{
		UserID:      AnonymousUserID,
		LoginID:     AnonymousUserID,
		Roles:       []string{ObserverRole},
		Permissions: r.policy.PermissionsForRoles([]string{ObserverRole}),
		RawClaims:   map[string]string{},
	}
}

// fromClaims maps validated claims onto a Principal.
func (r *Resolver) fromClaims(claims identity.Claims, sessionToken, refreshToken string) (*Principal, error) {
	raw := map[string]any(claims)

	userID := auth.ExtractString(raw, auth.UserIDClaimKeys)
	loginID := auth.ExtractString(raw, auth.LoginIDClaimKeys)
	if userID == "" {
		// Some providers only embed the login handle.
		userID = loginID
	}
	if userID == "" {
		return nil, errs.NewAuthentication("session claims carry no subject", nil)
	}
	if loginID == "" {
		loginID = userID
	}

	tenant := auth.ExtractString(raw, auth.TenantClaimKeys)

	roles := auth.ExtractStringList(raw, rolesClaimKey)
	tenantRoles, err := auth.ExtractTenantScoped(raw, tenantRolesClaimKey, tenant)
	if err != nil {
		return nil, errs.NewAuthentication("malformed tenant role claims", err)
	}
	roles = auth.Dedupe(append(roles, tenantRoles...))

	permissions := auth.ExtractStringList(raw, permissionsClaimKey)
	tenantPermissions, err := auth.ExtractTenantScoped(raw, tenantPermissionsClaimKey, tenant)
	if err != nil {
		return nil, errs.NewAuthentication("malformed tenant permission claims", err)
	}
	permissions = auth.Dedupe(append(permissions, tenantPermissions...))

	// Sessions from role-only providers assert no permissions at all;
	// derive them from the policy table so downstream checks stay
	// uniform.
	if len(permissions) == 0 && len(roles) > 0 {
		permissions = r.policy.PermissionsForRoles(roles)
		log.Printf("INFO: derived %d permissions from roles for user %s", len(permissions), userID)
	}

	return &Principal{
		UserID:       userID,
		LoginID:      loginID,
		Email:        auth.ExtractString(raw, auth.EmailClaimKeys),
		Name:         auth.ExtractString(raw, auth.NameClaimKeys),
		Tenant:       tenant,
		Roles:        roles,
		Permissions:  permissions,
		Token:        sessionToken,
		RefreshToken: refreshToken,
		RawClaims:    auth.StringifyClaims(raw),
	}, nil
}
