package iam

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/identity"
)

func newTestEngine(t *testing.T, provider identity.Provider) *Engine {
	t.Helper()
	table, err := NewPolicyTable(testPolicyConfig())
	require.NoError(t, err)
	return NewEngine(table, provider)
}

func authedPrincipal(permissions, roles []string) *Principal {
	return &Principal{
		UserID:      "u-1",
		Roles:       roles,
		Permissions: permissions,
		Token:       "tok",
		RawClaims:   map[string]string{"sub": "u-1"},
	}
}

func TestEngine_WildcardShortCircuit(t *testing.T) {
	provider := &stubProvider{}
	engine := newTestEngine(t, provider)

	for _, wildcard := range []string{"*", "admin:*"} {
		p := authedPrincipal([]string{wildcard}, nil)
		err := engine.Authorize(context.Background(), p, []string{"deploy_production"}, ModeAll)
		require.NoError(t, err)
	}
	require.Zero(t, provider.delegatedCalls)
}

func TestEngine_AnyMode(t *testing.T) {
	engine := newTestEngine(t, nil)
	p := authedPrincipal([]string{"read_logs"}, nil)

	require.NoError(t, engine.Authorize(context.Background(), p, []string{"read_logs", "deploy_staging"}, ModeAny))

	err := engine.Authorize(context.Background(), p, []string{"deploy_staging", "deploy_production"}, ModeAny)
	var permErr *errs.PermissionError
	require.ErrorAs(t, err, &permErr)
	require.Equal(t, []string{"deploy_staging", "deploy_production"}, permErr.Required)
}

func TestEngine_AllMode(t *testing.T) {
	engine := newTestEngine(t, nil)
	p := authedPrincipal([]string{"read_logs", "read_metrics"}, nil)

	require.NoError(t, engine.Authorize(context.Background(), p, []string{"read_logs", "read_metrics"}, ModeAll))

	err := engine.Authorize(context.Background(), p, []string{"read_logs", "deploy_staging"}, ModeAll)
	var permErr *errs.PermissionError
	require.ErrorAs(t, err, &permErr)
}

func TestEngine_EmptyRequirementAlwaysGranted(t *testing.T) {
	engine := newTestEngine(t, nil)
	require.NoError(t, engine.Authorize(context.Background(), &Principal{UserID: AnonymousUserID}, nil, ModeAll))
}

func TestEngine_RoleBackedGrant(t *testing.T) {
	// No flattened permissions, but the policy table grants via role.
	engine := newTestEngine(t, nil)
	p := authedPrincipal(nil, []string{"SRE"})

	require.NoError(t, engine.Authorize(context.Background(), p, []string{"deploy_production"}, ModeAny))
}

func TestEngine_DelegatedCheckGrants(t *testing.T) {
	provider := &stubProvider{delegatedOK: true}
	engine := newTestEngine(t, provider)
	p := authedPrincipal([]string{"read_logs"}, nil)

	err := engine.Authorize(context.Background(), p, []string{"deploy_production"}, ModeAny)
	require.NoError(t, err)
	require.Equal(t, 1, provider.delegatedCalls)
	require.Equal(t, []string{"deploy_production"}, provider.lastRequired)
	require.Equal(t, identity.CheckPermissions, provider.lastKind)
}

func TestEngine_DelegatedCheckFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
	}{
		{"provider denies", &stubProvider{delegatedOK: false}},
		{"provider errors", &stubProvider{delegatedErr: fmt.Errorf("idp unreachable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, tt.provider)
			p := authedPrincipal([]string{"read_logs"}, nil)

			err := engine.Authorize(context.Background(), p, []string{"deploy_production"}, ModeAny)
			var permErr *errs.PermissionError
			require.ErrorAs(t, err, &permErr)
			require.Equal(t, 1, tt.provider.delegatedCalls)
		})
	}
}

func TestEngine_NoDelegationForAnonymous(t *testing.T) {
	provider := &stubProvider{delegatedOK: true}
	engine := newTestEngine(t, provider)
	p := &Principal{UserID: AnonymousUserID, Permissions: []string{"read_logs"}}

	err := engine.Authorize(context.Background(), p, []string{"deploy_staging"}, ModeAny)
	var permErr *errs.PermissionError
	require.ErrorAs(t, err, &permErr)
	require.Zero(t, provider.delegatedCalls)
}

func TestEngine_AuthorizeEnvironment(t *testing.T) {
	engine := newTestEngine(t, nil)

	tests := []struct {
		name        string
		operation   string
		environment string
		permissions []string
		wantErr     any
	}{
		{
			name:        "deploy staging granted",
			operation:   "deploy",
			environment: "staging",
			permissions: []string{"deploy_staging"},
		},
		{
			name:        "deploy production denied for staging-only",
			operation:   "deploy",
			environment: "production",
			permissions: []string{"deploy_staging"},
			wantErr:     &errs.PermissionError{},
		},
		{
			name:        "rollback production granted",
			operation:   "rollback",
			environment: "production",
			permissions: []string{"rollback_production"},
		},
		{
			name:        "unknown environment is a validation error",
			operation:   "deploy",
			environment: "qa",
			permissions: []string{"*"},
			wantErr:     &errs.ValidationError{},
		},
		{
			name:        "unknown environment on rollback too",
			operation:   "rollback",
			environment: "",
			permissions: []string{"*"},
			wantErr:     &errs.ValidationError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := authedPrincipal(tt.permissions, nil)
			err := engine.AuthorizeEnvironment(context.Background(), p, tt.operation, tt.environment)

			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
			case *errs.PermissionError:
				target := want
				require.ErrorAs(t, err, &target)
			case *errs.ValidationError:
				target := want
				require.ErrorAs(t, err, &target)
				require.Equal(t, "environment", target.Field)
			}
		})
	}
}
