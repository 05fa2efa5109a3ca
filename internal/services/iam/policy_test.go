package iam

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/internal/config"
)

func testPolicyConfig() config.PolicyConfig {
	return config.PolicyConfig{Roles: config.DefaultPolicy()}
}

func TestPolicyTable_PermissionsForRoles(t *testing.T) {
	table, err := NewPolicyTable(testPolicyConfig())
	require.NoError(t, err)

	tests := []struct {
		name  string
		roles []string
		want  []string
	}{
		{
			name:  "observer gets read permissions",
			roles: []string{"Observer"},
			want:  []string{"read_logs", "read_metrics"},
		},
		{
			name:  "union is deduplicated",
			roles: []string{"Observer", "Developer"},
			want:  []string{"deploy_staging", "read_logs", "read_metrics", "rollback_staging"},
		},
		{
			name:  "unknown role contributes nothing",
			roles: []string{"Intern"},
			want:  []string{},
		},
		{
			name:  "empty roles",
			roles: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, table.PermissionsForRoles(tt.roles))
		})
	}
}

func TestPolicyTable_Allows(t *testing.T) {
	table, err := NewPolicyTable(testPolicyConfig())
	require.NoError(t, err)

	require.True(t, table.Allows([]string{"Developer"}, "deploy_staging"))
	require.False(t, table.Allows([]string{"Developer"}, "deploy_production"))
	require.True(t, table.Allows([]string{"SRE"}, "deploy_production"))

	// Admin carries the stored wildcard.
	require.True(t, table.Allows([]string{"Admin"}, "deploy_production"))
	require.True(t, table.Allows([]string{"Admin"}, "anything_at_all"))

	require.False(t, table.Allows(nil, "read_logs"))
}

func TestPolicyTable_ReloadSwapsSnapshot(t *testing.T) {
	table, err := NewPolicyTable(testPolicyConfig())
	require.NoError(t, err)
	require.Equal(t, 1, table.Get().Version)

	// A reload with an extra role becomes visible atomically.
	cfg := testPolicyConfig()
	cfg.Roles["Auditor"] = []string{"read_logs"}
	require.NoError(t, table.Reload(cfg))

	require.Equal(t, 2, table.Get().Version)
	require.True(t, table.KnownRole("Auditor"))
	require.True(t, table.Allows([]string{"Auditor"}, "read_logs"))
}

func TestPolicyTable_RejectsEmptyTable(t *testing.T) {
	_, err := NewPolicyTable(config.PolicyConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no roles")
}
