package iam

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/opsgate/opsgate/internal/config"
)

// policyModel is the RBAC model evaluated per check. Subjects are role
// names, actions are permission names. A stored "*" action grants every
// permission to that role.
const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.act == r.act || p.act == "*")
`

// PolicySnapshot is an immutable view of the role→permission table plus
// the Casbin enforcer compiled from it.
type PolicySnapshot struct {
	// Roles maps role name to granted permissions, as loaded.
	Roles map[string][]string

	// Version increments on every reload, for the status endpoint.
	Version int

	// CreatedAt records when this snapshot was built.
	CreatedAt time.Time

	enforcer casbin.IEnforcer
}

// PolicyTable provides lock-free access to the role→permission table.
//
// Uses atomic.Value for zero-contention reads. The table stores
// immutable snapshots that are never modified after creation; SIGHUP
// reload builds a new snapshot and atomically swaps the pointer, so
// in-flight requests see either the old or the new table, never a mix.
type PolicyTable struct {
	snapshot atomic.Value // holds *PolicySnapshot
}

// NewPolicyTable compiles the configured role→permission table. Returns
// an error if the table is empty or the policy model fails to compile;
// the server must not start without a usable table.
func NewPolicyTable(cfg config.PolicyConfig) (*PolicyTable, error) {
	t := &PolicyTable{}
	if err := t.Reload(cfg); err != nil {
		return nil, fmt.Errorf("initial policy load: %w", err)
	}
	return t, nil
}

// Reload compiles a fresh snapshot from cfg and atomically swaps it in.
// Safe to call concurrently with reads; called at startup and on SIGHUP.
func (t *PolicyTable) Reload(cfg config.PolicyConfig) error {
	if len(cfg.Roles) == 0 {
		return fmt.Errorf("policy table defines no roles")
	}

	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return fmt.Errorf("parse policy model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return fmt.Errorf("create policy enforcer: %w", err)
	}

	roles := make(map[string][]string, len(cfg.Roles))
	for role, permissions := range cfg.Roles {
		copied := make([]string, len(permissions))
		copy(copied, permissions)
		sort.Strings(copied)
		roles[role] = copied

		for _, permission := range permissions {
			if _, err := enforcer.AddPolicy(role, permission); err != nil {
				return fmt.Errorf("add policy %s/%s: %w", role, permission, err)
			}
		}
	}

	prevVersion := 0
	if prev := t.snapshot.Load(); prev != nil {
		prevVersion = prev.(*PolicySnapshot).Version
	}

	t.snapshot.Store(&PolicySnapshot{
		Roles:     roles,
		Version:   prevVersion + 1,
		CreatedAt: time.Now(),
		enforcer:  enforcer,
	})
	return nil
}

// Get returns the current snapshot for lock-free reads. Never blocks.
func (t *PolicyTable) Get() *PolicySnapshot {
	val := t.snapshot.Load()
	if val == nil {
		return nil
	}
	return val.(*PolicySnapshot)
}

// Allows reports whether any of the given roles grants the permission,
// honoring the stored "*" wildcard.
func (t *PolicyTable) Allows(roles []string, permission string) bool {
	snapshot := t.Get()
	if snapshot == nil {
		return false
	}
	for _, role := range roles {
		ok, err := snapshot.enforcer.Enforce(role, permission)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// PermissionsForRoles computes the deduplicated union of permissions
// granted by the given roles. Unknown roles contribute nothing. This is
// the fallback used when a session asserts roles but no permissions.
func (t *PolicyTable) PermissionsForRoles(roles []string) []string {
	snapshot := t.Get()
	if snapshot == nil {
		return []string{}
	}

	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, role := range roles {
		for _, permission := range snapshot.Roles[role] {
			if _, dup := seen[permission]; dup {
				continue
			}
			seen[permission] = struct{}{}
			result = append(result, permission)
		}
	}
	sort.Strings(result)
	return result
}

// KnownRole reports whether the table defines the role.
func (t *PolicyTable) KnownRole(role string) bool {
	snapshot := t.Get()
	if snapshot == nil {
		return false
	}
	_, ok := snapshot.Roles[role]
	return ok
}
