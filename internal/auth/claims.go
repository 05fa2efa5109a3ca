package auth

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Identity providers disagree on claim naming: one emits "sub", another
// "userId"; login handles appear as "loginId", "email", or "login_id".
// Each identity field therefore has an ordered list of candidate claim
// keys and the first non-empty match wins. The lists are data, not code,
// so provider quirks are testable in isolation.
var (
	// UserIDClaimKeys resolve the stable subject identifier.
	UserIDClaimKeys = []string{"sub", "userId", "user_id"}

	// LoginIDClaimKeys resolve the provider-side login handle.
	LoginIDClaimKeys = []string{"loginId", "email", "login_id"}

	// EmailClaimKeys resolve the email address.
	EmailClaimKeys = []string{"email"}

	// NameClaimKeys resolve the display name.
	NameClaimKeys = []string{"name", "user_name", "displayName"}

	// TenantClaimKeys resolve the tenant identifier for B2B sessions.
	TenantClaimKeys = []string{"tenant", "tenantId", "tenant_id"}
)

// ExtractString returns the first non-empty string claim among the
// candidate keys, or "" when none match.
func ExtractString(claims map[string]any, keys []string) string {
	for _, key := range keys {
		if raw, ok := claims[key]; ok {
			if value, ok := raw.(string); ok && value != "" {
				return value
			}
		}
	}
	return ""
}

// ExtractStringList extracts a list-of-strings claim. Non-string
// elements are skipped. A missing claim returns an empty list, not an
// error, since sessions legitimately carry no roles or permissions.
func ExtractStringList(claims map[string]any, key string) []string {
	raw, ok := claims[key]
	if !ok {
		return []string{}
	}

	items, ok := raw.([]any)
	if !ok {
		// Some providers flatten single-element lists to a bare string.
		if s, ok := raw.(string); ok && s != "" {
			return []string{s}
		}
		return []string{}
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}

// ExtractTenantScoped extracts the tenant-keyed sub-map carried under
// claims like "tenantRoles": {"acme": ["Developer"]} and returns the
// entries for the given tenant. Providers encode the sub-map with
// interface-typed values, so mapstructure handles the decode.
func ExtractTenantScoped(claims map[string]any, key, tenant string) ([]string, error) {
	raw, ok := claims[key]
	if !ok || tenant == "" {
		return []string{}, nil
	}

	var byTenant map[string][]string
	if err := mapstructure.Decode(raw, &byTenant); err != nil {
		return nil, fmt.Errorf("decode tenant-scoped claim %s: %w", key, err)
	}

	values, ok := byTenant[tenant]
	if !ok {
		return []string{}, nil
	}
	return values, nil
}

// StringifyClaims converts raw claim values into a string-keyed map of
// stringified values. The resolved principal carries this map so the
// permission engine can hand the original claims back to the provider
// for delegated re-checks.
func StringifyClaims(claims map[string]any) map[string]string {
	result := make(map[string]string, len(claims))
	for key, value := range claims {
		result[key] = fmt.Sprintf("%v", value)
	}
	return result
}

// Dedupe returns values with duplicates removed, preserving first-seen
// order.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
