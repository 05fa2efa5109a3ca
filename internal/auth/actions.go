package auth

// Permission constants for authorization checks
// These constants define all permissions recognized by opsgate for use
// with the policy table and the permission engine.

// Read permissions (telemetry resources)
const (
	// ReadLogs allows reading log records
	ReadLogs = "read_logs"

	// ReadMetrics allows reading metric records
	ReadMetrics = "read_metrics"
)

// Write permissions (environment-scoped CI/CD operations)
const (
	// DeployStaging allows deploying services to staging
	DeployStaging = "deploy_staging"

	// DeployProduction allows deploying services to production
	DeployProduction = "deploy_production"

	// RollbackStaging allows rolling back staging deployments
	RollbackStaging = "rollback_staging"

	// RollbackProduction allows rolling back production deployments
	RollbackProduction = "rollback_production"
)

// Wildcards (used in policies for broad access)
const (
	// AdminWildcard grants all admin-prefixed permissions
	AdminWildcard = "admin:*"

	// AllWildcard grants every permission (Admin role)
	AllWildcard = "*"
)

// Environment names recognized by environment-scoped operations.
// Anything else is a validation failure, not a permission failure.
const (
	EnvironmentStaging    = "staging"
	EnvironmentProduction = "production"
)

// ValidateEnvironment checks if an environment string is recognized
func ValidateEnvironment(environment string) bool {
	return environment == EnvironmentStaging || environment == EnvironmentProduction
}

// DeployPermission returns the permission guarding a deploy to the given
// environment. The boolean is false for unrecognized environments.
func DeployPermission(environment string) (string, bool) {
	switch environment {
	case EnvironmentStaging:
		return DeployStaging, true
	case EnvironmentProduction:
		return DeployProduction, true
	default:
		return "", false
	}
}

// RollbackPermission returns the permission guarding a rollback in the
// given environment. The boolean is false for unrecognized environments.
func RollbackPermission(environment string) (string, bool) {
	switch environment {
	case EnvironmentStaging:
		return RollbackStaging, true
	case EnvironmentProduction:
		return RollbackProduction, true
	default:
		return "", false
	}
}

// IsWildcard reports whether a permission value short-circuits every
// authorization check.
func IsWildcard(permission string) bool {
	return permission == AllWildcard || permission == AdminWildcard
}
