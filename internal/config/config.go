package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Server bind address (host:port)
	ServerAddr string

	// Base URL the server advertises to clients
	ServerURL string

	// Database connection string (DSN) for the deployment history store.
	// Supports postgres:// DSNs and SQLite file paths.
	DatabaseURL string

	// Enable debug logging
	Debug bool

	// Identity provider configuration
	Identity IdentityConfig

	// Audit gateway configuration
	Gateway GatewayConfig

	// Role to permission policy table
	Policy PolicyConfig

	// Per-backend credentials for telemetry and CI/CD sources
	Backends BackendConfig

	// Observability (OTLP) configuration
	Observability ObservabilityConfig
}

// IdentityConfig holds configuration for the external identity provider.
// The provider is consumed through a narrow interface: it validates
// session tokens, refreshes expired sessions, and answers delegated
// role/permission checks. opsgate never issues credentials itself.
type IdentityConfig struct {
	// BaseURL is the provider's management API endpoint
	// (e.g. "https://api.idp.example.com").
	BaseURL string

	// ProjectID identifies this application with the provider.
	ProjectID string

	// ManagementKey authenticates server-side provider calls (optional).
	ManagementKey string

	// Issuer and Audience configure local JWKS validation of session
	// tokens. When Issuer is empty every validation round-trips to the
	// provider's REST API instead.
	Issuer   string
	Audience string

	// AllowAnonymous permits unauthenticated requests to resolve to a
	// synthetic low-privilege principal. Development convenience only.
	AllowAnonymous bool

	// SessionCookieName is the cookie consulted when no Authorization
	// header is present. RefreshCookieName carries the refresh token.
	SessionCookieName string
	RefreshCookieName string
}

// GatewayConfig controls routing through the external audit gateway.
// When disabled, all operations run against local domain services.
type GatewayConfig struct {
	// Enabled routes operations through the audit gateway.
	Enabled bool

	// URL is the gateway's MCP endpoint.
	URL string

	// ResultCacheSize bounds the optimistic-read result cache.
	ResultCacheSize int

	// ResultCacheTTLSeconds is how long completed background results
	// remain available to the poll endpoint.
	ResultCacheTTLSeconds int
}

// PolicyConfig carries the role→permission table. The table is loaded
// once at startup (and on SIGHUP) and treated as immutable afterwards.
type PolicyConfig struct {
	// Path to a YAML policy file. Empty selects the embedded default.
	Path string

	// Roles maps role name to the permissions it grants.
	Roles map[string][]string
}

// BackendConfig carries API keys and endpoints for the domain service
// backends invoked in direct mode.
type BackendConfig struct {
	LogsEndpoint    string
	LogsAPIKey      string
	MetricsEndpoint string
	MetricsAPIKey   string
	CICDEndpoint    string
	CICDAPIKey      string
}

// ObservabilityConfig controls OTLP trace export.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPProtocol   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// policyFile is the YAML shape of an on-disk policy table.
type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// DefaultPolicy returns the built-in role→permission table used when no
// policy file is configured. Observer is the role granted to the
// anonymous principal; Admin carries the wildcard.
func DefaultPolicy() map[string][]string {
	return map[string][]string{
		"Observer":  {"read_logs", "read_metrics"},
		"Developer": {"read_logs", "read_metrics", "deploy_staging", "rollback_staging"},
		"SRE":       {"read_logs", "read_metrics", "deploy_staging", "deploy_production", "rollback_staging", "rollback_production"},
		"Admin":     {"*"},
	}
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:  getEnv("SERVER_ADDR", "localhost:8080"),
		ServerURL:   getEnv("SERVER_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "opsgate.db"),
		Debug:       getEnvBool("DEBUG", false),
		Identity: IdentityConfig{
			BaseURL:           getEnv("IDP_BASE_URL", ""),
			ProjectID:         getEnv("IDP_PROJECT_ID", ""),
			ManagementKey:     getEnv("IDP_MANAGEMENT_KEY", ""),
			Issuer:            getEnv("IDP_ISSUER", ""),
			Audience:          getEnv("IDP_AUDIENCE", ""),
			AllowAnonymous:    getEnvBool("AUTH_ALLOW_ANONYMOUS", false),
			SessionCookieName: getEnv("AUTH_SESSION_COOKIE", "DS"),
			RefreshCookieName: getEnv("AUTH_REFRESH_COOKIE", "DSR"),
		},
		Gateway: GatewayConfig{
			Enabled:               getEnvBool("GATEWAY_ENABLED", false),
			URL:                   getEnv("GATEWAY_URL", ""),
			ResultCacheSize:       getEnvInt("GATEWAY_RESULT_CACHE_SIZE", 256),
			ResultCacheTTLSeconds: getEnvInt("GATEWAY_RESULT_CACHE_TTL", 300),
		},
		Policy: PolicyConfig{
			Path: getEnv("POLICY_PATH", ""),
		},
		Backends: BackendConfig{
			LogsEndpoint:    getEnv("LOGS_ENDPOINT", ""),
			LogsAPIKey:      getEnv("LOGS_API_KEY", ""),
			MetricsEndpoint: getEnv("METRICS_ENDPOINT", ""),
			MetricsAPIKey:   getEnv("METRICS_API_KEY", ""),
			CICDEndpoint:    getEnv("CICD_ENDPOINT", ""),
			CICDAPIKey:      getEnv("CICD_API_KEY", ""),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPProtocol:   getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
			OTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "opsgate"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
		},
	}

	// Validate required fields
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("SERVER_URL is required")
	}

	// Gateway mode requires an endpoint to forward to
	if cfg.Gateway.Enabled && cfg.Gateway.URL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required when GATEWAY_ENABLED is set")
	}

	// Identity provider is optional (anonymous-only development mode),
	// but a configured provider needs a project id.
	if cfg.Identity.BaseURL != "" && cfg.Identity.ProjectID == "" {
		return nil, fmt.Errorf("IDP_PROJECT_ID is required when IDP_BASE_URL is set")
	}
	if cfg.Identity.BaseURL == "" && !cfg.Identity.AllowAnonymous {
		return nil, fmt.Errorf("no identity provider configured: set IDP_BASE_URL or enable AUTH_ALLOW_ANONYMOUS")
	}

	// Load the policy table (embedded default when no file given)
	roles, err := loadPolicy(cfg.Policy.Path)
	if err != nil {
		return nil, fmt.Errorf("load policy table: %w", err)
	}
	cfg.Policy.Roles = roles

	return cfg, nil
}

// loadPolicy reads the role→permission table from a YAML file, or
// returns the embedded default when path is empty.
func loadPolicy(path string) (map[string][]string, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(pf.Roles) == 0 {
		return nil, fmt.Errorf("policy file %s defines no roles", path)
	}

	return pf.Roles, nil
}

// ReloadPolicy re-reads the policy file and returns the fresh table.
// Used by the SIGHUP handler; callers swap the table atomically.
func (c *Config) ReloadPolicy() (map[string][]string, error) {
	return loadPolicy(c.Policy.Path)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
