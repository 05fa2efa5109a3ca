// Package devops holds the domain services behind the direct routing
// path: log and metric retrieval, deployments and rollbacks. Each
// service talks to its backend over HTTP when credentials are
// configured and synthesizes representative data otherwise, so the API
// stays usable in development environments.
package devops

import "time"

// Deployment statuses reported by the CI/CD backend.
const (
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
	StatusInProgress = "IN_PROGRESS"
)

// LogEntry is one log record returned to clients.
type LogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`

	// Loading marks synthesized placeholder entries returned before
	// the authoritative data arrives.
	Loading bool `json:"_is_loading,omitempty"`
}

// MetricPoint is one metric sample returned to clients.
type MetricPoint struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
	Service   string  `json:"service,omitempty"`

	Loading bool `json:"_is_loading,omitempty"`
}

// Deployment records one deployment of a service version to an
// environment.
type Deployment struct {
	DeploymentID string    `json:"deployment_id"`
	ServiceName  string    `json:"service_name"`
	Version      string    `json:"version"`
	Environment  string    `json:"environment"`
	Status       string    `json:"status"`
	InitiatedBy  string    `json:"initiated_by,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Rollback records one rollback of a prior deployment. Environment is
// always populated; clients rely on it to confirm which environment
// was rolled back.
type Rollback struct {
	RollbackID   string    `json:"rollback_id"`
	DeploymentID string    `json:"deployment_id"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
	Environment  string    `json:"environment"`
	InitiatedBy  string    `json:"initiated_by,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// DeployOutcome is the caller-visible result of a deploy.
type DeployOutcome struct {
	Success    bool           `json:"success"`
	Deployment Deployment     `json:"deployment"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RollbackOutcome is the caller-visible result of a rollback.
type RollbackOutcome struct {
	Success  bool           `json:"success"`
	Rollback Rollback       `json:"rollback"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
