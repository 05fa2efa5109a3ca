// Package gateway implements the request routing strategy: a shared
// Router contract with a Direct implementation that calls domain
// services in-process and a Proxied implementation that forwards calls
// through an external audit gateway over its session-oriented MCP
// transport. Writes fall back from Proxied to Direct on transport
// failure; reads in proxied mode answer optimistically and complete in
// the background.
package gateway

import (
	"context"

	"github.com/opsgate/opsgate/internal/services/devops"
	"github.com/opsgate/opsgate/internal/services/iam"
)

// ForwardHeaders are the inbound credential headers forwarded verbatim
// to the external gateway so it can audit on behalf of the caller.
type ForwardHeaders struct {
	Authorization string
	Cookie        string
}

// LogOptions are the query parameters of a logs read.
type LogOptions struct {
	Level string `json:"level,omitempty"`
	Limit int    `json:"limit"`
	Since string `json:"since,omitempty"`
}

// MetricOptions are the query parameters of a metrics read.
type MetricOptions struct {
	Limit   int    `json:"limit"`
	Service string `json:"service,omitempty"`
}

// DeployRequest carries the parameters of a deploy write.
type DeployRequest struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// RollbackRequest carries the parameters of a rollback write.
type RollbackRequest struct {
	DeploymentID string `json:"deployment_id"`
	Reason       string `json:"reason"`
	Environment  string `json:"environment"`
}

// LogsResult is the response shape of a logs read. RequestID is set
// only on optimistic responses and keys the follow-up poll.
type LogsResult struct {
	URI       string            `json:"uri"`
	Type      string            `json:"type"`
	Count     int               `json:"count"`
	Filters   LogOptions        `json:"filters"`
	Loading   bool              `json:"loading,omitempty"`
	Message   string            `json:"message,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Data      []devops.LogEntry `json:"data"`
}

// MetricsResult is the response shape of a metrics read.
type MetricsResult struct {
	URI       string               `json:"uri"`
	Type      string               `json:"type"`
	Count     int                  `json:"count"`
	Filters   MetricOptions        `json:"filters"`
	Loading   bool                 `json:"loading,omitempty"`
	Message   string               `json:"message,omitempty"`
	RequestID string               `json:"request_id,omitempty"`
	Data      []devops.MetricPoint `json:"data"`
}

// WriteResult is the response shape of deploy and rollback. The shape
// is identical whether the call was served by the Direct or the
// Proxied router, so callers never learn which path ran.
type WriteResult struct {
	Tool    string         `json:"tool"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Router is the transport-independent contract both implementations
// satisfy. Every read and write authorizes against the permission
// engine before any network or service call; a denial returns without
// side effects.
type Router interface {
	GetLogs(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, opts LogOptions) (*LogsResult, error)
	GetMetrics(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, opts MetricOptions) (*MetricsResult, error)
	Deploy(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, req DeployRequest) (*WriteResult, error)
	Rollback(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, req RollbackRequest) (*WriteResult, error)
	Authenticate(ctx context.Context, sessionToken, refreshToken string) (*iam.Principal, error)
}

// Narrow views of the domain services consumed by the Direct router.

// LogSource serves log reads.
type LogSource interface {
	RecentLogs(ctx context.Context, level string, limit int, since string) ([]devops.LogEntry, error)
}

// MetricSource serves metric reads.
type MetricSource interface {
	RecentMetrics(ctx context.Context, limit int, service string) ([]devops.MetricPoint, error)
}

// Deployer triggers deployments.
type Deployer interface {
	Deploy(ctx context.Context, serviceName, version, environment, initiatedBy string) (*devops.DeployOutcome, error)
}

// Rollbacker reverts deployments.
type Rollbacker interface {
	Rollback(ctx context.Context, deploymentID, reason, environment, initiatedBy string) (*devops.RollbackOutcome, error)
}
