package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/opsgate/opsgate/internal/auth"
	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/services/iam"
)

// DirectRouter serves every call in-process against the domain
// services. It is also the fallback target for proxied writes, so its
// result shapes are the canonical ones.
type DirectRouter struct {
	engine   *iam.Engine
	resolver *iam.Resolver

	logs     LogSource
	metrics  MetricSource
	deployer Deployer
	reverter Rollbacker
}

// DirectRouterOptions collects the Direct router's dependencies.
type DirectRouterOptions struct {
	Engine   *iam.Engine
	Resolver *iam.Resolver
	Logs     LogSource
	Metrics  MetricSource
	Deployer Deployer
	Reverter Rollbacker
}

func NewDirectRouter(opts DirectRouterOptions) *DirectRouter {
	return &DirectRouter{
		engine:   opts.Engine,
		resolver: opts.Resolver,
		logs:     opts.Logs,
		metrics:  opts.Metrics,
		deployer: opts.Deployer,
		reverter: opts.Reverter,
	}
}

func (r *DirectRouter) GetLogs(ctx context.Context, principal *iam.Principal, _ ForwardHeaders, opts LogOptions) (*LogsResult, error) {
	if err := r.engine.Authorize(ctx, principal, []string{auth.ReadLogs}, iam.ModeAny); err != nil {
		return nil, err
	}

	entries, err := r.logs.RecentLogs(ctx, opts.Level, opts.Limit, opts.Since)
	if err != nil {
		return nil, errs.NewInternal(err)
	}

	return &LogsResult{
		URI:     "logs",
		Type:    "logs",
		Count:   len(entries),
		Filters: opts,
		Data:    entries,
	}, nil
}

func (r *DirectRouter) GetMetrics(ctx context.Context, principal *iam.Principal, _ ForwardHeaders, opts MetricOptions) (*MetricsResult, error) {
	if err := r.engine.Authorize(ctx, principal, []string{auth.ReadMetrics}, iam.ModeAny); err != nil {
		return nil, err
	}

	points, err := r.metrics.RecentMetrics(ctx, opts.Limit, opts.Service)
	if err != nil {
		return nil, errs.NewInternal(err)
	}

	return &MetricsResult{
		URI:     "metrics",
		Type:    "metrics",
		Count:   len(points),
		Filters: opts,
		Data:    points,
	}, nil
}

func (r *DirectRouter) Deploy(ctx context.Context, principal *iam.Principal, _ ForwardHeaders, req DeployRequest) (*WriteResult, error) {
	if err := r.engine.AuthorizeEnvironment(ctx, principal, "deploy", req.Environment); err != nil {
		return nil, err
	}

	outcome, err := r.deployer.Deploy(ctx, req.ServiceName, req.Version, req.Environment, principal.UserID)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: deploy %s %s to %s by %s: success=%t",
		req.ServiceName, req.Version, req.Environment, principal.UserID, outcome.Success)
	return &WriteResult{
		Tool:    ToolDeployService,
		Success: outcome.Success,
		Result:  toResultMap(outcome),
	}, nil
}

func (r *DirectRouter) Rollback(ctx context.Context, principal *iam.Principal, _ ForwardHeaders, req RollbackRequest) (*WriteResult, error) {
	if err := r.engine.AuthorizeEnvironment(ctx, principal, "rollback", req.Environment); err != nil {
		return nil, err
	}

	outcome, err := r.reverter.Rollback(ctx, req.DeploymentID, req.Reason, req.Environment, principal.UserID)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: rollback %s in %s by %s: success=%t",
		req.DeploymentID, req.Environment, principal.UserID, outcome.Success)
	return &WriteResult{
		Tool:    ToolRollbackDeployment,
		Success: outcome.Success,
		Result:  toResultMap(outcome),
	}, nil
}

func (r *DirectRouter) Authenticate(ctx context.Context, sessionToken, refreshToken string) (*iam.Principal, error) {
	return r.resolver.Resolve(ctx, sessionToken, refreshToken)
}

// toResultMap flattens a typed outcome into the generic result shape
// shared with the proxied path.
func toResultMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("encode result: %v", err)}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"error": fmt.Sprintf("decode result: %v", err)}
	}
	return out
}
