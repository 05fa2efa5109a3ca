package gateway

import (
	"context"
	"log"
	"time"

	"github.com/opsgate/opsgate/internal/auth"
	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/services/iam"
)

// backgroundReadTimeout bounds the detached read call; the original
// caller has already been answered.
const backgroundReadTimeout = 45 * time.Second

// ProxiedRouter forwards calls through the external audit gateway.
//
// Writes are synchronous: a gateway transport failure falls back to
// the Direct router exactly once with the same arguments, so the
// caller-visible contract matches direct mode. Other error classes
// surface unchanged. Reads answer immediately with a marked
// placeholder and complete in the background into the result cache,
// which the poll endpoint serves.
type ProxiedRouter struct {
	engine    *iam.Engine
	resolver  *iam.Resolver
	transport Transport
	fallback  Router
	results   *ResultCache
}

// ProxiedRouterOptions collects the Proxied router's dependencies.
// Fallback is the Direct router; Results receives background read
// outcomes.
type ProxiedRouterOptions struct {
	Engine    *iam.Engine
	Resolver  *iam.Resolver
	Transport Transport
	Fallback  Router
	Results   *ResultCache
}

func NewProxiedRouter(opts ProxiedRouterOptions) *ProxiedRouter {
	return &ProxiedRouter{
		engine:    opts.Engine,
		resolver:  opts.Resolver,
		transport: opts.Transport,
		fallback:  opts.Fallback,
		results:   opts.Results,
	}
}

func (r *ProxiedRouter) GetLogs(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, opts LogOptions) (*LogsResult, error) {
	if err := r.engine.Authorize(ctx, principal, []string{auth.ReadLogs}, iam.ModeAny); err != nil {
		return nil, err
	}

	args := map[string]any{"limit": opts.Limit}
	if opts.Level != "" {
		args["level"] = opts.Level
	}
	if opts.Since != "" {
		args["since"] = opts.Since
	}

	requestID := r.launchRead(ToolGetLogs, args, fwd)
	entries := placeholderLogs(opts)
	return &LogsResult{
		URI:       "logs",
		Type:      "logs",
		Count:     len(entries),
		Filters:   opts,
		Loading:   true,
		Message:   loadingMessage,
		RequestID: requestID,
		Data:      entries,
	}, nil
}

func (r *ProxiedRouter) GetMetrics(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, opts MetricOptions) (*MetricsResult, error) {
	if err := r.engine.Authorize(ctx, principal, []string{auth.ReadMetrics}, iam.ModeAny); err != nil {
		return nil, err
	}

	args := map[string]any{"limit": opts.Limit}
	if opts.Service != "" {
		args["service"] = opts.Service
	}

	requestID := r.launchRead(ToolGetMetrics, args, fwd)
	points := placeholderMetrics(opts)
	return &MetricsResult{
		URI:       "metrics",
		Type:      "metrics",
		Count:     len(points),
		Filters:   opts,
		Loading:   true,
		Message:   loadingMessage,
		RequestID: requestID,
		Data:      points,
	}, nil
}

func (r *ProxiedRouter) Deploy(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, req DeployRequest) (*WriteResult, error) {
	if err := r.engine.AuthorizeEnvironment(ctx, principal, "deploy", req.Environment); err != nil {
		return nil, err
	}

	result, err := r.transport.Call(ctx, ToolDeployService, map[string]any{
		"service_name": req.ServiceName,
		"version":      req.Version,
		"environment":  req.Environment,
	}, fwd)
	if err != nil {
		if !errs.IsGateway(err) {
			return nil, err
		}
		log.Printf("WARNING: gateway deploy failed, falling back to direct mode: %v", err)
		return r.fallback.Deploy(ctx, principal, fwd, req)
	}

	return &WriteResult{Tool: ToolDeployService, Success: true, Result: result}, nil
}

func (r *ProxiedRouter) Rollback(ctx context.Context, principal *iam.Principal, fwd ForwardHeaders, req RollbackRequest) (*WriteResult, error) {
	if err := r.engine.AuthorizeEnvironment(ctx, principal, "rollback", req.Environment); err != nil {
		return nil, err
	}

	result, err := r.transport.Call(ctx, ToolRollbackDeployment, map[string]any{
		"deployment_id": req.DeploymentID,
		"reason":        req.Reason,
		"environment":   req.Environment,
	}, fwd)
	if err != nil {
		if !errs.IsGateway(err) {
			return nil, err
		}
		log.Printf("WARNING: gateway rollback failed, falling back to direct mode: %v", err)
		return r.fallback.Rollback(ctx, principal, fwd, req)
	}

	return &WriteResult{Tool: ToolRollbackDeployment, Success: true, Result: result}, nil
}

func (r *ProxiedRouter) Authenticate(ctx context.Context, sessionToken, refreshToken string) (*iam.Principal, error) {
	// Authentication always runs against the identity provider
	// directly; the audit gateway adds nothing to credential checks.
	return r.resolver.Resolve(ctx, sessionToken, refreshToken)
}

// launchRead starts the authoritative read in a detached goroutine and
// returns the request id the caller can poll. The goroutine is not
// tied to the inbound request context: the caller has already been
// answered, so cancellation would only lose the cached result.
func (r *ProxiedRouter) launchRead(tool string, args map[string]any, fwd ForwardHeaders) string {
	requestID := newRequestID(tool, args)
	r.results.Pending(requestID, tool)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundReadTimeout)
		defer cancel()

		payload, err := r.transport.Call(ctx, tool, args, fwd)
		if err != nil {
			log.Printf("WARNING: background %s call failed: %v", tool, err)
			r.results.Fail(requestID, tool, err)
			return
		}
		r.results.Complete(requestID, tool, payload)
	}()

	return requestID
}
