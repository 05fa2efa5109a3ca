package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/telemetry"
)

// Tool names exposed by the external gateway.
const (
	ToolGetLogs            = "getMcpResourcesLogs"
	ToolGetMetrics         = "getMcpResourcesMetrics"
	ToolDeployService      = "postMcpToolsDeployService"
	ToolRollbackDeployment = "postMcpToolsRollbackDeployment"
)

const (
	protocolVersion  = "2024-11-05"
	transportTimeout = 30 * time.Second
	userAgent        = "opsgate/1.0"
)

// SessionState is the transport handshake state.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionInitializing
	SessionReady
)

func (s SessionState) String() string {
	switch s {
	case SessionInitializing:
		return "initializing"
	case SessionReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Transport issues tool calls against the external gateway.
type Transport interface {
	Call(ctx context.Context, tool string, args map[string]any, fwd ForwardHeaders) (map[string]any, error)
}

// HTTPTransport speaks the MCP streamable HTTP protocol: a one-time
// initialize/initialized handshake that yields a session identifier,
// then tools/call envelopes carrying it.
//
// The handshake is mutex-guarded: concurrent cold-start calls wait for
// the same initialization instead of racing, and it runs at most once
// per process. On handshake failure the state rolls back to
// Uninitialized so a later call can retry.
type HTTPTransport struct {
	url    string
	client *http.Client

	mu        sync.Mutex
	state     SessionState
	sessionID string
}

func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: transportTimeout},
	}
}

// State reports the handshake state and session id for the status
// endpoint.
func (t *HTTPTransport) State() (SessionState, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.sessionID
}

// Call ensures the session handshake has completed, then sends one
// tools/call envelope. Failures are *errs.GatewayError so callers can
// apply the write-path fallback.
func (t *HTTPTransport) Call(ctx context.Context, tool string, args map[string]any, fwd ForwardHeaders) (map[string]any, error) {
	ctx, span := telemetry.StartSpan(ctx, "opsgate/gateway", "gateway.ToolCall",
		attribute.String("tool.name", tool),
	)
	defer span.End()

	if err := t.ensureReady(ctx); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	envelope := rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      uuid.NewString(),
		Method:  methodToolsCall,
		Params:  toolCallParams{Name: tool, Arguments: args},
	}

	result, err := t.send(ctx, envelope, fwd)
	if err != nil {
		gatewayErr := errs.NewGateway(tool, err)
		telemetry.RecordError(span, gatewayErr)
		return nil, gatewayErr
	}
	return result, nil
}

// ensureReady runs the handshake exactly once. The mutex is held for
// the whole handshake so concurrent first calls serialize behind it;
// once Ready the critical section is a single state read.
func (t *HTTPTransport) ensureReady(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == SessionReady {
		return nil
	}

	t.state = SessionInitializing
	sessionID, err := t.initialize(ctx)
	if err != nil {
		// Roll back so the next call retries the handshake.
		t.state = SessionUninitialized
		return errs.NewGateway("initialize", err)
	}

	t.sessionID = sessionID
	t.state = SessionReady
	log.Printf("INFO: gateway session initialized: %s", sessionID)

	// The initialized notification is required by the protocol but its
	// failure does not invalidate the session.
	if err := t.notifyInitialized(ctx); err != nil {
		log.Printf("WARNING: initialized notification failed: %v", err)
	}
	return nil
}

func (t *HTTPTransport) initialize(ctx context.Context) (string, error) {
	envelope := rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      uuid.NewString(),
		Method:  methodInitialize,
		Params: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"resources": map[string]any{"subscribe": true, "listChanged": true},
				"tools":     map[string]any{"listChanged": true},
			},
			"clientInfo": map[string]any{
				"name":    "opsgate",
				"version": "1.0.0",
			},
		},
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	t.setHeaders(req, ForwardHeaders{})

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("initialize request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("initialize returned status %d", resp.StatusCode)
	}

	sessionID := resp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		return "", fmt.Errorf("initialize response carries no session id")
	}
	return sessionID, nil
}

func (t *HTTPTransport) notifyInitialized(ctx context.Context) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonrpcVersion,
		Method:  methodInitialized,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	t.setHeaders(req, ForwardHeaders{})

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification returned status %d", resp.StatusCode)
	}
	return nil
}

// send posts one envelope and parses the result, handling both plain
// JSON and event-stream response bodies.
func (t *HTTPTransport) send(ctx context.Context, envelope rpcRequest, fwd ForwardHeaders) (map[string]any, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	t.setHeaders(req, fwd)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return parseEnvelope(resp.Header.Get("Content-Type"), data)
}

// setHeaders applies the MCP transport headers plus the caller's
// forwarded credentials. sessionID is read under the mutex by callers
// of ensureReady before send runs, so reading it here without the lock
// is safe: it never changes once Ready.
func (t *HTTPTransport) setHeaders(req *http.Request, fwd ForwardHeaders) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("MCP-Protocol-Version", protocolVersion)
	req.Header.Set("User-Agent", userAgent)
	if t.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	if fwd.Authorization != "" {
		req.Header.Set("Authorization", fwd.Authorization)
	}
	if fwd.Cookie != "" {
		req.Header.Set("Cookie", fwd.Cookie)
	}
}
