package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/gateway"
	"github.com/opsgate/opsgate/internal/services/iam"
	"github.com/opsgate/opsgate/internal/services/validation"
)

const mcpProtocolVersion = "2024-11-05"

// mcpRequest is an inbound JSON-RPC request on the MCP endpoint.
type mcpRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *mcpError `json:"error,omitempty"`
}

// toolDescriptor is the tools/list entry for a single tool.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// toolSchemas holds the argument schema per tool as JSON Schema source.
// The same documents drive both tools/list and argument validation.
var toolSchemas = map[string]string{
	gateway.ToolGetLogs: `{
		"type": "object",
		"properties": {
			"level": {"type": "string", "enum": ["DEBUG", "INFO", "WARN", "ERROR"], "description": "Minimum log level to return"},
			"limit": {"type": "integer", "minimum": 1, "maximum": 1000, "description": "Maximum number of entries"},
			"since": {"type": "string", "description": "Only entries newer than this RFC3339 timestamp"}
		},
		"additionalProperties": false
	}`,
	gateway.ToolGetMetrics: `{
		"type": "object",
		"properties": {
			"limit": {"type": "integer", "minimum": 1, "maximum": 500, "description": "Maximum number of points"},
			"service": {"type": "string", "description": "Restrict points to one service"}
		},
		"additionalProperties": false
	}`,
	gateway.ToolDeployService: `{
		"type": "object",
		"properties": {
			"service_name": {"type": "string", "description": "Name of the service to deploy"},
			"version": {"type": "string", "description": "Version to deploy"},
			"environment": {"type": "string", "enum": ["staging", "production"], "description": "Target environment"}
		},
		"required": ["service_name", "version", "environment"],
		"additionalProperties": false
	}`,
	gateway.ToolRollbackDeployment: `{
		"type": "object",
		"properties": {
			"deployment_id": {"type": "string", "description": "ID of the deployment to roll back"},
			"reason": {"type": "string", "minLength": 5, "description": "Reason for the rollback"},
			"environment": {"type": "string", "enum": ["staging", "production"], "description": "Environment of the deployment"}
		},
		"required": ["deployment_id", "reason", "environment"],
		"additionalProperties": false
	}`,
}

var toolDescriptions = map[string]string{
	gateway.ToolGetLogs:            "Read recent application and system logs with optional filtering",
	gateway.ToolGetMetrics:         "Read recent performance and health metrics",
	gateway.ToolDeployService:      "Deploy a service to a specific environment",
	gateway.ToolRollbackDeployment: "Roll back a deployment to its previous version",
}

// MCPHandler serves the JSON-RPC MCP endpoint: session handshake,
// tools/list, and tools/call dispatching into the routing layer.
type MCPHandler struct {
	factory   *gateway.Factory
	validator *validation.SchemaValidator
}

// NewMCPHandler builds the MCP endpoint handler. Compiled argument
// schemas are cached across calls.
func NewMCPHandler(factory *gateway.Factory) *MCPHandler {
	validator, err := validation.NewSchemaValidator(len(toolSchemas) * 2)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(fmt.Sprintf("create schema validator: %v", err))
	}
	return &MCPHandler{factory: factory, validator: validator}
}

func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req mcpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, http.StatusBadRequest, mcpResponse{
			JSONRPC: "2.0",
			Error:   &mcpError{Code: -32700, Message: "parse error"},
		})
		return
	}

	switch req.Method {
	case "initialize":
		h.handleInitialize(w, req)
	case "notifications/initialized":
		// Acknowledgement only; the session carries no server-side state
		// beyond the issued id.
		w.WriteHeader(http.StatusAccepted)
	case "tools/list":
		writeRPC(w, http.StatusOK, mcpResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]any{"tools": listTools()},
		})
	case "tools/call":
		h.handleToolCall(w, r, req)
	default:
		writeRPC(w, http.StatusOK, mcpResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &mcpError{Code: -32601, Message: fmt.Sprintf("method not found: %s", req.Method)},
		})
	}
}

func (h *MCPHandler) handleInitialize(w http.ResponseWriter, req mcpRequest) {
	sessionID := uuid.NewString()
	w.Header().Set("Mcp-Session-Id", sessionID)
	log.Printf("INFO: mcp session initialized: %s", sessionID)

	writeRPC(w, http.StatusOK, mcpResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"capabilities": map[string]any{
				"tools":     map[string]any{"listChanged": false},
				"resources": map[string]any{"subscribe": false, "listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    "opsgate",
				"version": "1.0.0",
			},
		},
	})
}

func (h *MCPHandler) handleToolCall(w http.ResponseWriter, r *http.Request, req mcpRequest) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPC(w, http.StatusOK, mcpResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &mcpError{Code: -32602, Message: "invalid params"},
			})
			return
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	schemaSource, ok := toolSchemas[params.Name]
	if !ok {
		writeRPC(w, http.StatusOK, mcpResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &mcpError{Code: -32602, Message: fmt.Sprintf("unknown tool: %s", params.Name)},
		})
		return
	}

	if err := h.validator.Validate(params.Name, schemaSource, params.Arguments); err != nil {
		writeRPC(w, http.StatusOK, mcpResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &mcpError{Code: -32602, Message: err.Error()},
		})
		return
	}

	principal, ok := iam.PrincipalFromContext(r.Context())
	if !ok {
		// The auth middleware normally rejects first; keep the
		// envelope JSON-RPC shaped for direct wiring.
		writeRPC(w, http.StatusUnauthorized, mcpResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &mcpError{Code: -32000, Message: "authentication required"},
		})
		return
	}

	result, err := h.dispatch(r, principal, params.Name, params.Arguments)
	if err != nil {
		writeRPC(w, http.StatusOK, mcpResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  toolErrorResult(err),
		})
		log.Printf("WARNING: mcp tool %s failed for %s: %v", params.Name, principal.UserID, err)
		return
	}

	writeRPC(w, http.StatusOK, mcpResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  toolResult(result),
	})
}

// dispatch routes a validated tool call into the active router.
func (h *MCPHandler) dispatch(r *http.Request, principal *iam.Principal, tool string, args map[string]any) (any, error) {
	ctx := r.Context()
	fwd := forwardHeaders(r)
	router := h.factory.Router()

	switch tool {
	case gateway.ToolGetLogs:
		opts := gateway.LogOptions{Limit: 100}
		if err := remarshal(args, &opts); err != nil {
			return nil, err
		}
		if opts.Limit <= 0 {
			opts.Limit = 100
		}
		return router.GetLogs(ctx, principal, fwd, opts)
	case gateway.ToolGetMetrics:
		opts := gateway.MetricOptions{Limit: 50}
		if err := remarshal(args, &opts); err != nil {
			return nil, err
		}
		if opts.Limit <= 0 {
			opts.Limit = 50
		}
		return router.GetMetrics(ctx, principal, fwd, opts)
	case gateway.ToolDeployService:
		var req gateway.DeployRequest
		if err := remarshal(args, &req); err != nil {
			return nil, err
		}
		return router.Deploy(ctx, principal, fwd, req)
	case gateway.ToolRollbackDeployment:
		var req gateway.RollbackRequest
		if err := remarshal(args, &req); err != nil {
			return nil, err
		}
		return router.Rollback(ctx, principal, fwd, req)
	default:
		return nil, fmt.Errorf("unknown tool: %s", tool)
	}
}

func listTools() []toolDescriptor {
	descriptors := make([]toolDescriptor, 0, len(toolSchemas))
	for _, name := range []string{
		gateway.ToolGetLogs,
		gateway.ToolGetMetrics,
		gateway.ToolDeployService,
		gateway.ToolRollbackDeployment,
	} {
		var schema map[string]any
		if err := json.Unmarshal([]byte(toolSchemas[name]), &schema); err != nil {
			continue
		}
		descriptors = append(descriptors, toolDescriptor{
			Name:        name,
			Description: toolDescriptions[name],
			InputSchema: schema,
		})
	}
	return descriptors
}

// toolResult wraps a typed routing result into the MCP content envelope.
func toolResult(result any) map[string]any {
	structured := map[string]any{}
	if raw, err := json.Marshal(result); err == nil {
		_ = json.Unmarshal(raw, &structured)
	}
	text, _ := json.Marshal(structured)
	return map[string]any{
		"content":           []map[string]any{{"type": "text", "text": string(text)}},
		"structuredContent": structured,
		"isError":           false,
	}
}

// toolErrorResult reports a tool failure inside the result envelope, as
// the protocol expects for execution errors.
func toolErrorResult(err error) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": err.Error()}},
		"isError": true,
	}
}

// remarshal converts loosely typed arguments into a request struct.
func remarshal(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.NewValidation("arguments", "arguments are not serializable")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.NewValidation("arguments", "arguments do not match the tool contract")
	}
	return nil
}

func writeRPC(w http.ResponseWriter, status int, resp mcpResponse) {
	writeJSON(w, status, resp)
}
