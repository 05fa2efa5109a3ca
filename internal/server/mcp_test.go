package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/internal/gateway"
)

func (s *testServer) rpc(t *testing.T, token string, req map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func decodeRPC(t *testing.T, w *httptest.ResponseRecorder) mcpResponse {
	t.Helper()
	var resp mcpResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestMCPInitializeIssuesSession(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"clientInfo":      map[string]any{"name": "test", "version": "0.0.1"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("Mcp-Session-Id"))

	resp := decodeRPC(t, w)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Equal(t, mcpProtocolVersion, result["protocolVersion"])
	require.Contains(t, result, "capabilities")
}

func TestMCPInitializedNotificationAccepted(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestMCPToolsList(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 4)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		entry := tool.(map[string]any)
		names = append(names, entry["name"].(string))
		require.Contains(t, entry, "inputSchema")
	}
	require.Contains(t, names, gateway.ToolGetLogs)
	require.Contains(t, names, gateway.ToolDeployService)
}

func TestMCPToolCallReadsLogs(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      gateway.ToolGetLogs,
			"arguments": map[string]any{"level": "ERROR", "limit": 5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Equal(t, false, result["isError"])

	structured := result["structuredContent"].(map[string]any)
	require.Equal(t, "logs", structured["uri"])
	data := structured["data"].([]any)
	require.NotEmpty(t, data)
	require.LessOrEqual(t, len(data), 5)
}

func TestMCPToolCallRejectsBadArguments(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "sre-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      4,
		"method":  "tools/call",
		"params": map[string]any{
			"name": gateway.ToolDeployService,
			// version missing, environment outside the enum
			"arguments": map[string]any{"service_name": "api", "environment": "qa"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func TestMCPToolCallUnknownTool(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      5,
		"method":  "tools/call",
		"params":  map[string]any{"name": "dropTables"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func TestMCPToolCallDeniedReportsToolError(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      6,
		"method":  "tools/call",
		"params": map[string]any{
			"name": gateway.ToolDeployService,
			"arguments": map[string]any{
				"service_name": "test-service",
				"version":      "1.0.0",
				"environment":  "staging",
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Equal(t, true, result["isError"])
}

func TestMCPToolCallDeploySucceeds(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "sre-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  "tools/call",
		"params": map[string]any{
			"name": gateway.ToolDeployService,
			"arguments": map[string]any{
				"service_name": "test-service",
				"version":      "2.0.0",
				"environment":  "production",
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Equal(t, false, result["isError"])

	structured := result["structuredContent"].(map[string]any)
	require.Equal(t, true, structured["success"])
}

func TestMCPUnknownMethod(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "observer-token", map[string]any{
		"jsonrpc": "2.0",
		"id":      8,
		"method":  "resources/subscribe",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRPC(t, w)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestMCPRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	w := srv.rpc(t, "", map[string]any{
		"jsonrpc": "2.0",
		"id":      9,
		"method":  "tools/list",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMCPToolCallWithoutPrincipalAnswersRPCError(t *testing.T) {
	// Handler mounted without the auth middleware: the envelope must
	// still be JSON-RPC shaped.
	srv := newTestServer(t)
	handler := NewMCPHandler(srv.factory)

	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      10,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      gateway.ToolGetLogs,
			"arguments": map[string]any{"limit": 5},
		},
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeRPC(t, w)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32000, resp.Error.Code)
}
