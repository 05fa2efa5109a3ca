package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC 2.0 envelope types for the MCP wire format.

const jsonrpcVersion = "2.0"

// MCP methods issued by the transport.
const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodToolsCall   = "tools/call"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *rpcError      `json:"error,omitempty"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// parseEnvelope extracts the result object from a gateway response
// body, which is either a plain JSON-RPC response or a text/event-
// stream of `data: {json}` lines. A populated error member fails the
// call; reads scan the stream for the first data line carrying either.
func parseEnvelope(contentType string, body []byte) (map[string]any, error) {
	if strings.HasPrefix(contentType, "text/event-stream") {
		return parseEventStream(body)
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return resultOrError(&resp)
}

func parseEventStream(body []byte) (map[string]any, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &resp); err != nil {
			return nil, fmt.Errorf("decode event stream entry: %w", err)
		}
		if resp.Result != nil || resp.Error != nil {
			return resultOrError(&resp)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return nil, fmt.Errorf("no result in event stream")
}

func resultOrError(resp *rpcResponse) (map[string]any, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("gateway returned error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("gateway response carries no result")
	}
	return resp.Result, nil
}
