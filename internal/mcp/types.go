// Package mcp implements the wire-level JSON-RPC 2.0 types shared by the
// sandboxed REPL transport and the MCP tool surface exposed to the host.
package mcp

import (
	"context"
	"encoding/json"
)

// MCPToolSchema represents a tool schema as advertised over JSON-RPC.
type MCPToolSchema struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// MCPCapabilities represents server capabilities from the MCP protocol.
type MCPCapabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// MCPCallResult represents the result of calling a tool over the transport.
type MCPCallResult struct {
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// mcpRequest is a single JSON-RPC 2.0 request frame.
type mcpRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// mcpError is a JSON-RPC 2.0 error object.
type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponse is a single JSON-RPC 2.0 response frame.
type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

// MCPTransport defines the interface for JSON-RPC-over-subprocess
// transports, implemented by StdioTransport.
type MCPTransport interface {
	// Connect establishes connection to the subprocess.
	Connect(ctx context.Context) error

	// Disconnect closes the connection.
	Disconnect() error

	// ListTools retrieves available tools from the server.
	ListTools(ctx context.Context) ([]MCPToolSchema, error)

	// CallTool invokes a tool on the server.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*MCPCallResult, error)

	// GetCapabilities returns server capabilities.
	GetCapabilities(ctx context.Context) (*MCPCapabilities, error)

	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error

	// IsConnected returns current connection status.
	IsConnected() bool
}
