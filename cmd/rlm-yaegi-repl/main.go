// Command rlm-yaegi-repl is the sandboxed REPL subprocess: it speaks
// line-delimited JSON-RPC 2.0 on stdin/stdout and dispatches every request
// to a single sandbox.Handle. internal/sandbox.Pool spawns one of these per
// pooled handle via NewSubprocessSpawner and talks to it through
// internal/mcp.StdioTransport.Call on the other end of the pipe.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rlm-systems/rlm-runtime/internal/jsonrpcframe"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
	"github.com/rlm-systems/rlm-runtime/internal/sandbox"
)

func main() {
	if ws, err := os.Getwd(); err == nil {
		_ = logging.Initialize(ws)
	}
	defer logging.CloseAll()

	handle := sandbox.NewHandle()
	server := jsonrpcframe.NewServer(os.Stdin, os.Stdout, dispatcher(handle))

	if err := server.Serve(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rlm-yaegi-repl: %v\n", err)
		os.Exit(1)
	}
}

func dispatcher(h *sandbox.Handle) jsonrpcframe.Handler {
	return func(ctx context.Context, method string, params json.RawMessage) (interface{}, *jsonrpcframe.ErrorObject) {
		logging.SandboxDebug("rlm-yaegi-repl: dispatch %s", method)
		switch method {
		case "initialize":
			return handleInitialize()
		case "execute":
			return handleExecute(ctx, h, params)
		case "get_variable":
			return handleGetVariable(h, params)
		case "set_variable":
			return handleSetVariable(h, params)
		case "resolve_operation":
			return handleResolveOperation(h, params)
		case "register_signature":
			return handleRegisterSignature(h, params)
		case "clear_signature":
			h.ClearSignature()
			return map[string]interface{}{"ok": true}, nil
		case "reset":
			h.Reset()
			return map[string]interface{}{"ok": true}, nil
		case "shutdown":
			h.Shutdown()
			return map[string]interface{}{"ok": true}, nil
		case "status":
			status, pending := h.Status()
			return map[string]interface{}{"status": status, "pending_operations": pending}, nil
		case "list_variables":
			return map[string]interface{}{"variables": h.ListVariables()}, nil
		default:
			return nil, &jsonrpcframe.ErrorObject{
				Code:    jsonrpcframe.CodeMethodNotFound,
				Message: fmt.Sprintf("unknown method %q", method),
			}
		}
	}
}

func handleInitialize() (interface{}, *jsonrpcframe.ErrorObject) {
	return map[string]interface{}{
		"capabilities": map[string]bool{"tools": true, "resources": false, "prompts": false, "logging": true},
		"serverInfo":   map[string]string{"name": "rlm-yaegi-repl", "version": "1.0.0"},
	}, nil
}

type executeParams struct {
	Code          string `json:"code"`
	TimeoutMs     int    `json:"timeout_ms"`
	CaptureOutput bool   `json:"capture_output"`
}

func handleExecute(ctx context.Context, h *sandbox.Handle, raw json.RawMessage) (interface{}, *jsonrpcframe.ErrorObject) {
	var p executeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.TimeoutMs <= 0 {
		p.TimeoutMs = 30000
	}
	result, err := h.Execute(ctx, p.Code, p.TimeoutMs, p.CaptureOutput)
	if err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

func handleGetVariable(h *sandbox.Handle, raw json.RawMessage) (interface{}, *jsonrpcframe.ErrorObject) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	value, err := h.GetVariable(p.Name)
	if err != nil {
		return nil, internalError(err)
	}
	return value, nil
}

func handleSetVariable(h *sandbox.Handle, raw json.RawMessage) (interface{}, *jsonrpcframe.ErrorObject) {
	var p struct {
		Name  string      `json:"name"`
		Value interface{} `json:"value"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := h.SetVariable(p.Name, p.Value); err != nil {
		return nil, internalError(err)
	}
	return map[string]interface{}{"ok": true}, nil
}

func handleResolveOperation(h *sandbox.Handle, raw json.RawMessage) (interface{}, *jsonrpcframe.ErrorObject) {
	var p struct {
		ID     string      `json:"id"`
		Result interface{} `json:"result"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := h.ResolveOperation(p.ID, p.Result); err != nil {
		return nil, internalError(err)
	}
	return map[string]interface{}{"ok": true}, nil
}

func handleRegisterSignature(h *sandbox.Handle, raw json.RawMessage) (interface{}, *jsonrpcframe.ErrorObject) {
	var p struct {
		OutputFields  []rlmtypes.FieldSpec `json:"output_fields"`
		SignatureName string               `json:"signature_name"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams(err)
	}
	h.RegisterSignature(p.OutputFields, p.SignatureName)
	return map[string]interface{}{"ok": true}, nil
}

func invalidParams(err error) *jsonrpcframe.ErrorObject {
	return &jsonrpcframe.ErrorObject{Code: jsonrpcframe.CodeInvalidParams, Message: err.Error()}
}

func internalError(err error) *jsonrpcframe.ErrorObject {
	return &jsonrpcframe.ErrorObject{Code: jsonrpcframe.CodeInternalError, Message: err.Error()}
}
