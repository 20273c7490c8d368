package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/mcp"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// rpcCaller is the subset of mcp.StdioTransport a RemoteHandle needs;
// narrowed to an interface so the pool's acquire/release bookkeeping can
// be tested against a fake transport instead of a live subprocess.
type rpcCaller interface {
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
	Disconnect() error
}

// RemoteHandle is the host-side proxy for one REPL subprocess, issuing the
// same operation set as Handle but over a JSON-RPC stdio transport rather
// than in-process method calls.
type RemoteHandle struct {
	transport rpcCaller
	dead      bool
}

// Execute sends an execute request to the subprocess.
func (r *RemoteHandle) Execute(ctx context.Context, code string, timeoutMs int, captureOutput bool) (rlmtypes.ExecuteResult, error) {
	raw, err := r.transport.Call(ctx, "execute", map[string]interface{}{
		"code": code, "timeout_ms": timeoutMs, "capture_output": captureOutput,
	})
	if err != nil {
		r.dead = true
		return rlmtypes.ExecuteResult{}, rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "execute failed", err)
	}
	var result rlmtypes.ExecuteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return rlmtypes.ExecuteResult{}, rlmerrors.Wrap(rlmerrors.KindSerialization, "failed to decode execute result", err)
	}
	return result, nil
}

// GetVariable reads a variable from the subprocess.
func (r *RemoteHandle) GetVariable(ctx context.Context, name string) (interface{}, error) {
	raw, err := r.transport.Call(ctx, "get_variable", map[string]interface{}{"name": name})
	if err != nil {
		r.dead = true
		return nil, rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "get_variable failed", err)
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, rlmerrors.Wrap(rlmerrors.KindSerialization, "failed to decode variable", err)
	}
	return value, nil
}

// SetVariable writes a variable to the subprocess.
func (r *RemoteHandle) SetVariable(ctx context.Context, name string, value interface{}) error {
	_, err := r.transport.Call(ctx, "set_variable", map[string]interface{}{"name": name, "value": value})
	if err != nil {
		r.dead = true
		return rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "set_variable failed", err)
	}
	return nil
}

// RegisterSignature installs the SUBMIT contract on the subprocess.
func (r *RemoteHandle) RegisterSignature(ctx context.Context, fields []rlmtypes.FieldSpec, signatureName string) error {
	_, err := r.transport.Call(ctx, "register_signature", map[string]interface{}{
		"output_fields": fields, "signature_name": signatureName,
	})
	if err != nil {
		r.dead = true
		return rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "register_signature failed", err)
	}
	return nil
}

// ResolveOperation resolves a deferred operation on the subprocess.
func (r *RemoteHandle) ResolveOperation(ctx context.Context, id string, result interface{}) error {
	_, err := r.transport.Call(ctx, "resolve_operation", map[string]interface{}{"id": id, "result": result})
	if err != nil {
		r.dead = true
		return rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "resolve_operation failed", err)
	}
	return nil
}

// reset clears signature/variable/pending state on the subprocess without
// killing it, matching Pool.release's reuse path.
func (r *RemoteHandle) reset(ctx context.Context) error {
	_, err := r.transport.Call(ctx, "reset", nil)
	if err != nil {
		r.dead = true
		return err
	}
	return nil
}

// shutdown tells the subprocess to terminate and disconnects the transport.
func (r *RemoteHandle) shutdown(ctx context.Context) {
	_, _ = r.transport.Call(ctx, "shutdown", nil)
	_ = r.transport.Disconnect()
	r.dead = true
}

// Spawner constructs a new subprocess-backed RemoteHandle, e.g. spawning
// cmd/rlm-yaegi-repl.
type Spawner func(ctx context.Context) (*RemoteHandle, error)

// NewSubprocessSpawner returns a Spawner that launches command/args over
// stdio, waits for the REPL's initialize handshake, and wraps the result
// in a RemoteHandle.
func NewSubprocessSpawner(command string, args ...string) Spawner {
	endpoint := command
	for _, a := range args {
		endpoint += " " + a
	}
	return func(ctx context.Context) (*RemoteHandle, error) {
		transport := mcp.NewStdioTransport(endpoint)
		if err := transport.Connect(ctx); err != nil {
			return nil, rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "failed to spawn REPL subprocess", err)
		}
		if _, err := transport.GetCapabilities(ctx); err != nil {
			_ = transport.Disconnect()
			return nil, rlmerrors.Wrap(rlmerrors.KindSubprocessComm, "REPL handshake failed", err)
		}
		return &RemoteHandle{transport: transport}, nil
	}
}

// Pool is a bounded pool of REPL subprocess handles. acquire pops a live
// handle or spawns a new one; release resets the handle and returns it to
// the pool if it is still alive and the pool isn't full, otherwise the
// handle is dropped and shut down.
type Pool struct {
	mu      sync.Mutex
	spawn   Spawner
	maxSize int
	idle    []*RemoteHandle
	resident int
}

// NewPool constructs a pool bounded at maxSize resident handles (clamped
// to at least 1).
func NewPool(spawn Spawner, maxSize int) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Pool{spawn: spawn, maxSize: maxSize}
}

// Acquire pops a live idle handle, or spawns a new one if none are idle
// and the pool has room; otherwise it blocks-free returns an error (the
// caller is expected to retry or queue, matching the teacher's
// non-blocking acquire-or-fail pool style).
func (p *Pool) Acquire(ctx context.Context) (*RemoteHandle, error) {
	p.mu.Lock()
	for len(p.idle) > 0 {
		h := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if !h.dead {
			p.mu.Unlock()
			return h, nil
		}
		p.resident--
		logging.SandboxDebug("Pool.Acquire: dropped dead idle handle, resident=%d", p.resident)
	}
	if p.resident >= p.maxSize {
		p.mu.Unlock()
		return nil, rlmerrors.New(rlmerrors.KindInternal, fmt.Sprintf("REPL pool exhausted (max_size=%d)", p.maxSize))
	}
	p.resident++
	p.mu.Unlock()

	h, err := p.spawn(ctx)
	if err != nil {
		p.mu.Lock()
		p.resident--
		p.mu.Unlock()
		return nil, err
	}
	return h, nil
}

// Release resets h and returns it to the idle pool if it is alive and the
// pool has room; otherwise h is shut down and dropped.
func (p *Pool) Release(ctx context.Context, h *RemoteHandle) {
	if h.dead {
		p.drop(ctx, h)
		return
	}
	if err := h.reset(ctx); err != nil {
		p.drop(ctx, h)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.maxSize {
		p.resident--
		go h.shutdown(context.Background())
		return
	}
	p.idle = append(p.idle, h)
}

func (p *Pool) drop(ctx context.Context, h *RemoteHandle) {
	p.mu.Lock()
	p.resident--
	p.mu.Unlock()
	h.shutdown(ctx)
}

// Resident reports how many handles the pool currently owns (idle + in
// use), never exceeding maxSize.
func (p *Pool) Resident() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resident
}
