package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
	"github.com/rlm-systems/rlm-runtime/internal/signature"
)

// HandleStatus is the closed set of lifecycle states a Handle can be in.
type HandleStatus string

const (
	StatusIdle    HandleStatus = "idle"
	StatusRunning HandleStatus = "running"
	StatusDead    HandleStatus = "dead"
)

// pendingOp tracks one deferred operation emitted by a running execute
// call, keyed by an opaque ID the host must resolve via ResolveOperation.
// yaegi's Eval has no cooperative-suspension hooks, so a deferred
// operation cannot pause mid-execute and resume in the same call the way
// the upstream protocol's async REPL can: code that needs a deferred
// result emits it, the execute call returns with it listed in
// PendingOperations, the host resolves it out of band, and a later
// execute call reads the resolved value back via GetVariable on
// resolvedValueVar(id).
type pendingOp struct {
	op rlmtypes.PendingOperation
}

// Handle is the in-process state machine a single yaegi interpreter
// instance presents, implementing every REPL verb: execute, get_variable,
// set_variable, resolve_operation, register_signature, clear_signature,
// reset, shutdown, status, list_variables. cmd/rlm-yaegi-repl wires one
// Handle's methods directly to a jsonrpcframe.Server as its Handler.
type Handle struct {
	mu sync.Mutex

	interp *interpreter
	status HandleStatus

	signatureName   string
	signatureFields []rlmtypes.FieldSpec

	variables map[string]interface{}
	pending   map[string]*pendingOp
}

// NewHandle constructs a fresh, idle REPL handle.
func NewHandle() *Handle {
	return &Handle{
		interp:    newInterpreter(),
		status:    StatusIdle,
		variables: make(map[string]interface{}),
		pending:   make(map[string]*pendingOp),
	}
}

// Status reports the handle's current lifecycle state and pending
// operation count, for the status verb.
func (h *Handle) Status() (HandleStatus, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, len(h.pending)
}

// ListVariables returns the names of every variable set via SetVariable
// (the REPL's own top-level bindings, not yaegi's internal runtime state).
func (h *Handle) ListVariables() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.variables))
	for name := range h.variables {
		names = append(names, name)
	}
	return names
}

// Execute runs code inside the interpreter's persistent scope and returns
// the wire-level ExecuteResult. If a signature is registered and the code
// calls SUBMIT(...), SubmitResult records the typed validation outcome.
func (h *Handle) Execute(ctx context.Context, code string, timeoutMs int, captureOutput bool) (rlmtypes.ExecuteResult, error) {
	h.mu.Lock()
	if h.status == StatusDead {
		h.mu.Unlock()
		return rlmtypes.ExecuteResult{}, rlmerrors.New(rlmerrors.KindReplExecution, "handle is dead")
	}
	h.status = StatusRunning
	fields := h.signatureFields
	sigName := h.signatureName
	h.mu.Unlock()

	timeout := time.Duration(timeoutMs) * time.Millisecond
	result := h.interp.run(ctx, code, timeout)

	h.mu.Lock()
	defer h.mu.Unlock()

	if result.err != nil {
		if isTimeoutErr(result.err) {
			h.status = StatusDead
		} else {
			h.status = StatusIdle
		}
		out := rlmtypes.ExecuteResult{
			Success:         false,
			Error:           result.err.Error(),
			ErrorType:       errorType(result.err),
			ExecutionTimeMs: result.duration.Milliseconds(),
		}
		if captureOutput {
			out.Stdout, out.Stderr = result.stdout, result.stderr
		}
		return out, nil
	}

	h.status = StatusIdle
	out := rlmtypes.ExecuteResult{
		Success:         true,
		Result:          result.value,
		ExecutionTimeMs: result.duration.Milliseconds(),
	}
	if captureOutput {
		out.Stdout, out.Stderr = result.stdout, result.stderr
	}

	for _, p := range h.pending {
		out.PendingOperations = append(out.PendingOperations, p.op)
	}

	if submitPayload, ok := h.readSubmitBinding(code); ok {
		if len(fields) == 0 {
			out.SubmitResult = &rlmtypes.SubmitResult{
				Status: rlmtypes.SubmitValidation,
				Errors: []string{"SUBMIT called with no signature registered"},
			}
		} else {
			signature.ApplyDefaults(submitPayload, fields)
			if errs := signature.Validate(submitPayload, fields); len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				out.SubmitResult = &rlmtypes.SubmitResult{Status: rlmtypes.SubmitValidation, Errors: msgs}
			} else {
				out.SubmitResult = &rlmtypes.SubmitResult{Status: rlmtypes.SubmitSuccess, Payload: submitPayload}
			}
		}
		logging.SandboxDebug("Execute: signature %q SUBMIT -> %s", sigName, out.SubmitResult.Status)
	}

	return out, nil
}

// readSubmitBinding reads the top-level `SUBMIT` variable interpreted code
// assigns to signal a submission, e.g. `SUBMIT := map[string]interface{}{"answer": 42}`.
// It only looks once the just-run code textually mentions SUBMIT, so a
// stale binding from an earlier call in the same session isn't mistaken
// for a fresh submission.
func (h *Handle) readSubmitBinding(code string) (map[string]interface{}, bool) {
	if !contains(code, "SUBMIT") {
		return nil, false
	}
	raw, err := h.interp.getVariable("SUBMIT")
	if err != nil || raw == nil {
		return nil, false
	}
	payload, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return payload, true
}

// GetVariable reads a binding out of the interpreter's persistent scope.
func (h *Handle) GetVariable(name string) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusDead {
		return nil, rlmerrors.New(rlmerrors.KindReplExecution, "handle is dead")
	}
	return h.interp.getVariable(name)
}

// SetVariable assigns a binding in the interpreter's persistent scope and
// records it for ListVariables/reset bookkeeping.
func (h *Handle) SetVariable(name string, value interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusDead {
		return rlmerrors.New(rlmerrors.KindReplExecution, "handle is dead")
	}
	if err := h.interp.setVariable(name, value); err != nil {
		return rlmerrors.Wrap(rlmerrors.KindReplExecution, "set_variable failed", err)
	}
	h.variables[name] = value
	return nil
}

// AddPendingOperation registers a deferred operation an execute call
// emitted (e.g. an LLM call issued from interpreted code) and returns its
// opaque ID, surfaced in the next ExecuteResult.PendingOperations.
func (h *Handle) AddPendingOperation(kind string, payload map[string]interface{}) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.pending[id] = &pendingOp{op: rlmtypes.PendingOperation{ID: id, Kind: kind, Payload: payload}}
	return id
}

// ResolveOperation resolves a previously emitted deferred operation by ID:
// the result becomes readable via GetVariable(resolvedValueVar(id)) in the
// next execute call, and the operation is removed from the pending set.
func (h *Handle) ResolveOperation(id string, result interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pending[id]; !ok {
		return rlmerrors.New(rlmerrors.KindValidation, fmt.Sprintf("unknown pending operation id %q", id))
	}
	delete(h.pending, id)
	if err := h.interp.setVariable(resolvedValueVar(id), result); err != nil {
		return rlmerrors.Wrap(rlmerrors.KindReplExecution, "failed to bind resolved operation result", err)
	}
	return nil
}

func resolvedValueVar(id string) string {
	return "__resolved_" + sanitizeIdent(id)
}

func sanitizeIdent(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}

// RegisterSignature installs the output-field contract SUBMIT(outputs)
// must satisfy for the lifetime of the current signature (until
// ClearSignature or Reset).
func (h *Handle) RegisterSignature(fields []rlmtypes.FieldSpec, signatureName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signatureFields = fields
	h.signatureName = signatureName
}

// ClearSignature removes the currently registered signature; SUBMIT calls
// thereafter report a validation error until a new one is registered.
func (h *Handle) ClearSignature() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signatureFields = nil
	h.signatureName = ""
}

// Reset clears the signature, variable bookkeeping, and pending operations
// and replaces the interpreter with a fresh instance, returning the handle
// to StatusIdle. Used by Pool.release between checkouts.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interp = newInterpreter()
	h.signatureFields = nil
	h.signatureName = ""
	h.variables = make(map[string]interface{})
	h.pending = make(map[string]*pendingOp)
	h.status = StatusIdle
}

// Shutdown marks the handle permanently dead; subsequent operations fail.
func (h *Handle) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusDead
}

func isTimeoutErr(err error) bool {
	return err != nil && contains(err.Error(), "timed out")
}

func errorType(err error) string {
	if isTimeoutErr(err) {
		return string(rlmerrors.KindTimeout)
	}
	return string(rlmerrors.KindReplExecution)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
