// Package rlmerrors implements the closed error-kind taxonomy used across
// the RLM runtime, grounded on the teacher's consistent
// fmt.Errorf("...: %w", err) wrapping style (seen throughout
// internal/embedding, internal/mcp, internal/mangle in the pack).
package rlmerrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error kinds a component may surface.
type Kind string

const (
	KindBudgetExhausted Kind = "budget_exhausted"
	KindConfig          Kind = "config"
	KindInternal        Kind = "internal"
	KindSubprocessComm  Kind = "subprocess_comm"
	KindReplExecution   Kind = "repl_execution"
	KindTimeout         Kind = "timeout"
	KindSerialization   Kind = "serialization"
	KindValidation      Kind = "validation"
	KindRoutingFailure  Kind = "routing_failure"
	KindProviderError   Kind = "provider_error"
)

// Error is the runtime's structured error type. It implements errors.As /
// errors.Is via Unwrap and a sentinel comparison on Kind.
type Error struct {
	Kind     Kind
	Message  string
	Path     string // dotted field path, populated for KindValidation
	Provider string // populated for KindProviderError
	Status   int    // provider HTTP/RPC status, populated for KindProviderError
	Err      error  // wrapped cause, if any
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Kind == KindValidation && e.Path != "" {
		prefix = fmt.Sprintf("%s[%s]", prefix, e.Path)
	}
	if e.Kind == KindProviderError && e.Provider != "" {
		prefix = fmt.Sprintf("%s[%s:%d]", prefix, e.Provider, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, rlmerrors.New(KindTimeout, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// New constructs a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Validation constructs a KindValidation error carrying a dotted field
// path, e.g. "user.address.city".
func Validation(path, message string) *Error {
	return &Error{Kind: KindValidation, Path: path, Message: message}
}

// Provider constructs a KindProviderError error naming the offending
// provider and its wire status code.
func Provider(provider string, status int, message string, cause error) *Error {
	return &Error{Kind: KindProviderError, Provider: provider, Status: status, Message: message, Err: cause}
}

// BudgetExhausted constructs the sentinel error returned when the cost or
// token budget has been exceeded; it short-circuits the current top-level
// execute.
func BudgetExhausted(message string) *Error {
	return &Error{Kind: KindBudgetExhausted, Message: message}
}

// Timeout constructs the sentinel error returned when a model call, REPL
// call, or batched query exceeds its deadline.
func Timeout(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

// Internal constructs an internal fault. Used, among other things, for the
// adapter's one-shot "RLM already executing" interlock rejection.
func Internal(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
