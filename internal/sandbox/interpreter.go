// Package sandbox implements the REPL side of the sandboxed code-execution
// lifecycle: a yaegi-based interpreter restricted to a stdlib whitelist, a
// Handle exposing the execute/get_variable/set_variable/resolve_operation/
// register_signature/clear_signature/reset/shutdown operation set over it,
// and a host-side Pool that manages handles as subprocesses.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// defaultAllowedPackages is the stdlib whitelist a fresh interpreter loads.
// No network, filesystem, or process-exec packages: "os", "os/exec", "net",
// "net/http", "syscall", and "unsafe" are deliberately absent.
func defaultAllowedPackages() map[string]bool {
	return map[string]bool{
		"strings":         true,
		"strconv":         true,
		"fmt":             true,
		"math":            true,
		"regexp":          true,
		"encoding/json":   true,
		"encoding/base64": true,
		"time":            true,
		"sort":            true,
		"bytes":           true,
		"errors":          true,
		"path":            true,
		"path/filepath":   true,
	}
}

// interpreter wraps one yaegi VM instance restricted to the stdlib
// whitelist, with stdout/stderr captured per call and a long-lived global
// scope so variables set in one execute call are visible to the next.
type interpreter struct {
	vm              *interp.Interpreter
	stdout          *bytes.Buffer
	stderr          *bytes.Buffer
	allowedPackages map[string]bool
	callCount       int
}

func newInterpreter() *interpreter {
	var stdout, stderr bytes.Buffer
	vm := interp.New(interp.Options{Stdout: &stdout, Stderr: &stderr})
	_ = vm.Use(stdlib.Symbols)
	return &interpreter{vm: vm, stdout: &stdout, stderr: &stderr, allowedPackages: defaultAllowedPackages()}
}

// execResult is the raw outcome of one yaegi evaluation, before it is
// folded into the wire-level rlmtypes.ExecuteResult.
type execResult struct {
	value    interface{}
	stdout   string
	stderr   string
	err      error
	duration time.Duration
}

// run evaluates code inside the interpreter's persistent global scope,
// enforcing the import whitelist first and the given timeout second.
func (in *interpreter) run(ctx context.Context, code string, timeout time.Duration) execResult {
	if err := validateImports(code, in.allowedPackages); err != nil {
		return execResult{err: err}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	in.stdout.Reset()
	in.stderr.Reset()

	start := time.Now()
	in.callCount++

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := in.vm.Eval(code)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		var iface interface{}
		if v.IsValid() && v.CanInterface() {
			iface = v.Interface()
		}
		done <- outcome{value: iface}
	}()

	select {
	case o := <-done:
		return execResult{
			value: o.value, err: o.err, duration: time.Since(start),
			stdout: in.stdout.String(), stderr: in.stderr.String(),
		}
	case <-runCtx.Done():
		// The Eval goroutine is abandoned here, not killed: yaegi has no
		// cooperative cancellation. Stdout/stderr snapshots may race with
		// it and are best-effort only. The caller must treat the handle as
		// dead after a timeout, matching the pool's drop-on-timeout policy.
		return execResult{
			err: fmt.Errorf("execution timed out: %w", runCtx.Err()), duration: time.Since(start),
		}
	}
}

// getVariable reads a global variable by name out of the interpreter's
// persistent scope.
func (in *interpreter) getVariable(name string) (interface{}, error) {
	v, err := in.vm.Eval(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q not found: %w", name, err)
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, nil
	}
	return v.Interface(), nil
}

// setVariable assigns a global variable by evaluating a synthetic
// assignment statement; yaegi's REPL-style Eval persists top-level `:=`/`=`
// bindings across calls within the same interpreter instance.
func (in *interpreter) setVariable(name string, value interface{}) error {
	literal, err := goLiteral(value)
	if err != nil {
		return fmt.Errorf("cannot encode value for %q: %w", name, err)
	}
	// Try assignment to an existing binding first, fall back to declaring
	// a new one if that's the first write to this name.
	if _, err := in.vm.Eval(fmt.Sprintf("%s = %s", name, literal)); err != nil {
		if _, err2 := in.vm.Eval(fmt.Sprintf("%s := %s", name, literal)); err2 != nil {
			return fmt.Errorf("failed to set variable %q: %w", name, err2)
		}
	}
	return nil
}

// goLiteral renders a subset of JSON-decoded Go values (string, float64,
// bool, nil, []interface{}, map[string]interface{}) as Go source literals
// suitable for an Eval'd assignment.
func goLiteral(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "interface{}(nil)", nil
	case string:
		return fmt.Sprintf("%q", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	case float64:
		return fmt.Sprintf("float64(%v)", v), nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			lit, err := goLiteral(e)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "[]interface{}{" + strings.Join(parts, ", ") + "}", nil
	case map[string]interface{}:
		parts := make([]string, 0, len(v))
		for k, e := range v {
			lit, err := goLiteral(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%q: %s", k, lit))
		}
		return "map[string]interface{}{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

// validateImports rejects any import not present in allowed, scanning both
// single-line and block import forms.
func validateImports(code string, allowed map[string]bool) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := strings.Trim(trimmed, `"`); pkg != "" {
				imports = append(imports, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.TrimSpace(strings.TrimPrefix(trimmed, "import "))
			imports = append(imports, strings.Trim(pkg, `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}
