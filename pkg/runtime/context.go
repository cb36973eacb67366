package runtime

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ormasoftchile/polytest/pkg/bind"
	"github.com/ormasoftchile/polytest/pkg/execute"
)

// execContext is the mutable state of one environment activation: the
// placeholder table, variables captured so far, the working directory,
// and the optional interactive session. Per-run isolation gives every
// run its own context; shared isolation activates one context per
// environment and hands read-only views to each run.
type execContext struct {
	env     *CompiledEnv
	workdir string
	scratch string // private temp dir, "" for shared contexts

	vars     map[string]string // environment placeholders plus builtins
	captured map[string]string // variables bound by named-group captures

	session *execute.Session
}

// newExecContext activates an environment. Per-run contexts get a
// private scratch directory that doubles as the working directory when
// the environment does not pin one.
func newExecContext(env *CompiledEnv, perRun bool) (*execContext, error) {
	ec := &execContext{
		env:      env,
		workdir:  env.Workdir,
		captured: make(map[string]string),
	}

	if perRun {
		scratch, err := os.MkdirTemp("", "polytest-run-")
		if err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		ec.scratch = scratch
		if ec.workdir == "" {
			ec.workdir = scratch
		}
	}

	ec.vars = bind.Merge(env.Vars, map[string]string{
		"environment": env.Name,
	})
	if ec.scratch != "" {
		ec.vars["scratch"] = ec.scratch
	}
	return ec, nil
}

// fork derives a per-run view of a shared context: placeholders, the
// working directory, and the session are shared, but each run captures
// variables into its own private map.
func (ec *execContext) fork() *execContext {
	return &execContext{
		env:      ec.env,
		workdir:  ec.workdir,
		vars:     ec.vars,
		captured: make(map[string]string),
		session:  ec.session,
	}
}

// binding returns the variable scope for template resolution: captured
// variables shadow environment placeholders of the same name.
func (ec *execContext) binding() map[string]string {
	return bind.Merge(ec.vars, ec.captured)
}

// exprEnv builds the when-guard environment. Captured values that parse
// as numbers or booleans are converted so guards can write
// "attempts > 2" instead of string comparisons.
func (ec *execContext) exprEnv() map[string]any {
	env := make(map[string]any)
	for k, v := range ec.vars {
		env[k] = v
	}
	for k, v := range ec.captured {
		env[k] = parseCapture(v)
	}
	return env
}

// parseCapture promotes a captured string to int, float, or bool when it
// parses cleanly as one.
func parseCapture(v string) any {
	trimmed := strings.TrimSpace(v)
	if i, err := strconv.Atoi(trimmed); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(trimmed); err == nil {
		return b
	}
	return v
}

// processEnv builds the child process environment: the parent's, plus
// any step-level additions resolved against the current binding.
func (ec *execContext) processEnv(extra map[string]string) ([]string, error) {
	if len(extra) == 0 {
		return nil, nil // inherit
	}
	env := os.Environ()
	binding := ec.binding()
	for k, v := range extra {
		resolved, err := bind.Resolve(v, binding)
		if err != nil {
			return nil, err
		}
		env = append(env, k+"="+resolved)
	}
	return env, nil
}

// absorb merges newly captured variables into the context. Consistency
// was already enforced during matching.
func (ec *execContext) absorb(captures map[string]string) {
	for k, v := range captures {
		ec.captured[k] = v
	}
}

// close releases the context: the session is always stopped and the
// scratch directory removed. Errors are reported but never override a
// run outcome.
func (ec *execContext) close() error {
	var first error
	if ec.session != nil {
		if err := ec.session.Close(); err != nil && first == nil {
			first = err
		}
		ec.session = nil
	}
	if ec.scratch != "" {
		if err := os.RemoveAll(ec.scratch); err != nil && first == nil {
			first = err
		}
		ec.scratch = ""
	}
	return first
}
