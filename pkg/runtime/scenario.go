package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/polytest/pkg/bind"
	"github.com/ormasoftchile/polytest/pkg/execute"
	"github.com/ormasoftchile/polytest/pkg/logging"
	"github.com/ormasoftchile/polytest/pkg/pattern"
	"github.com/ormasoftchile/polytest/pkg/result"
)

var logger = logging.New("runtime")

// teardownGrace bounds teardown when the run context is already
// cancelled; cleanup still gets a chance to run.
const teardownGrace = 30 * time.Second

// runner executes scenarios against activated environments.
type runner struct {
	suite    *CompiledSuite
	executor execute.Executor
	trace    *result.TraceWriter
}

// traceStep mirrors a step outcome to the trace file when tracing is on.
func (r *runner) traceStep(scenario, environment string, st *result.StepResult) {
	if r.trace == nil {
		return
	}
	if err := r.trace.WriteStep(scenario, environment, st); err != nil {
		logger.Warn("trace write failed", "error", err)
	}
}

// runScenario executes one scenario inside its own environment
// activation (per-run isolation): setup, steps, teardown, release.
func (r *runner) runScenario(ctx context.Context, scn *CompiledScenario, env *CompiledEnv) result.RunResult {
	start := time.Now()
	run := result.RunResult{Scenario: scn.Name, Environment: env.Name}

	ec, err := newExecContext(env, true)
	if err != nil {
		run.Status = result.StatusErrored
		run.Steps = []result.StepResult{{
			Name: "activate environment", Status: result.StatusErrored,
			Error: err.Error(), ErrorKind: result.ErrKindStart,
		}}
		run.Elapsed = time.Since(start)
		return run
	}
	defer func() {
		if err := ec.close(); err != nil {
			logger.Warn("release environment", "environment", env.Name, "error", err)
		}
	}()

	if env.Session != nil {
		if err := r.startSession(ec); err != nil {
			run.Status = result.StatusErrored
			run.Steps = []result.StepResult{{
				Name: "start session", Status: result.StatusErrored,
				Error: err.Error(), ErrorKind: result.ErrKindSession,
			}}
			run.Elapsed = time.Since(start)
			return run
		}
	}

	run.Setup = r.executeSteps(ctx, nil, env.Setup, ec, scn.Name, env.Name)
	setupStatus := result.AggregateRun(run.Setup)
	setupOK := setupStatus == result.StatusPassed || setupStatus == result.StatusSkipped

	if setupOK {
		run.Steps = r.executeSteps(ctx, scn, scn.Steps, ec, scn.Name, env.Name)
	} else {
		run.Steps = skipAll(scn.Steps, "environment setup failed")
	}

	run.Teardown = r.runTeardown(ctx, env, ec, scn.Name)

	run.Status = result.AggregateRun(run.Setup, run.Steps, run.Teardown)
	run.Elapsed = time.Since(start)
	return run
}

// runShared executes one scenario against an already-activated shared
// environment. Setup, teardown, and the session belong to the
// activation, not to this run.
func (r *runner) runShared(ctx context.Context, scn *CompiledScenario, shared *execContext) result.RunResult {
	start := time.Now()
	ec := shared.fork()
	run := result.RunResult{Scenario: scn.Name, Environment: ec.env.Name}
	run.Steps = r.executeSteps(ctx, scn, scn.Steps, ec, scn.Name, ec.env.Name)
	run.Status = result.AggregateRun(run.Steps)
	run.Elapsed = time.Since(start)
	return run
}

// runTeardown executes teardown even when the run context is cancelled,
// under a bounded replacement context.
func (r *runner) runTeardown(ctx context.Context, env *CompiledEnv, ec *execContext, scenario string) []result.StepResult {
	if len(env.Teardown) == 0 {
		return nil
	}
	tdCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		tdCtx, cancel = context.WithTimeout(context.Background(), teardownGrace)
		defer cancel()
	}
	return r.executeSteps(tdCtx, nil, env.Teardown, ec, scenario, env.Name)
}

// startSession resolves and launches the environment's interactive
// session process.
func (r *runner) startSession(ec *execContext) error {
	argv, err := bind.Command(ec.env.Session.Run, ec.env.Session.Argv, ec.binding())
	if err != nil {
		return err
	}
	session, err := execute.StartSession(argv, ec.workdir, nil)
	if err != nil {
		return err
	}
	ec.session = session
	return nil
}

// executeSteps runs a step list in order with fail-fast semantics:
// after a failure, remaining steps are skipped unless the effective
// continue_on_failure allows proceeding. Binding errors and
// cancellation always stop the list; steps unreached because of
// cancellation are recorded as cancelled, not skipped.
func (r *runner) executeSteps(ctx context.Context, scn *CompiledScenario, steps []*CompiledStep, ec *execContext, scenario, environment string) []result.StepResult {
	results := make([]result.StepResult, 0, len(steps))
	stopped := ""
	stoppedStatus := result.StatusSkipped

	for i, step := range steps {
		if ctx.Err() != nil && stopped == "" {
			stopped = "run cancelled"
			stoppedStatus = result.StatusCancelled
		}
		if stopped != "" {
			st := result.StepResult{
				Name: step.Label(i), Index: i,
				Status: stoppedStatus, Error: stopped,
			}
			// Cancellation is terminal for the run, not an ordinary skip.
			if stoppedStatus == result.StatusCancelled {
				st.ErrorKind = result.ErrKindCancelled
			}
			results = append(results, st)
			continue
		}

		st := r.executeStep(ctx, step, i, ec)
		r.traceStep(scenario, environment, &st)
		results = append(results, st)

		switch st.Status {
		case result.StatusCancelled:
			stopped = "run cancelled"
			stoppedStatus = result.StatusCancelled
		case result.StatusErrored:
			// A command that cannot even be formed poisons everything
			// after it; continue_on_failure does not apply.
			if st.ErrorKind == result.ErrKindBinding {
				stopped = "earlier step had a binding error"
			} else if !r.suite.continueOnFailure(scn, step) {
				stopped = "earlier step errored"
			}
		case result.StatusFailed:
			if !r.suite.continueOnFailure(scn, step) {
				stopped = "earlier step failed"
			}
		}
	}
	return results
}

// executeStep runs one step end to end: guard, bind, execute, verify.
func (r *runner) executeStep(ctx context.Context, step *CompiledStep, index int, ec *execContext) result.StepResult {
	start := time.Now()
	st := result.StepResult{Name: step.Label(index), Index: index}
	defer func() { st.Elapsed = time.Since(start) }()

	if step.When != "" {
		ok, err := evalGuard(step.When, ec.exprEnv())
		if err != nil {
			st.Status = result.StatusErrored
			st.Error = err.Error()
			st.ErrorKind = result.ErrKindBinding
			return st
		}
		if !ok {
			st.Status = result.StatusSkipped
			return st
		}
	}

	if step.Session {
		r.executeSessionStep(ctx, step, ec, &st)
	} else {
		r.executeCommandStep(ctx, step, ec, &st)
	}
	return st
}

// executeCommandStep binds the command template, spawns the process, and
// verifies its output.
func (r *runner) executeCommandStep(ctx context.Context, step *CompiledStep, ec *execContext, st *result.StepResult) {
	binding := ec.binding()

	argv, err := bind.Command(step.Run, step.Argv, binding)
	if err != nil {
		bindError(st, err)
		return
	}
	st.Command = fmt.Sprintf("%v", argv)

	stdin, err := bind.Resolve(step.Stdin, binding)
	if err != nil {
		bindError(st, err)
		return
	}
	procEnv, err := ec.processEnv(step.Env)
	if err != nil {
		bindError(st, err)
		return
	}

	res, err := r.executor.Execute(ctx, execute.Spec{
		Argv:    argv,
		Dir:     ec.workdir,
		Env:     procEnv,
		Stdin:   stdin,
		Timeout: r.suite.stepTimeout(step),
	})
	if res != nil {
		st.Stdout = string(res.Stdout)
		st.Stderr = string(res.Stderr)
		st.ExitCode = res.ExitCode
	}
	if err != nil {
		switch {
		case errors.Is(err, execute.ErrTimeout):
			st.Status = result.StatusErrored
			st.ErrorKind = result.ErrKindTimeout
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			st.Status = result.StatusCancelled
			st.ErrorKind = result.ErrKindCancelled
		default:
			st.Status = result.StatusErrored
			st.ErrorKind = result.ErrKindStart
		}
		st.Error = err.Error()
		return
	}

	r.verify(step, res.Stream(r.suite.stepTarget(step)), res.ExitCode, ec, st)
}

// executeSessionStep sends the step's stdin to the persistent session
// and reads until the expectation matches or the deadline passes.
func (r *runner) executeSessionStep(ctx context.Context, step *CompiledStep, ec *execContext, st *result.StepResult) {
	if ec.session == nil {
		st.Status = result.StatusErrored
		st.Error = "environment declares no session"
		st.ErrorKind = result.ErrKindSession
		return
	}

	stdin, err := bind.Resolve(step.Stdin, ec.binding())
	if err != nil {
		bindError(st, err)
		return
	}
	if stdin != "" {
		if err := ec.session.Send(stdin); err != nil {
			st.Status = result.StatusErrored
			st.Error = err.Error()
			st.ErrorKind = result.ErrKindSession
			return
		}
	}

	text, err := ec.session.ReadUntil(ctx, r.suite.stepTimeout(step), func(text string) bool {
		return pattern.Match(step.Patterns, text, ec.captured).OK
	})
	st.Stdout = text
	if err != nil {
		switch {
		case errors.Is(err, execute.ErrTimeout):
			st.Status = result.StatusErrored
			st.ErrorKind = result.ErrKindTimeout
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			st.Status = result.StatusCancelled
			st.ErrorKind = result.ErrKindCancelled
		default:
			st.Status = result.StatusErrored
			st.ErrorKind = result.ErrKindSession
		}
		st.Error = err.Error()
		// Record what the expectation saw before giving up.
		res := pattern.Match(step.Patterns, text, ec.captured)
		st.Matched = res.Matched
		st.Failures = res.Failures
		return
	}

	r.verify(step, text, 0, ec, st)
}

// verify evaluates the step's expectation and exit-code check against
// the selected output, then folds new captures into the context.
func (r *runner) verify(step *CompiledStep, text string, exitCode int, ec *execContext, st *result.StepResult) {
	res := pattern.Match(step.Patterns, text, ec.captured)
	st.Matched = res.Matched
	st.Failures = res.Failures

	if step.ExitCode != nil && exitCode != *step.ExitCode {
		st.Failures = append(st.Failures, pattern.Failure{
			Pattern: fmt.Sprintf("exit code %d", *step.ExitCode),
			Kind:    pattern.FailureUnmatched,
			Detail:  fmt.Sprintf("process exited with %d", exitCode),
		})
	}

	ec.absorb(res.Captures)
	st.Captures = res.Captures

	if len(st.Failures) > 0 {
		st.Status = result.StatusFailed
		return
	}
	st.Status = result.StatusPassed
}

// evalGuard evaluates a when-guard with expr-lang. The guard must yield
// a boolean.
func evalGuard(guard string, env map[string]any) (bool, error) {
	program, err := expr.Compile(guard, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile guard %q: %w", guard, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval guard %q: %w", guard, err)
	}
	ok, isBool := output.(bool)
	if !isBool {
		return false, fmt.Errorf("guard %q did not return bool (got %T)", guard, output)
	}
	return ok, nil
}

func bindError(st *result.StepResult, err error) {
	st.Status = result.StatusErrored
	st.Error = err.Error()
	st.ErrorKind = result.ErrKindBinding
}

// skipAll marks every step in a list as skipped with the given reason.
func skipAll(steps []*CompiledStep, reason string) []result.StepResult {
	results := make([]result.StepResult, 0, len(steps))
	for i, step := range steps {
		results = append(results, result.StepResult{
			Name: step.Label(i), Index: i,
			Status: result.StatusSkipped, Error: reason,
		})
	}
	return results
}
