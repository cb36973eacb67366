package runtime

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/polytest/pkg/execute"
	"github.com/ormasoftchile/polytest/pkg/result"
	"github.com/ormasoftchile/polytest/pkg/schema"
)

// Options tunes a suite execution.
type Options struct {
	// Concurrency caps simultaneously executing runs. Zero or negative
	// means DefaultConcurrency.
	Concurrency int

	// Executor runs commands. Nil selects the real process executor.
	Executor execute.Executor

	// Trace, when non-nil, receives step and run events as they happen.
	Trace *result.TraceWriter

	// Environments and Scenarios filter the cross product by name; empty
	// means all.
	Environments []string
	Scenarios    []string
}

// DefaultConcurrency bounds parallel runs when Options does not.
const DefaultConcurrency = 4

// RunSuite compiles the suite document and executes every selected
// scenario against every selected environment, at most
// Options.Concurrency runs in flight at once. Runs are independent: one
// failing never stops its siblings, and the returned SuiteResult lists
// runs in submission order regardless of completion order. Only a
// *LoadError (nothing ran) or a *SchedulingError is returned as error;
// per-run failures live in the result.
func RunSuite(ctx context.Context, doc *schema.SuiteDoc, opts Options) (*result.SuiteResult, error) {
	suite, err := Compile(doc)
	if err != nil {
		return nil, err
	}
	return runCompiled(ctx, suite, opts)
}

// pairing is one scheduled (scenario, environment) combination.
type pairing struct {
	scn *CompiledScenario
	env *CompiledEnv
}

func runCompiled(ctx context.Context, suite *CompiledSuite, opts Options) (*result.SuiteResult, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	executor := opts.Executor
	if executor == nil {
		executor = execute.Real{}
	}

	envs := filterEnvs(suite.Environments, opts.Environments)
	scns := filterScenarios(suite.Scenarios, opts.Scenarios)
	if len(envs) == 0 {
		return nil, &SchedulingError{Err: fmt.Errorf("no environments selected")}
	}
	if len(scns) == 0 {
		return nil, &SchedulingError{Err: fmt.Errorf("no scenarios selected")}
	}

	// Environment-major order: all scenarios of one environment are
	// submitted together, so shared activations bracket a contiguous
	// span of runs.
	var pairs []pairing
	for _, env := range envs {
		for _, scn := range scns {
			pairs = append(pairs, pairing{scn: scn, env: env})
		}
	}

	r := &runner{suite: suite, executor: executor, trace: opts.Trace}
	sr := &result.SuiteResult{
		Suite:   suite.Name,
		Runs:    make([]result.RunResult, len(pairs)),
		Started: time.Now(),
	}

	// settled[i] is written only by the goroutine that owns sr.Runs[i],
	// then read after Wait; runs left unsettled never started.
	settled := make([]bool, len(pairs))

	// Shared environments activate once, before their runs fan out.
	shared := make(map[string]*execContext)
	sharedErr := make(map[string]error)
	for _, env := range envs {
		if env.Isolation != schema.IsolationShared {
			continue
		}
		ec, err := r.activateShared(ctx, env)
		if err != nil {
			logger.Error("shared environment setup failed", "environment", env.Name, "error", err)
			sharedErr[env.Name] = err
			continue
		}
		shared[env.Name] = ec
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, pair := range pairs {
		i, pair := i, pair

		if err, broken := sharedErr[pair.env.Name]; broken {
			sr.Runs[i] = result.RunResult{
				Scenario:    pair.scn.Name,
				Environment: pair.env.Name,
				Status:      result.StatusErrored,
				Steps: []result.StepResult{{
					Name: "environment setup", Status: result.StatusErrored,
					Error: err.Error(), ErrorKind: result.ErrKindStart,
				}},
			}
			settled[i] = true
			continue
		}

		g.Go(func() error {
			defer func() { settled[i] = true }()
			if gctx.Err() != nil {
				sr.Runs[i] = cancelledRun(pair)
				return nil
			}

			logger.Debug("run started", "scenario", pair.scn.Name, "environment", pair.env.Name)
			var run result.RunResult
			if ec, ok := shared[pair.env.Name]; ok {
				run = r.runShared(gctx, pair.scn, ec)
			} else {
				run = r.runScenario(gctx, pair.scn, pair.env)
			}
			logger.Info("run finished",
				"scenario", pair.scn.Name,
				"environment", pair.env.Name,
				"status", run.Status,
				"elapsed", run.Elapsed)

			sr.Runs[i] = run
			if opts.Trace != nil {
				if err := opts.Trace.WriteRun(&sr.Runs[i]); err != nil {
					logger.Warn("trace write failed", "error", err)
				}
			}
			// Run failures never abort the group.
			return nil
		})
	}

	_ = g.Wait()

	// Runs that never started under a cancelled context.
	for i := range sr.Runs {
		if !settled[i] {
			sr.Runs[i] = cancelledRun(pairs[i])
		}
	}

	// Shared environments tear down after every run completes, under a
	// context that survives cancellation.
	for _, env := range envs {
		ec, ok := shared[env.Name]
		if !ok {
			continue
		}
		r.releaseShared(ctx, env, ec)
	}

	sr.Ended = time.Now()
	sr.Elapsed = sr.Ended.Sub(sr.Started)
	sr.Summarize()
	if opts.Trace != nil {
		if err := opts.Trace.WriteSuite(sr); err != nil {
			logger.Warn("trace write failed", "error", err)
		}
	}
	return sr, nil
}

// activateShared builds a shared environment's context, starts its
// session, and runs setup once.
func (r *runner) activateShared(ctx context.Context, env *CompiledEnv) (*execContext, error) {
	ec, err := newExecContext(env, false)
	if err != nil {
		return nil, &SchedulingError{Environment: env.Name, Err: err}
	}
	if env.Session != nil {
		if err := r.startSession(ec); err != nil {
			return nil, &SchedulingError{Environment: env.Name, Err: err}
		}
	}
	setup := r.executeSteps(ctx, nil, env.Setup, ec, "", env.Name)
	if status := result.AggregateRun(setup); status != result.StatusPassed && status != result.StatusSkipped {
		_ = ec.close()
		return nil, &SchedulingError{Environment: env.Name, Err: fmt.Errorf("setup %s", status)}
	}
	return ec, nil
}

// releaseShared runs teardown and closes the shared context.
func (r *runner) releaseShared(ctx context.Context, env *CompiledEnv, ec *execContext) {
	r.runTeardown(ctx, env, ec, "")
	if err := ec.close(); err != nil {
		logger.Warn("release environment", "environment", env.Name, "error", err)
	}
}

func cancelledRun(pair pairing) result.RunResult {
	return result.RunResult{
		Scenario:    pair.scn.Name,
		Environment: pair.env.Name,
		Status:      result.StatusCancelled,
	}
}

func filterEnvs(envs []*CompiledEnv, names []string) []*CompiledEnv {
	if len(names) == 0 {
		return envs
	}
	var out []*CompiledEnv
	for _, env := range envs {
		if slices.Contains(names, env.Name) {
			out = append(out, env)
		}
	}
	return out
}

func filterScenarios(scns []*CompiledScenario, names []string) []*CompiledScenario {
	if len(names) == 0 {
		return scns
	}
	var out []*CompiledScenario
	for _, scn := range scns {
		if slices.Contains(names, scn.Name) {
			out = append(out, scn)
		}
	}
	return out
}
