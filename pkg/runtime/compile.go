package runtime

import (
	"fmt"
	"time"

	"github.com/ormasoftchile/polytest/pkg/pattern"
	"github.com/ormasoftchile/polytest/pkg/schema"
)

// defaultStepTimeout applies when neither the step nor the suite
// defaults specify one. Sample invocations that hang should not stall
// the whole suite indefinitely.
const defaultStepTimeout = 2 * time.Minute

// CompiledSuite is a suite with every pattern compiled and every
// duration parsed, ready for scheduling. Compilation front-loads the
// failure modes that must never surface mid-run.
type CompiledSuite struct {
	Name         string
	Timeout      time.Duration // default per-step deadline
	ContinueOn   bool          // default continue_on_failure
	Target       string        // default verification stream
	Environments []*CompiledEnv
	Scenarios    []*CompiledScenario
}

// CompiledEnv carries one environment plus its compiled setup and
// teardown steps.
type CompiledEnv struct {
	schema.Environment

	Setup    []*CompiledStep
	Teardown []*CompiledStep
}

// CompiledScenario is one scenario with compiled steps.
type CompiledScenario struct {
	Name       string
	ContinueOn bool
	Steps      []*CompiledStep
}

// CompiledStep pairs a step with its compiled expectation and resolved
// timeout. Timeout zero means "use the suite default".
type CompiledStep struct {
	schema.Step

	Patterns []*pattern.Pattern
	Timeout  time.Duration
}

// Label names the step in results, falling back to its position.
func (s *CompiledStep) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", index+1)
}

// Compile validates a suite document and translates it into its
// executable form. Any validation error, malformed regex, or bad
// duration is a *LoadError; partially valid suites never run.
func Compile(doc *schema.SuiteDoc) (*CompiledSuite, error) {
	if errs := schema.Validate(doc); schema.HasErrors(errs) {
		return nil, &LoadError{Errors: errs}
	}

	suite := &doc.Suite
	cs := &CompiledSuite{
		Name:    suite.Name,
		Timeout: defaultStepTimeout,
		Target:  "stdout",
	}
	if d := suite.Defaults; d != nil {
		if d.Timeout != "" {
			t, err := time.ParseDuration(d.Timeout)
			if err != nil {
				return nil, loadErrorf("suite.defaults.timeout", "invalid duration %q", d.Timeout)
			}
			cs.Timeout = t
		}
		cs.ContinueOn = d.ContinueOnFailure
		if d.Target != "" {
			cs.Target = d.Target
		}
	}

	for i, env := range suite.Environments {
		ce := &CompiledEnv{Environment: env}
		var err error
		if ce.Setup, err = compileSteps(env.Setup, fmt.Sprintf("suite.environments[%d].setup", i)); err != nil {
			return nil, err
		}
		if ce.Teardown, err = compileSteps(env.Teardown, fmt.Sprintf("suite.environments[%d].teardown", i)); err != nil {
			return nil, err
		}
		cs.Environments = append(cs.Environments, ce)
	}

	for i, scn := range suite.Scenarios {
		steps, err := compileSteps(scn.Steps, fmt.Sprintf("suite.scenarios[%d].steps", i))
		if err != nil {
			return nil, err
		}
		cs.Scenarios = append(cs.Scenarios, &CompiledScenario{
			Name:       scn.Name,
			ContinueOn: scn.ContinueOnFailure,
			Steps:      steps,
		})
	}

	return cs, nil
}

func compileSteps(steps []schema.Step, path string) ([]*CompiledStep, error) {
	compiled := make([]*CompiledStep, 0, len(steps))
	for i, step := range steps {
		p := fmt.Sprintf("%s[%d]", path, i)

		patterns, err := pattern.Compile(step.Expect)
		if err != nil {
			return nil, loadErrorf(p+".expect", "%v", err)
		}

		cstep := &CompiledStep{Step: step, Patterns: patterns}
		if step.Timeout != "" {
			t, err := time.ParseDuration(step.Timeout)
			if err != nil {
				return nil, loadErrorf(p+".timeout", "invalid duration %q", step.Timeout)
			}
			cstep.Timeout = t
		}
		compiled = append(compiled, cstep)
	}
	return compiled, nil
}

// stepTimeout resolves the effective deadline for a step.
func (cs *CompiledSuite) stepTimeout(step *CompiledStep) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return cs.Timeout
}

// stepTarget resolves the stream a step's expectation reads.
func (cs *CompiledSuite) stepTarget(step *CompiledStep) string {
	if step.Target != "" {
		return step.Target
	}
	return cs.Target
}

// continueOnFailure resolves the effective continue_on_failure for a
// step: step override, then scenario, then suite default.
func (cs *CompiledSuite) continueOnFailure(scn *CompiledScenario, step *CompiledStep) bool {
	if step.ContinueOnFailure != nil {
		return *step.ContinueOnFailure
	}
	if scn != nil && scn.ContinueOn {
		return true
	}
	return cs.ContinueOn
}
