package report

import (
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/polytest/pkg/pattern"
	"github.com/ormasoftchile/polytest/pkg/result"
)

func sampleResult() *result.SuiteResult {
	sr := &result.SuiteResult{
		Suite: "demo",
		Runs: []result.RunResult{
			{
				Scenario: "ok", Environment: "python",
				Status:  result.StatusPassed,
				Elapsed: 120 * time.Millisecond,
				Steps:   []result.StepResult{{Name: "run sample", Status: result.StatusPassed}},
			},
			{
				Scenario: "bad", Environment: "go",
				Status: result.StatusFailed,
				Steps: []result.StepResult{{
					Name:   "verify output",
					Status: result.StatusFailed,
					Failures: []pattern.Failure{{
						Pattern: `literal "Sentiment:"`,
						Kind:    pattern.FailureUnmatched,
					}},
				}},
			},
		},
	}
	sr.Summarize()
	return sr
}

func TestRenderSummary(t *testing.T) {
	var b strings.Builder
	Render(&b, sampleResult(), false)
	out := b.String()

	for _, want := range []string{
		"suite demo",
		"ok @ python",
		"bad @ go",
		"verify output",
		`literal "Sentiment:"`,
		"1 passed",
		"1 failed",
		"(2 runs)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Non-verbose output hides steps of passing runs.
	if strings.Contains(out, "run sample") {
		t.Errorf("passing run's steps should be hidden:\n%s", out)
	}
}

func TestRenderVerbose(t *testing.T) {
	var b strings.Builder
	Render(&b, sampleResult(), true)
	if !strings.Contains(b.String(), "run sample") {
		t.Errorf("verbose output should list every step:\n%s", b.String())
	}
}
