// Package result defines the outcome types produced by a suite run and
// their aggregation into a summary.
package result

import (
	"time"

	"github.com/ormasoftchile/polytest/pkg/pattern"
)

// Status is the outcome of a step, run, or suite.
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusErrored   Status = "errored"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// severity orders statuses for aggregation. A container's status is the
// worst status of its parts; skipped never outranks a real outcome.
var severity = map[Status]int{
	StatusSkipped:   0,
	StatusPassed:    1,
	StatusFailed:    2,
	StatusCancelled: 3,
	StatusErrored:   4,
}

// Worst returns the more severe of two statuses.
func Worst(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Error kinds recorded on errored steps.
const (
	ErrKindBinding   = "binding"
	ErrKindStart     = "start"
	ErrKindTimeout   = "timeout"
	ErrKindCancelled = "cancelled"
	ErrKindSession   = "session"
)

// StepResult is the outcome of one step within one run.
type StepResult struct {
	Name    string `json:"name"`
	Index   int    `json:"index"`
	Status  Status `json:"status"`
	Command string `json:"command,omitempty"` // resolved command line

	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`

	Matched  []string          `json:"matched,omitempty"`
	Failures []pattern.Failure `json:"failures,omitempty"`
	Captures map[string]string `json:"captures,omitempty"`

	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunResult is the outcome of one scenario executed against one
// environment, including the environment's setup and teardown steps when
// they ran inside this run.
type RunResult struct {
	Scenario    string        `json:"scenario"`
	Environment string        `json:"environment"`
	Status      Status        `json:"status"`
	Setup       []StepResult  `json:"setup,omitempty"`
	Steps       []StepResult  `json:"steps"`
	Teardown    []StepResult  `json:"teardown,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Name identifies the run in reports, "scenario @ environment".
func (r *RunResult) Name() string {
	return r.Scenario + " @ " + r.Environment
}

// Summary aggregates run counts by status.
type Summary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Errored   int `json:"errored"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}

// OK reports whether every run passed or was skipped.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0 && s.Cancelled == 0
}

// SuiteResult is the complete outcome of one suite execution. Runs
// appear in submission order regardless of completion order.
type SuiteResult struct {
	Suite   string        `json:"suite"`
	Runs    []RunResult   `json:"runs"`
	Started time.Time     `json:"started"`
	Ended   time.Time     `json:"ended"`
	Elapsed time.Duration `json:"elapsed"`
	Summary Summary       `json:"summary"`
}

// Summarize recomputes the aggregate counters from the runs.
func (sr *SuiteResult) Summarize() {
	var s Summary
	for _, run := range sr.Runs {
		s.Total++
		switch run.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusErrored:
			s.Errored++
		case StatusSkipped:
			s.Skipped++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	sr.Summary = s
}

// AggregateRun derives a run's status from its step results. An empty
// run (all steps skipped) is skipped, not passed.
func AggregateRun(steps ...[]StepResult) Status {
	status := StatusSkipped
	for _, group := range steps {
		for _, st := range group {
			status = Worst(status, st.Status)
		}
	}
	return status
}
