package result

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWorst(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{StatusPassed, StatusFailed, StatusFailed},
		{StatusFailed, StatusPassed, StatusFailed},
		{StatusSkipped, StatusPassed, StatusPassed},
		{StatusFailed, StatusErrored, StatusErrored},
		{StatusCancelled, StatusFailed, StatusCancelled},
		{StatusPassed, StatusPassed, StatusPassed},
	}
	for _, tt := range tests {
		if got := Worst(tt.a, tt.b); got != tt.want {
			t.Errorf("Worst(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAggregateRun(t *testing.T) {
	passed := StepResult{Status: StatusPassed}
	failed := StepResult{Status: StatusFailed}
	skipped := StepResult{Status: StatusSkipped}

	if got := AggregateRun([]StepResult{passed, passed}); got != StatusPassed {
		t.Errorf("all passed = %s", got)
	}
	if got := AggregateRun([]StepResult{passed, failed, skipped}); got != StatusFailed {
		t.Errorf("one failed = %s", got)
	}
	if got := AggregateRun([]StepResult{skipped, skipped}); got != StatusSkipped {
		t.Errorf("all skipped = %s", got)
	}
	if got := AggregateRun(nil); got != StatusSkipped {
		t.Errorf("empty run = %s", got)
	}
}

func TestSummarize(t *testing.T) {
	sr := &SuiteResult{
		Runs: []RunResult{
			{Status: StatusPassed},
			{Status: StatusPassed},
			{Status: StatusFailed},
			{Status: StatusErrored},
			{Status: StatusCancelled},
			{Status: StatusSkipped},
		},
	}
	sr.Summarize()

	want := Summary{Total: 6, Passed: 2, Failed: 1, Errored: 1, Skipped: 1, Cancelled: 1}
	if sr.Summary != want {
		t.Errorf("summary = %+v, want %+v", sr.Summary, want)
	}
	if sr.Summary.OK() {
		t.Error("summary with failures must not be OK")
	}

	clean := Summary{Total: 2, Passed: 1, Skipped: 1}
	if !clean.OK() {
		t.Error("passed+skipped summary should be OK")
	}
}

func TestTraceWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	tw, err := NewTraceWriter(path)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}

	step := &StepResult{Name: "check version", Status: StatusPassed}
	if err := tw.WriteStep("lifecycle", "python", step); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}
	run := &RunResult{Scenario: "lifecycle", Environment: "python", Status: StatusPassed}
	if err := tw.WriteRun(run); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var events []TraceEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev TraceEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "step_result" || events[0].Step.Name != "check version" {
		t.Errorf("event[0] = %+v", events[0])
	}
	if events[1].Type != "run_result" || events[1].Run.Environment != "python" {
		t.Errorf("event[1] = %+v", events[1])
	}
}

func TestWriteXUnit(t *testing.T) {
	sr := &SuiteResult{
		Suite:   "demo",
		Elapsed: 1500 * time.Millisecond,
		Runs: []RunResult{
			{Scenario: "ok", Environment: "python", Status: StatusPassed, Elapsed: time.Second},
			{Scenario: "bad", Environment: "python", Status: StatusFailed,
				Steps: []StepResult{{Name: "verify", Status: StatusFailed}}},
			{Scenario: "ok", Environment: "go", Status: StatusErrored,
				Steps: []StepResult{{Name: "run", Status: StatusErrored, Error: "binary not found"}}},
			{Scenario: "bad", Environment: "go", Status: StatusSkipped},
		},
	}
	sr.Summarize()

	var b strings.Builder
	if err := WriteXUnit(&b, sr); err != nil {
		t.Fatalf("WriteXUnit: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		`tests="4"`,
		`failures="1"`,
		`errors="1"`,
		`skipped="1"`,
		`<testsuite name="python"`,
		`<testsuite name="go"`,
		`classname="demo.python"`,
		"binary not found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
