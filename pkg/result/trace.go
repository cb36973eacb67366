package result

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TraceEvent is one JSONL record in a trace file. Step events stream out
// as they happen; the final event carries the suite summary.
type TraceEvent struct {
	Type        string       `json:"type"` // step_result, run_result, suite_result
	Timestamp   time.Time    `json:"timestamp"`
	Scenario    string       `json:"scenario,omitempty"`
	Environment string       `json:"environment,omitempty"`
	Step        *StepResult  `json:"step,omitempty"`
	Run         *RunResult   `json:"run,omitempty"`
	Suite       *SuiteResult `json:"suite,omitempty"`
}

// TraceWriter streams result events to a JSONL trace file. Writes are
// serialized internally, so concurrent runs can share one writer.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{file: f, writer: w, enc: json.NewEncoder(w)}, nil
}

// WriteStep appends one step outcome and flushes to disk.
func (tw *TraceWriter) WriteStep(scenario, environment string, step *StepResult) error {
	return tw.write(TraceEvent{
		Type:        "step_result",
		Timestamp:   time.Now(),
		Scenario:    scenario,
		Environment: environment,
		Step:        step,
	})
}

// WriteRun appends one completed run.
func (tw *TraceWriter) WriteRun(run *RunResult) error {
	return tw.write(TraceEvent{Type: "run_result", Timestamp: time.Now(), Run: run})
}

// WriteSuite appends the final suite record.
func (tw *TraceWriter) WriteSuite(suite *SuiteResult) error {
	return tw.write(TraceEvent{Type: "suite_result", Timestamp: time.Now(), Suite: suite})
}

// write encodes one event and flushes at the event boundary so a crashed
// run leaves a readable trace.
func (tw *TraceWriter) write(event TraceEvent) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
