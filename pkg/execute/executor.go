// Package execute runs concrete commands with timeout and cancellation
// support, capturing their output streams.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrTimeout marks a step that exceeded its own deadline. Distinguished
// from outer cancellation so the two map to different result statuses.
var ErrTimeout = errors.New("deadline exceeded")

// Result holds the captured output of a single command execution.
// Combined preserves the interleaving of stdout and stderr as the
// process produced them.
type Result struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	Combined []byte        `json:"-"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Stream returns the named output stream.
func (r *Result) Stream(target string) string {
	switch target {
	case "stderr":
		return string(r.Stderr)
	case "combined":
		return string(r.Combined)
	default:
		return string(r.Stdout)
	}
}

// Spec describes one command invocation.
type Spec struct {
	Argv    []string
	Dir     string
	Env     []string // full environment; nil inherits the parent's
	Stdin   string
	Timeout time.Duration // 0 means no per-step deadline
}

// Executor abstracts real vs fake command execution so the scheduler and
// scenario runner can be tested without spawning processes.
type Executor interface {
	Execute(ctx context.Context, spec Spec) (*Result, error)
}

// Real runs commands via os/exec in their own process group, so that
// cancellation kills the whole tree rather than only the direct child.
type Real struct{}

// Execute runs the command described by spec. A non-zero exit status is
// not an error here (the caller decides what exit codes mean); the error
// return covers start failures, the step deadline (wrapped ErrTimeout),
// and outer cancellation. On timeout or cancellation the partial Result
// captured so far is returned alongside the error.
func (Real) Execute(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("execute: empty argv")
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)

	setProcGroup(cmd)

	start := time.Now()
	err := cmd.Run()

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Combined: combined.Bytes(),
		Duration: time.Since(start),
	}

	// Deadline and cancellation take precedence over whatever exit status
	// the kill produced.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %s", ErrTimeout, spec.Timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("execute %q: %w", spec.Argv[0], err)
	}
	return res, nil
}

// lockedBuffer serializes writes from the stdout and stderr pipes, which
// arrive on separate goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

// signalProcess sends sig to a process, treating an already-exited
// process as success.
func signalProcess(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
