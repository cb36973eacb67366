//go:build !windows

package execute

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecuteCapturesStreams(t *testing.T) {
	res, err := Real{}.Execute(context.Background(), Spec{
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("stdout = %q", got)
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("stderr = %q", got)
	}
	if !strings.Contains(string(res.Combined), "out") || !strings.Contains(string(res.Combined), "err") {
		t.Errorf("combined = %q", res.Combined)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestExecuteNonZeroExitIsNotAnError(t *testing.T) {
	res, err := Real{}.Execute(context.Background(), Spec{
		Argv: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestExecuteStartFailure(t *testing.T) {
	_, err := Real{}.Execute(context.Background(), Spec{
		Argv: []string{"/nonexistent/binary-xyz"},
	})
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestExecuteStdin(t *testing.T) {
	res, err := Real{}.Execute(context.Background(), Spec{
		Argv:  []string{"cat"},
		Stdin: "hello\n",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := string(res.Stdout); got != "hello\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestExecuteTimeout(t *testing.T) {
	start := time.Now()
	res, err := Real{}.Execute(context.Background(), Spec{
		Argv:    []string{"sh", "-c", "echo partial; sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("took %s, the process group was not killed", elapsed)
	}
	if res == nil || !strings.Contains(string(res.Stdout), "partial") {
		t.Error("partial output should survive a timeout")
	}
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := Real{}.Execute(ctx, Spec{
		Argv:    []string{"sleep", "10"},
		Timeout: time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation must not be reported as a timeout")
	}
}

func TestResultStream(t *testing.T) {
	res := &Result{Stdout: []byte("o"), Stderr: []byte("e"), Combined: []byte("oe")}
	if res.Stream("stdout") != "o" || res.Stream("stderr") != "e" || res.Stream("combined") != "oe" {
		t.Errorf("stream selection wrong: %q %q %q",
			res.Stream("stdout"), res.Stream("stderr"), res.Stream("combined"))
	}
	if res.Stream("") != "o" {
		t.Error("empty target should default to stdout")
	}
}
