package execute

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrSessionClosed is returned by Send and ReadUntil after the session
// process has exited or Close was called.
var ErrSessionClosed = errors.New("session closed")

// Session is a long-lived interactive process with persistent stdin and
// a merged stdout/stderr stream. Steps write input and then read until
// their expectation is satisfied; output is consumed in order, so each
// step only ever sees text produced after the previous step finished
// reading.
type Session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu       sync.Mutex
	buf      strings.Builder
	consumed int // offset into buf already claimed by earlier reads

	notify chan struct{} // pulsed after each appended line
	done   chan struct{} // closed when the reader goroutine ends
	err    error         // terminal error, read after done closes

	closeOnce sync.Once
}

// StartSession launches argv as an interactive session in dir with the
// given environment.
func StartSession(argv []string, dir string, env []string) (*Session, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("session: empty argv")
	}

	// setProcGroup assigns cmd.Cancel, which os/exec only permits on
	// commands created via CommandContext.
	cmd := exec.CommandContext(context.Background(), argv[0], argv[1:]...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	setProcGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("session stdin: %w", err)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start session %q: %w", argv[0], err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.readLoop(pr, pw)
	return s, nil
}

// readLoop pumps process output into the session buffer line by line and
// reaps the process when the stream ends.
func (s *Session) readLoop(pr *io.PipeReader, pw *io.PipeWriter) {
	// Closing the write end once the process exits unblocks the scanner.
	go func() {
		err := s.cmd.Wait()
		pw.CloseWithError(err)
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		s.mu.Lock()
		s.buf.WriteString(scanner.Text())
		s.buf.WriteByte('\n')
		s.mu.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}

	s.err = scanner.Err()
	close(s.done)
	// Wake any ReadUntil blocked between notifications.
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Send writes one line of input to the session's stdin.
func (s *Session) Send(input string) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	if _, err := io.WriteString(s.stdin, input); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}

// ReadUntil blocks until match returns true for the output accumulated
// since the previous read, then consumes and returns that output. On
// timeout (wrapped ErrTimeout) or cancellation the partial output is
// consumed and returned alongside the error, so a failed step still
// reports what it saw without leaking it into the next step.
func (s *Session) ReadUntil(ctx context.Context, timeout time.Duration, match func(text string) bool) (string, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		text, matched := s.tryConsume(match)
		if matched {
			return text, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			// Drain anything appended after the last notification.
			if text, matched := s.tryConsume(match); matched {
				return text, nil
			}
			text, _ := s.tryConsume(nil)
			return text, ErrSessionClosed
		case <-deadline:
			text, _ := s.tryConsume(nil)
			return text, fmt.Errorf("session read: %w after %s", ErrTimeout, timeout)
		case <-ctx.Done():
			text, _ := s.tryConsume(nil)
			return text, ctx.Err()
		}
	}
}

// tryConsume tests match against the unconsumed output. A nil match
// consumes unconditionally. On success the consumed offset advances so
// later reads never see this text again.
func (s *Session) tryConsume(match func(string) bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.buf.String()[s.consumed:]
	if match != nil && !match(text) {
		return "", false
	}
	s.consumed = s.buf.Len()
	return text, true
}

// Close terminates the session: stdin is closed, the process gets
// SIGTERM, and after a grace period SIGKILL. Safe to call multiple
// times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		_ = signalProcess(s.cmd.Process, syscall.SIGTERM)
		select {
		case <-s.done:
		case <-time.After(3 * time.Second):
			_ = signalProcess(s.cmd.Process, syscall.SIGKILL)
			<-s.done
		}
	})
	<-s.done
	return s.err
}
