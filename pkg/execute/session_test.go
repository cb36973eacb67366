//go:build !windows

package execute

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func startCat(t *testing.T) *Session {
	t.Helper()
	s, err := StartSession([]string{"cat"}, "", nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionEcho(t *testing.T) {
	s := startCat(t)

	if err := s.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, err := s.ReadUntil(context.Background(), 5*time.Second, func(text string) bool {
		return strings.Contains(text, "hello")
	})
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if !strings.Contains(text, "hello") {
		t.Errorf("text = %q", text)
	}
}

func TestSessionConsumesInOrder(t *testing.T) {
	// Output claimed by one read must not be visible to the next.
	s := startCat(t)

	if err := s.Send("first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.ReadUntil(context.Background(), 5*time.Second, func(text string) bool {
		return strings.Contains(text, "first")
	}); err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}

	if err := s.Send("second"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, err := s.ReadUntil(context.Background(), 5*time.Second, func(text string) bool {
		return strings.Contains(text, "second")
	})
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if strings.Contains(text, "first") {
		t.Errorf("earlier output leaked into later read: %q", text)
	}
}

func TestSessionReadTimeout(t *testing.T) {
	s := startCat(t)

	_, err := s.ReadUntil(context.Background(), 100*time.Millisecond, func(string) bool {
		return false
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestSessionCloseTerminates(t *testing.T) {
	s := startCat(t)

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not terminate the session")
	}

	if err := s.Send("late"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send after close = %v, want ErrSessionClosed", err)
	}
}

func TestSessionProcessExit(t *testing.T) {
	s, err := StartSession([]string{"sh", "-c", "echo bye"}, "", nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer s.Close()

	text, err := s.ReadUntil(context.Background(), 5*time.Second, func(text string) bool {
		return strings.Contains(text, "bye")
	})
	if err != nil && !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("ReadUntil: %v", err)
	}
	if !strings.Contains(text, "bye") {
		t.Errorf("text = %q", text)
	}
}
