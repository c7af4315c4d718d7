package socket

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// waitFor polls the condition until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return condition()
}

func TestKeepAlive_EmitsNopWhileIdle(t *testing.T) {
	t.Parallel()

	s, transport := openTestSocket(t, KeepAliveIntervalOption(10*time.Millisecond))
	s.RequireKeepAlive()

	ok := waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(transport.wire(), "3.nop;")
	})
	if !ok {
		t.Fatal("no keep-alive instruction written within the interval")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// No further keep-alive traffic after teardown.
	after := transport.wire()
	time.Sleep(50 * time.Millisecond)
	if got := transport.wire(); got != after {
		t.Errorf("keep-alive traffic after Close: %q vs %q", got, after)
	}
}

func TestKeepAlive_ImplicitlyEnablesThreadsafety(t *testing.T) {
	t.Parallel()

	s, _ := openTestSocket(t, KeepAliveIntervalOption(time.Hour))
	defer s.Close()

	s.RequireKeepAlive()
	if !s.threadsafe.Load() {
		t.Error("keep-alive did not enable threadsafety")
	}
}

func TestKeepAlive_Idempotent(t *testing.T) {
	t.Parallel()

	s, _ := openTestSocket(t, KeepAliveIntervalOption(time.Hour))
	defer s.Close()

	s.RequireKeepAlive()
	first := s.keepAlive
	s.RequireKeepAlive()

	if s.keepAlive != first {
		t.Error("second RequireKeepAlive replaced the running agent")
	}
}

func TestKeepAlive_WriteFailureStopsAgent(t *testing.T) {
	t.Parallel()

	s, transport := openTestSocket(t, KeepAliveIntervalOption(5*time.Millisecond))
	defer s.Close()

	transport.mu.Lock()
	transport.writeErr = errors.New("broken pipe")
	transport.mu.Unlock()

	s.RequireKeepAlive()

	// The failed write marks the socket fatal; the agent exits without
	// propagating the error to anyone.
	if !waitFor(t, 2*time.Second, func() bool { return s.Err() != nil }) {
		t.Fatal("keep-alive failure did not record fatal status")
	}

	calls := transport.calls()
	time.Sleep(50 * time.Millisecond)
	if transport.calls() != calls {
		t.Error("agent kept writing after a fatal transport failure")
	}
}

func TestKeepAlive_StoppedBeforeCloseReturns(t *testing.T) {
	t.Parallel()

	s, _ := openTestSocket(t, KeepAliveIntervalOption(time.Millisecond))
	s.RequireKeepAlive()

	time.Sleep(10 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// stop() has joined the agent by the time Close returns; the
	// errgroup must be drained.
	s.mu.Lock()
	agent := s.keepAlive
	s.mu.Unlock()
	if err := agent.group.Wait(); err != nil {
		t.Errorf("agent exited with error: %v", err)
	}
}
