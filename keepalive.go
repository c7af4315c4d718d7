package socket

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// keepAliveOpcode is the no-op instruction sent periodically to keep
// both ends of an idle connection from timing out.
const keepAliveOpcode = "nop"

// keepAliveAgent is the background writer behind RequireKeepAlive. Its
// lifetime is bounded by the socket's open state: Close cancels the
// agent and waits for it to exit before the buffers are released.
type keepAliveAgent struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

// RequireKeepAlive starts a background agent that periodically writes a
// no-op instruction and flushes while the socket is open, preventing
// idle-timeout on either end. The agent is a concurrent writer, so
// keep-alive implicitly enables threadsafety. Calling it again on a
// socket with a running agent has no effect.
func (s *Socket) RequireKeepAlive() {
	s.RequireThreadsafe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAlive != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	agent := &keepAliveAgent{cancel: cancel, group: group}

	group.Go(func() error {
		s.keepAliveLoop(ctx)
		return nil
	})

	s.keepAlive = agent
	s.logger.Debug("keep-alive enabled", "socket_id", s.id,
		"interval", s.opts.keepAliveInterval)
}

// keepAliveLoop writes one nop instruction per interval until the
// context is canceled or a write fails. A write failure is contained:
// it marks the socket failed and stops the agent, but never propagates
// to any caller.
func (s *Socket) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.WriteInstruction(keepAliveOpcode); err != nil {
				if !errors.Is(err, ErrClosed) {
					s.logger.Warn("keep-alive write failed",
						"socket_id", s.id, "error", err)
				}
				return
			}
		}
	}
}

// stop cancels the agent and waits for its goroutine to exit. Called
// from Close before the buffers are released, so the agent can never
// write to a closed socket's buffers.
func (a *keepAliveAgent) stop() {
	a.cancel()
	_ = a.group.Wait()
}
