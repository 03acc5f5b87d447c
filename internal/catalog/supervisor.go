package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
)

// Supervisor runs detached background tasks. Tasks outlive the request that
// started them but not the supervisor: Close cancels their context and waits.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	wg     conc.WaitGroup
	closed bool
}

// NewSupervisor creates a running supervisor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Go starts fn in the background. A returned error is logged and dropped.
// Go reports false without running fn once the supervisor is closed.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	s.wg.Go(func() {
		if err := fn(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("background task failed", "task", name, "error", err)
		}
	})
	return true
}

// Wait blocks until every task started so far has finished.
func (s *Supervisor) Wait() {
	if r := s.wg.WaitAndRecover(); r != nil {
		s.logger.Error("background task panicked", "panic", r.Value, "stack", string(r.Stack))
	}
}

// Close cancels running tasks and waits for them to return. It is safe to
// call more than once.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Wait()
}
