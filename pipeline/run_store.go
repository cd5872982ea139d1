package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Run is one in-flight (or recently finished) pipeline session for a single
// document: the stage suffix to execute plus the cancellation handle the
// document row references as task_handle.
type Run struct {
	Handle     string
	DocumentID string
	Stages     []StageName
	EnqueuedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	completedAt time.Time
}

func (r *Run) markCompleted(now time.Time) {
	r.mu.Lock()
	r.completedAt = now
	r.mu.Unlock()
}

func (r *Run) completed() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt, !r.completedAt.IsZero()
}

// RunStore tracks runs by task handle so callers can revoke them. Finished
// runs are kept for a retention window and then cleaned up periodically.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run

	logger *slog.Logger

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

func NewRunStore(logger *slog.Logger) *RunStore {
	return &RunStore{
		runs:   make(map[string]*Run),
		logger: logger,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	s.runs[run.Handle] = run
	s.mu.Unlock()
}

func (s *RunStore) Get(handle string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[handle]
	return run, ok
}

// Cancel signals the run's execution to stop. Cancellation is cooperative
// and best-effort: committed partial work is not rolled back.
func (s *RunStore) Cancel(handle string) bool {
	s.mu.RLock()
	run, ok := s.runs[handle]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// StartCleanup launches a goroutine that drops finished runs older than
// threshold every cleanupInterval.
func (s *RunStore) StartCleanup(threshold, cleanupInterval time.Duration) {
	s.stopCleanup = make(chan struct{})
	s.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanup(threshold)
			case <-s.stopCleanup:
				s.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (s *RunStore) StopCleanup() {
	if s.stopCleanup != nil {
		close(s.stopCleanup)
	}
}

func (s *RunStore) cleanup(threshold time.Duration) {
	now := timeProvider.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for handle, run := range s.runs {
		if completedAt, done := run.completed(); done && now.Sub(completedAt) > threshold {
			delete(s.runs, handle)
			s.logger.Debug("Expired run removed",
				slog.String("task_handle", handle),
				slog.String("document_id", run.DocumentID))
		}
	}
}
