package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy is an explicit bounded-retry policy applied by the stage
// executor, decoupled from the business logic of the stages themselves.
// Only transient errors are retried; structural and persistence errors
// surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Execute runs fn under the policy. onAttemptFailure is invoked for every
// failed attempt, including the last, so the caller can raise the document's
// failure flag before the backoff window.
func (p RetryPolicy) Execute(ctx context.Context, logger *slog.Logger, name string,
	fn func(context.Context) error, onAttemptFailure func(error)) error {

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if onAttemptFailure != nil {
			onAttemptFailure(err)
		}

		if attempt >= maxAttempts || !IsTransient(err) {
			return err
		}

		logger.Warn("Stage attempt failed, retrying after backoff",
			slog.String("stage", name),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", p.Backoff),
			slog.String("error", err.Error()))

		select {
		case <-time.After(p.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
