package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/athenadocs/athena/storage"
)

// providerError stands in for a backend failure that opts into retry.
type providerError struct {
	msg string
}

func (e *providerError) Error() string   { return e.msg }
func (e *providerError) Transient() bool { return true }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryPolicyExecute(t *testing.T) {
	transientErr := &providerError{msg: "backend unavailable"}

	tests := []struct {
		name         string
		policy       RetryPolicy
		failures     int // attempts that fail before the stage starts succeeding
		err          error
		wantErr      bool
		wantAttempts int
		wantFailures int // expected onAttemptFailure invocations
	}{
		{
			name:         "success on first attempt",
			policy:       RetryPolicy{MaxAttempts: 3},
			failures:     0,
			wantAttempts: 1,
		},
		{
			name:         "transient failure retried to success",
			policy:       RetryPolicy{MaxAttempts: 3},
			failures:     2,
			err:          transientErr,
			wantAttempts: 3,
			wantFailures: 2,
		},
		{
			name:         "transient failure exhausts attempts",
			policy:       RetryPolicy{MaxAttempts: 2},
			failures:     5,
			err:          transientErr,
			wantErr:      true,
			wantAttempts: 2,
			wantFailures: 2,
		},
		{
			name:         "structural failure never retried",
			policy:       RetryPolicy{MaxAttempts: 3},
			failures:     5,
			err:          storage.ErrNoChunks,
			wantErr:      true,
			wantAttempts: 1,
			wantFailures: 1,
		},
		{
			name:         "plain error never retried",
			policy:       RetryPolicy{MaxAttempts: 3},
			failures:     5,
			err:          fmt.Errorf("constraint violation"),
			wantErr:      true,
			wantAttempts: 1,
			wantFailures: 1,
		},
		{
			name:         "zero max attempts treated as one",
			policy:       RetryPolicy{MaxAttempts: 0},
			failures:     5,
			err:          transientErr,
			wantErr:      true,
			wantAttempts: 1,
			wantFailures: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			failureCalls := 0

			err := tt.policy.Execute(context.Background(), discardLogger(), "test_stage",
				func(ctx context.Context) error {
					attempts++
					if attempts <= tt.failures {
						return tt.err
					}
					return nil
				},
				func(error) { failureCalls++ })

			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if failureCalls != tt.wantFailures {
				t.Errorf("onAttemptFailure calls = %d, want %d", failureCalls, tt.wantFailures)
			}
		})
	}
}

func TestRetryPolicyExecuteRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}

	attempts := 0
	err := policy.Execute(ctx, discardLogger(), "test_stage",
		func(ctx context.Context) error {
			attempts++
			cancel()
			return &providerError{msg: "flaky"}
		}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("embed stage: %w", &providerError{msg: "timeout"})

	if !IsTransient(wrapped) {
		t.Error("wrapped provider error not classified transient")
	}
	if IsTransient(errors.New("some error")) {
		t.Error("plain error classified transient")
	}
	if !IsStructural(fmt.Errorf("load: %w", storage.ErrNoChunks)) {
		t.Error("wrapped ErrNoChunks not classified structural")
	}
	if !IsStructural(storage.ErrNotFound) {
		t.Error("ErrNotFound not classified structural")
	}
	if IsStructural(wrapped) {
		t.Error("provider error classified structural")
	}
}
