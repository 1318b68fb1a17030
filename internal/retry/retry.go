// Package retry runs one fallible network-bound operation with bounded,
// deterministic retries. Failures tagged with a retryable services marker are
// retried with attempt-indexed backoff; anything else fails immediately.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cadence/internal/logging"
	"cadence/internal/services"
)

// ExhaustedError is raised after every permitted attempt of a retryable
// operation has failed. Attempts is the total invocation count, 1+MaxRetries.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Executor retries a single operation. The zero value performs exactly one
// attempt with no delay.
type Executor struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int
	// Backoff is the base delay unit; attempt k waits Backoff << (k-1), capped
	// at MaxBackoff. The schedule is a pure function of the attempt index so
	// tests can assert it without a clock.
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
	// Sleep is swappable for tests; nil means a context-aware real sleep.
	Sleep func(context.Context, time.Duration) error
}

// Delay returns the backoff applied before retry attempt k (1-based).
func (e *Executor) Delay(attempt int) time.Duration {
	if attempt < 1 || e.Backoff <= 0 {
		return 0
	}
	delay := e.Backoff << uint(attempt-1)
	if e.MaxBackoff > 0 && delay > e.MaxBackoff {
		return e.MaxBackoff
	}
	return delay
}

// Do invokes op until it succeeds, fails fatally, or exhausts 1+MaxRetries
// attempts. Fatal failures (anything not tagged retryable) are returned after
// exactly one invocation.
func (e *Executor) Do(ctx context.Context, operation string, op func(context.Context) error) error {
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := 1 + e.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := e.Delay(attempt)
		logger.Warn(fmt.Sprintf("%s failed, attempt %d of %d", operation, attempt, attempts),
			logging.Error(lastErr),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldEventType, "retry_scheduled"),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{Operation: operation, Attempts: attempts, Last: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
