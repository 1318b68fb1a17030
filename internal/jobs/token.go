package jobs

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is raised at poll points once a token has been cancelled.
var ErrCancelled = errors.New("job cancelled")

// Token is a one-shot cooperative cancellation latch. It is safe to cancel and
// read from any goroutine; cancellation is permanent for the token's lifetime.
// Running code observes it only at explicit poll points, never preemptively.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns a fresh, not-cancelled token. Tokens are single-use: every
// job execution gets its own.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the latch. Idempotent.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
}

// Cancelled reports whether the latch is set. A nil token is never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Err returns ErrCancelled once the latch is set, nil otherwise. This is the
// designated check-and-raise point for polling loops.
func (t *Token) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}
