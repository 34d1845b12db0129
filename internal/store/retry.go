package store

import (
	"context"
	"time"
)

// retryPolicy bounds transient-failure retries at the collaborator boundary.
// Retries never happen inside a ledger atomic section; callers hold no locks
// while a store call is in flight.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, backoff: 100 * time.Millisecond}

// withRetry runs fn up to p.attempts times with linear backoff, honoring
// context cancellation between attempts.
func (p retryPolicy) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < p.attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == p.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(i+1)):
		}
	}
	return err
}
