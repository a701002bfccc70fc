package adapter

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
)

// RetryPolicy is the exponential backoff every adapter applies to transient
// remote failures: 1s base delay, doubling each attempt, jittered ±20%, up
// to MaxAttempts tries.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches the policy every built-in adapter uses.
var DefaultRetryPolicy = RetryPolicy{BaseDelay: time.Second, MaxAttempts: 5}

// Delay returns the backoff delay before attempt (1-indexed), with jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay << uint(attempt-1) //nolint:gosec // attempt is bounded by MaxAttempts, never large enough to overflow
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(base) * jitter)
}

// Do calls fn, retrying on errors discoveryerr.IsRetryable accepts, up to
// MaxAttempts, sleeping p.Delay between attempts or returning early if ctx
// is cancelled. The final error (retryable or not) is returned unchanged if
// every attempt fails.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !discoveryerr.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return discoveryerr.New(discoveryerr.KindCancelled, "retry", ctx.Err())
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
