package resilience

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures with doubling backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Retryable decides whether an error deserves another attempt. Nil retries everything.
	Retryable func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: 5 * time.Second}
}

// Do runs fn until it succeeds, the retries are exhausted or ctx ends.
func (r RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	delay := r.Backoff
	var err error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == r.MaxRetries || (r.Retryable != nil && !r.Retryable(err)) {
			return err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		delay *= 2
		if r.MaxBackoff > 0 && delay > r.MaxBackoff {
			delay = r.MaxBackoff
		}
	}
	return err
}
