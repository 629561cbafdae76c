package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harunnryd/fallback/pkg/resilience"
)

// RetryConfig bounds how long one agent turn may spend retrying its model.
// Rate limits are never retried here; the breaker owns them.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	IsRetryable func(error) bool
}

// RetryAdapter retries Generate on transient provider failures.
type RetryAdapter struct {
	inner  LLMAdapter
	policy resilience.RetryPolicy
}

func NewRetryAdapter(inner LLMAdapter, cfg RetryConfig) *RetryAdapter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Second
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = DefaultIsRetryable
	}
	return &RetryAdapter{
		inner: inner,
		policy: resilience.RetryPolicy{
			MaxRetries: cfg.MaxAttempts - 1,
			Backoff:    cfg.Backoff,
			MaxBackoff: cfg.MaxBackoff,
			Retryable:  cfg.IsRetryable,
		},
	}
}

func (a *RetryAdapter) Name() string { return a.inner.Name() }

func (a *RetryAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	var out Response
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := a.inner.Generate(ctx, input)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return out, nil
}

// DefaultIsRetryable retries network and 5xx failures. Cancellation, rate
// limits and 4xx replies are final.
func DefaultIsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resilience.IsRateLimit(err) {
		return false
	}
	var se StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// StatusError is a non-2xx reply from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}
