package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyHonorsRetryable(t *testing.T) {
	p := NewRetryPolicy(5, time.Millisecond)
	fatal := errors.New("auth")
	p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single fatal attempt, got calls=%d err=%v", calls, err)
	}
}

func TestRetryPolicyExhausts(t *testing.T) {
	p := NewRetryPolicy(2, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 failed attempts, got calls=%d err=%v", calls, err)
	}
}

func TestCircuitBreakerOpensOnRateLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.Now = func() time.Time { return now }

	cb.Record(errors.New("not a rate limit"))
	cb.Record(RateLimitError{Provider: "x"})
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after one rate limit")
	}
	cb.Record(RateLimitError{Provider: "x"})
	if cb.Allow() || cb.State() != BreakerOpen {
		t.Fatalf("expected breaker open, got %s", cb.State())
	}
	now = now.Add(2 * time.Minute)
	if !cb.Allow() || cb.State() != BreakerHalfOpen {
		t.Fatalf("expected a half-open probe after cooldown, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("expected only one probe while half-open")
	}
	cb.Record(nil)
	if cb.State() != BreakerClosed || !cb.Allow() {
		t.Fatalf("expected breaker closed after a good probe")
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.Now = func() time.Time { return now }
	var transitions []string
	cb.OnStateChange = func(from, to BreakerState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}

	cb.Record(RateLimitError{})
	now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected probe")
	}
	cb.Record(RateLimitError{RetryAfter: 5 * time.Minute})
	now = now.Add(2 * time.Minute)
	if cb.Allow() {
		t.Fatalf("expected Retry-After to extend the open window")
	}
	want := []string{"closed>open", "open>half_open", "half_open>open"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, transitions)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	if _, ok := RetryAfter(errors.New("x")); ok {
		t.Fatalf("expected no wait for plain errors")
	}
	d, ok := RetryAfter(RateLimitError{RetryAfter: time.Second})
	if !ok || d != time.Second {
		t.Fatalf("expected 1s, got %v %v", d, ok)
	}
}
