package llm

import (
	"context"
	"time"

	"github.com/harunnryd/fallback/pkg/metrics"
	"github.com/harunnryd/fallback/pkg/resilience"
)

// BreakerAdapter fails fast with a RateLimitError while its breaker is open,
// so a throttled agent drops out of the cascade without waiting on the
// provider.
type BreakerAdapter struct {
	inner   LLMAdapter
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
	labels  map[string]string
}

func NewCircuitBreakerAdapter(inner LLMAdapter, breaker *resilience.CircuitBreaker) *BreakerAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	a := &BreakerAdapter{
		inner:   inner,
		breaker: breaker,
		obs:     metrics.NoopObserver{},
		labels:  map[string]string{"provider": inner.Name()},
	}
	breaker.OnStateChange = a.transition
	return a
}

func (a *BreakerAdapter) Name() string { return a.inner.Name() }

// SetObserver routes breaker and rate limit events to obs. Labels are added
// to every event, typically the owning agent id.
func (a *BreakerAdapter) SetObserver(obs metrics.Observer, labels ...string) {
	a.obs = metrics.OrNoop(obs)
	for i := 0; i+1 < len(labels); i += 2 {
		a.labels[labels[i]] = labels[i+1]
	}
}

func (a *BreakerAdapter) State() resilience.BreakerState { return a.breaker.State() }

func (a *BreakerAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	if !a.breaker.Allow() {
		a.emit(metrics.EventBreakerDenied, nil)
		return Response{}, resilience.RateLimitError{Provider: a.Name(), Message: "circuit open"}
	}
	resp, err := a.inner.Generate(ctx, input)
	a.breaker.Record(err)
	if err != nil {
		if wait, ok := resilience.RetryAfter(err); ok {
			a.emit(metrics.EventRateLimit, map[string]any{"retry_after_ms": wait.Milliseconds()})
		} else if resilience.IsRateLimit(err) {
			a.emit(metrics.EventRateLimit, nil)
		}
		return Response{}, err
	}
	return resp, nil
}

func (a *BreakerAdapter) transition(from, to resilience.BreakerState) {
	name := metrics.EventBreakerClose
	switch to {
	case resilience.BreakerOpen:
		name = metrics.EventBreakerOpen
	case resilience.BreakerHalfOpen:
		name = metrics.EventBreakerHalfOpen
	}
	a.emit(name, map[string]any{"from": from.String()})
}

func (a *BreakerAdapter) emit(name string, fields map[string]any) {
	tags := make(map[string]string, len(a.labels)+1)
	for k, v := range a.labels {
		tags[k] = v
	}
	tags["component"] = "llm"
	a.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: tags, Fields: fields})
}
