package metrics

import "time"

const (
	EventCatalogRebuilt      = "catalog_rebuilt"
	EventCatalogRebuildError = "catalog_rebuild_failed"
	EventTranslateHandled    = "translate_handled"
	EventTranslateDeclined   = "translate_declined"
	EventAgentResult         = "agent_result"
	EventCascadeFailed       = "cascade_failed"
	EventObserverDropped     = "observer_dropped"

	EventRateLimit       = "rate_limit"
	EventBreakerOpen     = "breaker_open"
	EventBreakerClose    = "breaker_close"
	EventBreakerHalfOpen = "breaker_half_open"
	EventBreakerDenied   = "breaker_denied"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}
