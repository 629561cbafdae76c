package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// AsyncObserver hands events to a background writer so recording never
// blocks a request. Events that find the queue full, or arrive after Close,
// are counted as dropped; the total is written as a final
// EventObserverDropped event when Close drains the queue.
type AsyncObserver struct {
	inner   Observer
	mu      sync.RWMutex
	queue   chan MetricsEvent
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: OrNoop(inner),
		queue: make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits until queued ones are written.
func (a *AsyncObserver) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) drain() {
	defer close(a.done)
	for ev := range a.queue {
		a.inner.RecordEvent(ev)
	}
	if n := a.dropped.Load(); n > 0 {
		a.inner.RecordEvent(MetricsEvent{Name: EventObserverDropped, Time: time.Now(), Value: float64(n)})
	}
}
