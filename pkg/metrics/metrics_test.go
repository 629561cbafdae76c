package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestAsyncObserverDeliversBeforeClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	mem := NewMemoryObserver()
	obs := NewAsyncObserver(mem, 8)
	for i := 0; i < 5; i++ {
		obs.RecordEvent(MetricsEvent{Name: EventAgentResult, Time: time.Now()})
	}
	obs.Close()
	if got := len(mem.Named(EventAgentResult)); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	obs.RecordEvent(MetricsEvent{Name: EventAgentResult})
	if got := len(mem.Named(EventAgentResult)); got != 5 {
		t.Fatalf("expected events after close to be ignored, got %d", got)
	}
}

func TestJSONLObserverWritesTags(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONLObserver(&buf)
	obs.RecordEvent(MetricsEvent{
		Name: EventAgentResult,
		Time: time.Now(),
		Tags: map[string]string{"agent_name": "Home Assistant"},
	})
	out := buf.String()
	if !strings.Contains(out, `"agent_name":"Home Assistant"`) {
		t.Fatalf("expected agent_name tag in output, got %s", out)
	}
	if !strings.Contains(out, `"event":"agent_result"`) || strings.Contains(out, `"level"`) {
		t.Fatalf("expected the event name without a level, got %s", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected a single line, got %q", out)
	}
}

type blockingObserver struct {
	release chan struct{}
	mem     *MemoryObserver
}

func (b *blockingObserver) RecordEvent(ev MetricsEvent) {
	<-b.release
	b.mem.RecordEvent(ev)
}

func TestAsyncObserverReportsDrops(t *testing.T) {
	defer goleak.VerifyNone(t)
	inner := &blockingObserver{release: make(chan struct{}), mem: NewMemoryObserver()}
	obs := NewAsyncObserver(inner, 1)
	for i := 0; i < 10; i++ {
		obs.RecordEvent(MetricsEvent{Name: EventAgentResult})
	}
	if obs.Dropped() < 8 {
		t.Fatalf("expected most events dropped behind a stalled writer, got %d", obs.Dropped())
	}
	close(inner.release)
	obs.Close()

	drops := inner.mem.Named(EventObserverDropped)
	if len(drops) != 1 || int64(drops[0].Value) != obs.Dropped() {
		t.Fatalf("expected one drop summary of %d, got %+v", obs.Dropped(), drops)
	}
}
