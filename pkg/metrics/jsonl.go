package metrics

import (
	"context"
	"io"
	"log/slog"
	"sort"
)

// JSONLObserver writes one JSON object per event:
//
//	{"time":"...","event":"agent_result","value":1,"agent_name":"OpenAI",...}
//
// Tags follow the value and fields follow the tags, each sorted by key.
type JSONLObserver struct {
	handler slog.Handler
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{handler: slog.NewJSONHandler(w, &slog.HandlerOptions{ReplaceAttr: eventAttr})}
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	rec := slog.NewRecord(ev.Time, slog.LevelInfo, ev.Name, 0)
	rec.AddAttrs(slog.Float64("value", ev.Value))
	for _, k := range sortedKeys(ev.Tags) {
		rec.AddAttrs(slog.String(k, ev.Tags[k]))
	}
	for _, k := range sortedKeys(ev.Fields) {
		rec.AddAttrs(slog.Any(k, ev.Fields[k]))
	}
	_ = o.handler.Handle(context.Background(), rec)
}

// eventAttr drops the level and renames the message key to "event".
func eventAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		return slog.Attr{}
	case slog.MessageKey:
		a.Key = "event"
	}
	return a
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
