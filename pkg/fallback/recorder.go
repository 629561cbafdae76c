package fallback

import (
	"context"
	"time"

	"github.com/harunnryd/fallback/pkg/metrics"
	"github.com/harunnryd/fallback/pkg/redact"
)

// Recorder is notified after every agent invocation. Errors are logged and ignored.
type Recorder interface {
	Record(ctx context.Context, agentName, input string, result Attempt) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, agentName, input string, result Attempt) error

func (f RecorderFunc) Record(ctx context.Context, agentName, input string, result Attempt) error {
	return f(ctx, agentName, input, result)
}

// MetricsRecorder turns each agent result into an agent_result event.
type MetricsRecorder struct {
	Observer metrics.Observer
	Redact   redact.Redactor
	Now      func() time.Time
}

func NewMetricsRecorder(obs metrics.Observer) *MetricsRecorder {
	return &MetricsRecorder{Observer: metrics.OrNoop(obs), Now: time.Now}
}

func (m *MetricsRecorder) Record(_ context.Context, agentName, input string, result Attempt) error {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	ok := 0.0
	if result.Succeeded {
		ok = 1
	}
	fields := map[string]any{
		"input":           m.Redact.Text(input),
		"speech":          m.Redact.Text(result.Response.Speech),
		"original_speech": m.Redact.Text(result.OriginalSpeech),
		"conversation_id": result.Response.ConversationID,
	}
	if result.Err != nil {
		fields["error"] = result.Err.Error()
	}
	m.Observer.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventAgentResult,
		Time:  now(),
		Value: ok,
		Tags: map[string]string{
			"agent_id":       string(result.AgentID),
			"agent_name":     agentName,
			"classification": string(result.Response.Classification),
		},
		Fields: fields,
	})
	return nil
}
