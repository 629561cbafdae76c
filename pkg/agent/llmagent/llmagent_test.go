package llmagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/llm"
	"github.com/harunnryd/fallback/pkg/logging"
	"github.com/harunnryd/fallback/pkg/providers/mock"
	"github.com/harunnryd/fallback/pkg/resilience"
)

func TestProcessKeepsHistory(t *testing.T) {
	model := mock.NewLLMAdapter(mock.LLMConfig{Script: []mock.Step{{Text: "Hello!"}, {Text: " Twenty one. "}}})
	a := New(Config{ID: "gpt", Name: "GPT", Logger: logging.Discard()}, model)

	ctx := context.Background()
	if _, err := a.Process(ctx, agent.Request{Text: "hi", ConversationID: "c1", Language: "en"}); err != nil {
		t.Fatalf("process error: %v", err)
	}
	resp, err := a.Process(ctx, agent.Request{Text: "how warm is it", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if resp.IsError() || resp.Speech != "Twenty one." || resp.ConversationID != "c1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	inputs := model.Inputs()
	second := inputs[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(second))
	}
	if second[0].Role != llm.RoleSystem || second[1].Content != "hi" || second[2].Content != "Hello!" {
		t.Fatalf("unexpected history: %+v", second)
	}
}

func TestProcessWrapsModelErrors(t *testing.T) {
	model := mock.NewLLMAdapter(mock.LLMConfig{Script: []mock.Step{{Err: resilience.RateLimitError{Provider: "mock"}}}})
	a := New(Config{ID: "gpt", Logger: logging.Discard()}, model)
	_, err := a.Process(context.Background(), agent.Request{Text: "hi"})
	if errorsx.Reason(err) != errorsx.ReasonLLMRateLimit {
		t.Fatalf("expected rate limit reason, got %s", errorsx.Reason(err))
	}

	empty := New(Config{ID: "gpt", Logger: logging.Discard()}, mock.NewLLMAdapter(mock.LLMConfig{Script: []mock.Step{{Text: "  "}}}))
	resp, err := empty.Process(context.Background(), agent.Request{Text: "hi"})
	if err != nil || !resp.IsError() {
		t.Fatalf("expected error classification for empty reply, got %+v %v", resp, err)
	}
}

func TestFactoryOpenAIBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "local-model" {
			t.Errorf("unexpected model %v", body["model"])
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Sure."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	factory := NewFactory(logging.Discard(), nil)
	a, err := factory(agent.Spec{
		ID:       "local",
		Name:     "Local LLM",
		Provider: ProviderName,
		Settings: map[string]any{"api_key": "k", "model": "local-model", "base_url": srv.URL, "timeout": "2s"},
	})
	if err != nil {
		t.Fatalf("factory error: %v", err)
	}
	resp, err := a.Process(context.Background(), agent.Request{Text: "tell me a joke"})
	if err != nil || resp.Speech != "Sure." {
		t.Fatalf("unexpected result: %+v %v", resp, err)
	}

	if _, err := factory(agent.Spec{ID: "x", Settings: map[string]any{"backend": "openai"}}); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if _, err := factory(agent.Spec{ID: "x", Settings: map[string]any{"backend": "carrier-pigeon"}}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
