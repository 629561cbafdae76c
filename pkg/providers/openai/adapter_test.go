package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/fallback/pkg/llm"
	"github.com/harunnryd/fallback/pkg/resilience"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing auth header")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" It is 21 degrees. "},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	a := NewAdapter("key", "gpt-test")
	a.BaseURL = srv.URL
	resp, err := a.Generate(context.Background(), llm.Context{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "temperature?"},
	}})
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if resp.Text != "It is 21 degrees." || resp.Usage.TotalTokens != 12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGenerateErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	a := NewAdapter("key", "m")
	a.BaseURL = srv.URL
	_, err := a.Generate(context.Background(), llm.Context{})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if wait, ok := resilience.RetryAfter(err); !ok || wait != 7*time.Second {
		t.Fatalf("expected Retry-After of 7s, got %v", wait)
	}

	status.Store(http.StatusBadGateway)
	_, err = a.Generate(context.Background(), llm.Context{})
	var se llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
	if !llm.DefaultIsRetryable(err) {
		t.Fatalf("expected 5xx to be retryable")
	}
}
