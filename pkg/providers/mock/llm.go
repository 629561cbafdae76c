// Package mock provides a scripted LLM backend for tests and offline runs.
package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/fallback/pkg/llm"
)

// Step is one scripted reply. Err takes precedence over Text.
type Step struct {
	Text string
	Err  error
}

type LLMConfig struct {
	ResponseText string
	// Script is consumed in order; once exhausted ResponseText is returned.
	Script []Step
}

type LLMAdapter struct {
	mu     sync.Mutex
	cfg    LLMConfig
	inputs []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, input)
	if len(a.cfg.Script) > 0 {
		step := a.cfg.Script[0]
		a.cfg.Script = a.cfg.Script[1:]
		if step.Err != nil {
			return llm.Response{}, step.Err
		}
		return llm.Response{Text: step.Text, FinishReason: "stop"}, nil
	}
	return llm.Response{Text: a.cfg.ResponseText, FinishReason: "stop"}, nil
}

// Inputs returns every context passed to Generate.
func (a *LLMAdapter) Inputs() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Context(nil), a.inputs...)
}
