// Package llm defines the chat completion surface used by LLM-backed agents.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type Context struct {
	Messages []Message
	// Temperature is passed through when non-nil.
	Temperature *float64
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// LLMAdapter is a chat completion backend.
type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}
