// Package llmagent implements a conversation agent backed by a chat
// completion model.
package llmagent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/llm"
	"github.com/harunnryd/fallback/pkg/logging"
	"github.com/harunnryd/fallback/pkg/resilience"
)

const DefaultSystemPrompt = "You are a smart home voice assistant. Answer in one or two short sentences. " +
	"If you cannot help, say so plainly."

const defaultMaxHistory = 10

type Config struct {
	ID           string
	Name         string
	EntityID     string
	SystemPrompt string
	// MaxHistory bounds the remembered turns per conversation id. Zero means the default.
	MaxHistory int
	Logger     *slog.Logger
}

// Agent keeps a short per-conversation history and forwards each turn to
// the model. Model failures become error-classified responses so the
// cascade can move on.
type Agent struct {
	cfg     Config
	model   llm.LLMAdapter
	logger  *slog.Logger
	mu      sync.Mutex
	history map[string][]llm.Message
}

func New(cfg Config, model llm.LLMAdapter) *Agent {
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	return &Agent{
		cfg:     cfg,
		model:   model,
		logger:  logging.NewComponentLogger(cfg.Logger, "llm_agent"),
		history: make(map[string][]llm.Message),
	}
}

func (a *Agent) ID() agent.ID     { return agent.ID(a.cfg.ID) }
func (a *Agent) Name() string     { return a.cfg.Name }
func (a *Agent) EntityID() string { return a.cfg.EntityID }

func (a *Agent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	prior := a.turns(req.ConversationID)
	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt(req)})
	messages = append(messages, prior...)
	user := llm.Message{Role: llm.RoleUser, Content: req.Text}
	messages = append(messages, user)

	resp, err := a.model.Generate(ctx, llm.Context{Messages: messages})
	if err != nil {
		reason := errorsx.ReasonLLMGenerate
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonLLMRateLimit
		}
		err = errorsx.Wrap(err, reason)
		a.logger.Warn("llm_generate_failed", "agent", a.cfg.ID, "model", a.model.Name(), "reason", errorsx.Reason(err), "error", err)
		return agent.Response{}, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return agent.Response{
			Classification: agent.ClassificationError,
			Speech:         "Sorry, I couldn't understand that",
			ConversationID: req.ConversationID,
		}, nil
	}
	a.remember(req.ConversationID, user, llm.Message{Role: llm.RoleAssistant, Content: text})
	return agent.Response{
		Classification: agent.ClassificationOK,
		Speech:         text,
		ConversationID: req.ConversationID,
	}, nil
}

func (a *Agent) systemPrompt(req agent.Request) string {
	prompt := a.cfg.SystemPrompt
	if req.Language != "" {
		prompt += "\nReply in language: " + req.Language + "."
	}
	if req.AreaHint != "" {
		prompt += "\nThe user is in the " + req.AreaHint + "."
	}
	return prompt
}

func (a *Agent) turns(conversationID string) []llm.Message {
	if conversationID == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history[conversationID]...)
}

func (a *Agent) remember(conversationID string, msgs ...llm.Message) {
	if conversationID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[conversationID], msgs...)
	if limit := a.cfg.MaxHistory * 2; len(h) > limit {
		h = h[len(h)-limit:]
	}
	a.history[conversationID] = h
}

var _ agent.Agent = (*Agent)(nil)
