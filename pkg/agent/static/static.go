// Package static provides a rule-driven agent that answers from a fixed
// phrase table. It stands in for real agents in tests and dry runs.
package static

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/harunnryd/fallback/pkg/agent"
)

// Rule answers any request whose lower-cased text contains Contains.
type Rule struct {
	Contains string `mapstructure:"contains"`
	Speech   string `mapstructure:"speech"`
	Error    bool   `mapstructure:"error"`
}

type Config struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	EntityID string `mapstructure:"entity_id"`
	Rules    []Rule `mapstructure:"rules"`
	// DefaultSpeech is returned when no rule matches.
	DefaultSpeech string `mapstructure:"default_speech"`
	DefaultError  bool   `mapstructure:"default_error"`
	// Fail makes every call return an error instead of a response.
	Fail string `mapstructure:"fail"`
}

type Agent struct {
	cfg   Config
	calls atomic.Int64
}

func New(cfg Config) *Agent {
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if cfg.DefaultSpeech == "" {
		cfg.DefaultSpeech = "Sorry, I couldn't understand that"
		cfg.DefaultError = true
	}
	return &Agent{cfg: cfg}
}

func (a *Agent) ID() agent.ID     { return agent.ID(a.cfg.ID) }
func (a *Agent) Name() string     { return a.cfg.Name }
func (a *Agent) EntityID() string { return a.cfg.EntityID }

// Calls reports how many times Process was invoked.
func (a *Agent) Calls() int64 { return a.calls.Load() }

func (a *Agent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	a.calls.Add(1)
	if a.cfg.Fail != "" {
		return agent.Response{}, errors.New(a.cfg.Fail)
	}
	if err := ctx.Err(); err != nil {
		return agent.Response{}, err
	}
	text := strings.ToLower(req.Text)
	for _, r := range a.cfg.Rules {
		if r.Contains != "" && strings.Contains(text, strings.ToLower(r.Contains)) {
			return respond(req, r.Speech, r.Error), nil
		}
	}
	return respond(req, a.cfg.DefaultSpeech, a.cfg.DefaultError), nil
}

func respond(req agent.Request, speech string, isErr bool) agent.Response {
	cls := agent.ClassificationOK
	if isErr {
		cls = agent.ClassificationError
	}
	return agent.Response{Classification: cls, Speech: speech, ConversationID: req.ConversationID}
}

var _ agent.Agent = (*Agent)(nil)
