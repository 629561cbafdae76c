package homeassistant

import (
	"context"
	"strings"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/configutil"
	"github.com/harunnryd/fallback/pkg/errorsx"
)

const (
	cmdConversationProcess = "conversation/process"
	cmdConversationAgents  = "conversation/agent/list"

	// DefaultAgentEntity is Home Assistant's own rule-based agent.
	DefaultAgentEntity = "conversation.home_assistant"

	// ProviderName is the agents[].provider value served by this package.
	ProviderName = "homeassistant"

	responseTypeError = "error"
)

// ServerAgent is a conversation agent as listed by Home Assistant.
type ServerAgent struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	SupportedLanguages []string `json:"supported_languages"`
}

// ListAgents enumerates the conversation agents known to the server.
func (c *Client) ListAgents(ctx context.Context) ([]ServerAgent, error) {
	var out struct {
		Agents []ServerAgent `json:"agents"`
	}
	if err := c.Call(ctx, cmdConversationAgents, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

type processResult struct {
	ConversationID string `json:"conversation_id"`
	Response       struct {
		ResponseType string `json:"response_type"`
		Speech       struct {
			Plain struct {
				Speech string `json:"speech"`
			} `json:"plain"`
		} `json:"speech"`
	} `json:"response"`
}

// ConversationAgent forwards utterances to one server-side agent.
type ConversationAgent struct {
	client *Client
	id     agent.ID
	name   string
	entity string
}

func NewConversationAgent(client *Client, id agent.ID, name, entityID string) *ConversationAgent {
	if entityID == "" {
		entityID = DefaultAgentEntity
	}
	if name == "" {
		name = string(id)
	}
	return &ConversationAgent{client: client, id: id, name: name, entity: entityID}
}

// DefaultAgent wraps Home Assistant's built-in agent under the canonical id.
func DefaultAgent(client *Client) *ConversationAgent {
	return NewConversationAgent(client, agent.HomeAssistantID, "Home Assistant", DefaultAgentEntity)
}

func (a *ConversationAgent) ID() agent.ID     { return a.id }
func (a *ConversationAgent) Name() string     { return a.name }
func (a *ConversationAgent) EntityID() string { return a.entity }

func (a *ConversationAgent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	payload := map[string]any{
		"text":     req.Text,
		"agent_id": a.entity,
	}
	if req.ConversationID != "" {
		payload["conversation_id"] = req.ConversationID
	}
	if req.Language != "" {
		payload["language"] = req.Language
	}
	var out processResult
	if err := a.client.Call(ctx, cmdConversationProcess, payload, &out); err != nil {
		return agent.Response{}, errorsx.Wrap(err, errorsx.ReasonAgentProcess)
	}
	cls := agent.ClassificationOK
	if out.Response.ResponseType == responseTypeError {
		cls = agent.ClassificationError
	}
	convID := out.ConversationID
	if convID == "" {
		convID = req.ConversationID
	}
	return agent.Response{
		Classification: cls,
		Speech:         out.Response.Speech.Plain.Speech,
		ConversationID: convID,
	}, nil
}

var agentSchema = configutil.Schema{Provider: ProviderName, Optional: []string{"agent_id"}}

// NewFactory builds conversation agents over client. settings.agent_id
// names the server agent entity and defaults to the built-in agent.
func NewFactory(client *Client) agent.Factory {
	return func(spec agent.Spec) (agent.Agent, error) {
		var s struct {
			AgentID string `mapstructure:"agent_id"`
		}
		if err := agentSchema.Decode(spec.Settings, &s); err != nil {
			return nil, err
		}
		id := agent.ID(strings.TrimSpace(spec.ID))
		if id == "" {
			id = agent.HomeAssistantID
		}
		return NewConversationAgent(client, id, spec.Name, s.AgentID), nil
	}
}

var _ agent.Agent = (*ConversationAgent)(nil)
