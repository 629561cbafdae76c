// Package agent defines downstream conversation agents and the registry that
// resolves stored agent selections to canonical ids.
package agent

import "context"

// ID is a canonical agent id. Stored selector values are normalized into an
// ID by Registry.Resolve before any invocation.
type ID string

// HomeAssistantID is the id of the built-in rule-based agent.
const HomeAssistantID ID = "homeassistant"

// UnknownName is rendered for ids that are not registered.
const UnknownName = "[unknown]"

// Classification is an agent's own verdict on its response.
type Classification string

const (
	ClassificationOK    Classification = "ok"
	ClassificationError Classification = "error"
)

type Request struct {
	Text           string
	ConversationID string
	Language       string
	// AreaHint is the area the request originated from, when known.
	AreaHint string
}

type Response struct {
	Classification Classification
	Speech         string
	ConversationID string
}

// IsError reports whether the agent classified its own response as an error.
func (r Response) IsError() bool {
	return r.Classification == ClassificationError
}

// Agent is given text and returns speech plus a success or error
// classification. A returned error means the agent could not answer at all.
type Agent interface {
	ID() ID
	Name() string
	Process(ctx context.Context, req Request) (Response, error)
}

// EntityIDer is implemented by agents that are also addressable by a
// conversation entity id such as "conversation.openai".
type EntityIDer interface {
	EntityID() string
}

type Info struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}
