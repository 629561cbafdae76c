package agent

import (
	"strings"
	"sync"
)

const entityPrefix = "conversation."

// Registry holds the known agents in registration order.
type Registry struct {
	mu     sync.RWMutex
	agents map[ID]Agent
	order  []ID
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[ID]Agent)}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an agent.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID()]; !ok {
		r.order = append(r.order, a.ID())
	}
	r.agents[a.ID()] = a
}

func (r *Registry) Get(id ID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// List enumerates agents in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Info{ID: id, Name: r.agents[id].Name()})
	}
	return out
}

// Name returns the display name of id, or UnknownName.
func (r *Registry) Name(id ID) string {
	if a, ok := r.Get(id); ok {
		return a.Name()
	}
	return UnknownName
}

// Resolve normalizes a stored selector value to a canonical id. The value may
// be a bare agent id, a conversation entity id, the compound
// "conversation.<id>" form or an agent display name. Unresolvable values are
// returned trimmed; invoking them fails as an unknown agent.
func (r *Registry) Resolve(raw string) ID {
	s := strings.TrimSpace(raw)
	if s == "" {
		return HomeAssistantID
	}
	lc := strings.ToLower(s)
	if strings.HasPrefix(lc, entityPrefix) {
		switch strings.TrimPrefix(lc, entityPrefix) {
		case "home_assistant", "homeassistant":
			return HomeAssistantID
		}
	}
	if _, ok := r.Get(ID(s)); ok {
		return ID(s)
	}

	r.mu.RLock()
	for _, id := range r.order {
		if e, ok := r.agents[id].(EntityIDer); ok && e.EntityID() == s {
			r.mu.RUnlock()
			return id
		}
	}
	for _, id := range r.order {
		if r.agents[id].Name() == s {
			r.mu.RUnlock()
			return id
		}
	}
	r.mu.RUnlock()

	if strings.HasPrefix(s, entityPrefix) {
		tail := ID(s[len(entityPrefix):])
		if _, ok := r.Get(tail); ok {
			return tail
		}
	}
	return ID(s)
}

// DefaultFallback picks the first agent not named "Home Assistant", then the
// first agent, then the built-in id.
func (r *Registry) DefaultFallback() ID {
	infos := r.List()
	for _, info := range infos {
		if info.Name != "Home Assistant" {
			return info.ID
		}
	}
	if len(infos) > 0 {
		return infos[0].ID
	}
	return HomeAssistantID
}
