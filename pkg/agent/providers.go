package agent

import (
	"fmt"
	"strings"
)

// Spec configures one agent instance.
type Spec struct {
	ID       string         `mapstructure:"id"`
	Name     string         `mapstructure:"name"`
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// Factory builds an agent from its spec.
type Factory func(spec Spec) (Agent, error)

// Providers maps provider names to agent factories.
type Providers struct {
	factories map[string]Factory
}

func NewProviders() *Providers {
	return &Providers{factories: make(map[string]Factory)}
}

func (p *Providers) Register(name string, factory Factory) {
	p.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (p *Providers) Build(spec Spec) (Agent, error) {
	fn := p.factories[strings.ToLower(strings.TrimSpace(spec.Provider))]
	if fn == nil {
		return nil, fmt.Errorf("agent provider not registered: %s", spec.Provider)
	}
	a, err := fn(spec)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", spec.ID, err)
	}
	return a, nil
}

// BuildRegistry builds every spec into a new registry.
func (p *Providers) BuildRegistry(specs []Spec) (*Registry, error) {
	reg := NewRegistry()
	for _, spec := range specs {
		a, err := p.Build(spec)
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	return reg, nil
}
