package static

import (
	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/configutil"
)

// ProviderName is the agents[].provider value served by this package.
const ProviderName = "static"

var schema = configutil.Schema{
	Provider: ProviderName,
	Optional: []string{"entity_id", "rules", "default_speech", "default_error", "fail"},
}

// Factory builds a static agent from an agent spec.
func Factory(spec agent.Spec) (agent.Agent, error) {
	var cfg Config
	if err := schema.Decode(spec.Settings, &cfg); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(spec.ID, "agents[].id"); err != nil {
		return nil, err
	}
	cfg.ID = spec.ID
	cfg.Name = spec.Name
	return New(cfg), nil
}
