package translator

import "github.com/harunnryd/fallback/pkg/registry"

const (
	ServiceTurnOn         = "turn_on"
	ServiceTurnOff        = "turn_off"
	ServiceToggle         = "toggle"
	ServiceSetTemperature = "set_temperature"

	// ToggleDomain hosts the domain-agnostic toggle service.
	ToggleDomain  = "homeassistant"
	ClimateDomain = "climate"
)

// ActionPlan is a concrete service call produced for one request.
type ActionPlan struct {
	Domain         string   `json:"domain"`
	Service        string   `json:"service"`
	EntityID       string   `json:"entity_id"`
	Value          *float64 `json:"value,omitempty"`
	NormalizedText string   `json:"normalized_text"`
	MatchScore     float64  `json:"match_score"`
}

// ServiceData is the payload passed to the executor alongside the target
// entity. Temperature is only set for climate set_temperature plans.
func (p ActionPlan) ServiceData() map[string]any {
	data := map[string]any{"entity_id": p.EntityID}
	if p.Domain == ClimateDomain && p.Service == ServiceSetTemperature && p.Value != nil {
		data["temperature"] = *p.Value
	}
	return data
}

// Plan maps a parsed command and a resolved entity to a service call. Set
// is only legal for climate entities.
func Plan(cmd Command, entityID string) (ActionPlan, Reason) {
	domain := registry.Domain(entityID)
	switch cmd.Verb {
	case VerbOn:
		return ActionPlan{Domain: domain, Service: ServiceTurnOn, EntityID: entityID}, ReasonNone
	case VerbOff:
		return ActionPlan{Domain: domain, Service: ServiceTurnOff, EntityID: entityID}, ReasonNone
	case VerbToggle:
		return ActionPlan{Domain: ToggleDomain, Service: ServiceToggle, EntityID: entityID}, ReasonNone
	case VerbSet:
		if domain != ClimateDomain {
			return ActionPlan{}, ReasonSetNotClimate
		}
		v := cmd.Value
		return ActionPlan{Domain: ClimateDomain, Service: ServiceSetTemperature, EntityID: entityID, Value: &v}, ReasonNone
	default:
		return ActionPlan{}, ReasonUnsupported
	}
}
