// Package errorsx attaches machine-readable reason codes to errors so that
// logs and metrics can group failures without parsing messages.
package errorsx

type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Catalog and registry reads.
	ReasonCatalogBuild ReasonCode = "catalog_build"
	ReasonRegistryIO   ReasonCode = "registry_io"

	// Home Assistant WebSocket session.
	ReasonHAConnect ReasonCode = "ha_connect"
	ReasonHAAuth    ReasonCode = "ha_auth"
	ReasonHACommand ReasonCode = "ha_command"

	// Fallback cascade.
	ReasonAgentProcess  ReasonCode = "agent_process"
	ReasonAgentUnknown  ReasonCode = "agent_unknown"
	ReasonActionExecute ReasonCode = "action_execute"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonConfigInvalid ReasonCode = "config_invalid"
)
