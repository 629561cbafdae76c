package llmagent

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/configutil"
	"github.com/harunnryd/fallback/pkg/llm"
	"github.com/harunnryd/fallback/pkg/metrics"
	"github.com/harunnryd/fallback/pkg/providers/mock"
	"github.com/harunnryd/fallback/pkg/providers/openai"
	"github.com/harunnryd/fallback/pkg/resilience"
)

// ProviderName is the agents[].provider value served by this package.
const ProviderName = "llm"

type Settings struct {
	Backend          string        `mapstructure:"backend"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	BaseURL          string        `mapstructure:"base_url"`
	EntityID         string        `mapstructure:"entity_id"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MaxHistory       int           `mapstructure:"max_history"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	// MockResponse is the canned reply of the mock backend.
	MockResponse string `mapstructure:"mock_response"`
}

var schema = configutil.Schema{
	Provider: ProviderName,
	Optional: []string{
		"backend", "api_key", "model", "base_url", "entity_id", "system_prompt", "timeout",
		"max_attempts", "max_history", "breaker_threshold", "breaker_cooldown", "mock_response",
	},
}

// NewFactory returns an agent factory whose breaker events go to obs.
func NewFactory(logger *slog.Logger, obs metrics.Observer) agent.Factory {
	return func(spec agent.Spec) (agent.Agent, error) {
		var s Settings
		if err := schema.Decode(spec.Settings, &s); err != nil {
			return nil, err
		}
		model, err := buildModel(s)
		if err != nil {
			return nil, err
		}
		model = llm.NewRetryAdapter(model, llm.RetryConfig{MaxAttempts: s.MaxAttempts})
		breaker := llm.NewCircuitBreakerAdapter(model, resilience.NewCircuitBreaker(s.BreakerThreshold, s.BreakerCooldown))
		if obs != nil {
			breaker.SetObserver(obs, "agent_id", spec.ID)
		}
		return New(Config{
			ID:           spec.ID,
			Name:         spec.Name,
			EntityID:     s.EntityID,
			SystemPrompt: s.SystemPrompt,
			MaxHistory:   s.MaxHistory,
			Logger:       logger,
		}, breaker), nil
	}
}

func buildModel(s Settings) (llm.LLMAdapter, error) {
	switch strings.ToLower(configutil.StringOr(s.Backend, "openai")) {
	case "openai":
		if err := configutil.RequireString(s.APIKey, "settings.api_key"); err != nil {
			return nil, err
		}
		a := openai.NewAdapter(s.APIKey, configutil.StringOr(s.Model, "gpt-4o-mini"))
		if s.BaseURL != "" {
			a.BaseURL = s.BaseURL
		}
		if s.Timeout > 0 {
			a.Client = &http.Client{Timeout: s.Timeout}
		}
		return a, nil
	case "mock":
		return mock.NewLLMAdapter(mock.LLMConfig{ResponseText: s.MockResponse}), nil
	default:
		return nil, fmt.Errorf("unknown llm backend: %s", s.Backend)
	}
}
