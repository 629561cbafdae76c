// Package config loads the daemon configuration with viper.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/catalog"
	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/fallback"
	"github.com/harunnryd/fallback/pkg/homeassistant"
	"github.com/harunnryd/fallback/pkg/translator"
)

type HomeAssistantConfig struct {
	URL              string `mapstructure:"url"`
	Token            string `mapstructure:"token"`
	Assistant        string `mapstructure:"assistant"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms"`
	DialRetries      int    `mapstructure:"dial_retries"`
	DialBackoffMS    int    `mapstructure:"dial_backoff_ms"`
}

type CatalogConfig struct {
	TTLMS      int      `mapstructure:"ttl_ms"`
	DebounceMS int      `mapstructure:"debounce_ms"`
	Domains    []string `mapstructure:"domains"`
}

type TranslatorConfig struct {
	MinScore     float64                `mapstructure:"min_score"`
	MinMargin    float64                `mapstructure:"min_margin"`
	AreaMinScore float64                `mapstructure:"area_min_score"`
	AreaBonus    float64                `mapstructure:"area_bonus"`
	Confusions   []translator.Confusion `mapstructure:"confusions"`
	GenericWords []string               `mapstructure:"generic_words"`
}

type FallbackConfig struct {
	PrimaryAgent       string   `mapstructure:"primary_agent"`
	FallbackAgent      string   `mapstructure:"fallback_agent"`
	DebugLevel         string   `mapstructure:"debug_level"`
	UnhelpfulResponses []string `mapstructure:"unhelpful_responses"`
	DoneText           string   `mapstructure:"done_text"`
	FailureMessage     string   `mapstructure:"failure_message"`
	Language           string   `mapstructure:"language"`
}

type ObservabilityConfig struct {
	// ResultsPath receives one JSON line per agent result when set.
	ResultsPath string `mapstructure:"results_path"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type Config struct {
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Translator    TranslatorConfig    `mapstructure:"translator"`
	Fallback      FallbackConfig      `mapstructure:"fallback"`
	Agents        []agent.Spec        `mapstructure:"agents"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("home_assistant.assistant", catalog.DefaultAssistant)
	v.SetDefault("home_assistant.request_timeout_ms", int(homeassistant.DefaultRequestTimeout/time.Millisecond))
	v.SetDefault("home_assistant.dial_retries", 3)
	v.SetDefault("home_assistant.dial_backoff_ms", 500)
	v.SetDefault("catalog.ttl_ms", int(catalog.DefaultTTL/time.Millisecond))
	v.SetDefault("catalog.debounce_ms", int(catalog.DefaultDebounce/time.Millisecond))
	v.SetDefault("translator.min_score", translator.DefaultMinScore)
	v.SetDefault("translator.min_margin", translator.DefaultMinMargin)
	v.SetDefault("translator.area_min_score", translator.DefaultAreaMinScore)
	v.SetDefault("translator.area_bonus", translator.DefaultAreaBonus)
	v.SetDefault("fallback.primary_agent", string(agent.HomeAssistantID))
	v.SetDefault("fallback.fallback_agent", string(agent.HomeAssistantID))
	v.SetDefault("fallback.debug_level", "none")
	v.SetDefault("fallback.done_text", fallback.DefaultDoneText)
	v.SetDefault("fallback.failure_message", fallback.DefaultFailureMessage)
	v.SetDefault("fallback.language", fallback.DefaultLanguage)
	v.SetDefault("privacy.redact_pii", true)
}

// Load reads path, applies defaults, expands $ENV references in every
// string value and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfigInvalid)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfigInvalid)
	}
	expandEnvStrings(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfigInvalid)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := fallback.ParseDebugLevel(c.Fallback.DebugLevel); err != nil {
		return fmt.Errorf("fallback.debug_level: %w", err)
	}
	if c.Translator.MinScore < 0 || c.Translator.MinScore > 1 {
		return fmt.Errorf("translator.min_score must be within [0,1]")
	}
	if c.Translator.MinMargin < 0 || c.Translator.MinMargin > 1 {
		return fmt.Errorf("translator.min_margin must be within [0,1]")
	}
	if c.Catalog.TTLMS < 0 || c.Catalog.DebounceMS < 0 {
		return fmt.Errorf("catalog durations must not be negative")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, spec := range c.Agents {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if strings.TrimSpace(spec.Provider) == "" {
			return fmt.Errorf("agents[%d].provider is required", i)
		}
		if seen[id] {
			return fmt.Errorf("agents[%d].id %q is duplicated", i, id)
		}
		seen[id] = true
	}
	return nil
}

// NeedsHomeAssistant reports whether any component must talk to Home Assistant.
func (c *Config) NeedsHomeAssistant() bool {
	if strings.TrimSpace(c.HomeAssistant.URL) != "" {
		return true
	}
	for _, spec := range c.Agents {
		if strings.EqualFold(spec.Provider, homeassistant.ProviderName) {
			return true
		}
	}
	return false
}

// Selection is the stored agent choice and debug level for the orchestrator.
func (c *Config) Selection() fallback.Selection {
	level, _ := fallback.ParseDebugLevel(c.Fallback.DebugLevel)
	return fallback.Selection{
		PrimaryAgent:  c.Fallback.PrimaryAgent,
		FallbackAgent: c.Fallback.FallbackAgent,
		DebugLevel:    level,
	}
}

func (c *Config) TranslatorConfig() translator.Config {
	return translator.Config{
		Resolver: translator.ResolverConfig{
			MinScore:     c.Translator.MinScore,
			MinMargin:    c.Translator.MinMargin,
			AreaMinScore: c.Translator.AreaMinScore,
			AreaBonus:    c.Translator.AreaBonus,
			GenericWords: c.Translator.GenericWords,
			Domains:      c.Catalog.Domains,
		},
		Confusions: c.Translator.Confusions,
	}
}

func (c *Config) HomeAssistantClientConfig() homeassistant.Config {
	return homeassistant.Config{
		URL:            c.HomeAssistant.URL,
		Token:          c.HomeAssistant.Token,
		RequestTimeout: millis(c.HomeAssistant.RequestTimeoutMS),
		DialRetries:    c.HomeAssistant.DialRetries,
		DialBackoff:    millis(c.HomeAssistant.DialBackoffMS),
	}
}

func (c *Config) CatalogTTL() time.Duration      { return millis(c.Catalog.TTLMS) }
func (c *Config) CatalogDebounce() time.Duration { return millis(c.Catalog.DebounceMS) }

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	for i := range cfg.Agents {
		cfg.Agents[i].Settings = expandSettings(cfg.Agents[i].Settings)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
