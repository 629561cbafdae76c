package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/fallback"
	"github.com/harunnryd/fallback/pkg/logging"
)

const sample = `
log_level: debug
home_assistant:
  url: http://ha.local:8123
  token: ${FALLBACK_TEST_TOKEN}
fallback:
  primary_agent: conversation.openai
  fallback_agent: conversation.home_assistant
  debug_level: verbose_debug
translator:
  confusions:
    - pattern: '\bkitchin\b'
      replacement: kitchen
agents:
  - id: openai
    name: OpenAI
    provider: llm
    settings:
      api_key: ${FALLBACK_TEST_TOKEN}
      entity_id: conversation.openai
  - id: homeassistant
    name: Home Assistant
    provider: homeassistant
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("FALLBACK_TEST_TOKEN", "tok-123")
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.HomeAssistant.Token != "tok-123" {
		t.Fatalf("expected env expansion, got %q", cfg.HomeAssistant.Token)
	}
	if cfg.Agents[0].Settings["api_key"] != "tok-123" {
		t.Fatalf("expected settings env expansion, got %v", cfg.Agents[0].Settings["api_key"])
	}
	if cfg.HomeAssistant.Assistant != "conversation" || cfg.CatalogTTL() != 60*time.Second {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.Fallback.DoneText != fallback.DefaultDoneText || cfg.Fallback.Language != "en" {
		t.Fatalf("expected fallback defaults, got %+v", cfg.Fallback)
	}
	sel := cfg.Selection()
	if sel.DebugLevel != fallback.DebugVerbose || sel.PrimaryAgent != "conversation.openai" {
		t.Fatalf("unexpected selection: %+v", sel)
	}
	tc := cfg.TranslatorConfig()
	if tc.Resolver.MinScore != 0.88 || len(tc.Confusions) != 1 || tc.Confusions[0].Replacement != "kitchen" {
		t.Fatalf("unexpected translator config: %+v", tc)
	}
	if !cfg.NeedsHomeAssistant() {
		t.Fatalf("expected home assistant to be needed")
	}
	if cfg.Fallback.UnhelpfulResponses != nil {
		t.Fatalf("expected unset unhelpful responses to stay nil")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"debug level":   "fallback:\n  debug_level: loud\n",
		"missing id":    "agents:\n  - provider: static\n",
		"duplicate id":  "agents:\n  - id: a\n    provider: static\n  - id: a\n    provider: static\n",
		"missing prov":  "agents:\n  - id: a\n",
		"bad min score": "translator:\n  min_score: 3\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
			t.Fatalf("%s: expected config_invalid reason, got %s", name, errorsx.Reason(err))
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "fallback:\n  debug_level: none\n")
	got := make(chan Config, 4)
	cfg, err := Watch(path, logging.Discard(), func(c Config) { got <- c })
	if err != nil {
		t.Fatalf("watch error: %v", err)
	}
	if cfg.Selection().DebugLevel != fallback.DebugNone {
		t.Fatalf("unexpected initial level")
	}
	if err := os.WriteFile(path, []byte("fallback:\n  debug_level: low\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Selection().DebugLevel == fallback.DebugLow {
				return
			}
		case <-deadline:
			t.Fatalf("expected reload with low debug level")
		}
	}
}
