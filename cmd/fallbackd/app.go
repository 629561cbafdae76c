package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/agent/llmagent"
	"github.com/harunnryd/fallback/pkg/agent/static"
	"github.com/harunnryd/fallback/pkg/catalog"
	"github.com/harunnryd/fallback/pkg/config"
	"github.com/harunnryd/fallback/pkg/fallback"
	"github.com/harunnryd/fallback/pkg/homeassistant"
	"github.com/harunnryd/fallback/pkg/metrics"
	"github.com/harunnryd/fallback/pkg/redact"
	"github.com/harunnryd/fallback/pkg/translator"
)

// app holds every long-lived component built from one configuration.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	client  *homeassistant.Client
	agents  *agent.Registry
	catalog *catalog.Shared
	orch    *fallback.Orchestrator

	results     *metrics.AsyncObserver
	resultsFile *os.File
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if cfg.NeedsHomeAssistant() {
		hc := cfg.HomeAssistantClientConfig()
		hc.Logger = logger
		client, err := homeassistant.Dial(ctx, hc)
		if err != nil {
			return nil, err
		}
		a.client = client
		logger.Info("ha_connected", "version", client.Version())
	}

	var obs metrics.Observer = metrics.NoopObserver{}
	if path := strings.TrimSpace(cfg.Observability.ResultsPath); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open results file: %w", err)
		}
		a.resultsFile = f
		a.results = metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 0)
		obs = a.results
	}

	agents, err := buildAgents(cfg, a.client, logger, obs)
	if err != nil {
		return nil, err
	}
	a.agents = agents

	tr, err := translator.New(cfg.TranslatorConfig())
	if err != nil {
		return nil, err
	}

	opts := fallback.Options{
		Agents:             agents,
		Translator:         tr,
		Selection:          cfg.Selection(),
		UnhelpfulResponses: cfg.Fallback.UnhelpfulResponses,
		DoneText:           cfg.Fallback.DoneText,
		FailureMessage:     cfg.Fallback.FailureMessage,
		Language:           cfg.Fallback.Language,
		Redact:             redact.New(cfg.Privacy.RedactPII),
		Logger:             logger,
		Observer:           obs,
	}
	if a.results != nil {
		rec := fallback.NewMetricsRecorder(a.results)
		rec.Redact = redact.New(cfg.Privacy.RedactPII)
		opts.Recorder = rec
	}
	if a.client != nil {
		a.catalog = catalog.NewShared(catalog.Options{
			Registry:  a.client,
			Exposure:  a.client,
			States:    a.client,
			Assistant: cfg.HomeAssistant.Assistant,
			Domains:   cfg.Catalog.Domains,
			TTL:       cfg.CatalogTTL(),
			Debounce:  cfg.CatalogDebounce(),
			Logger:    logger,
			Observer:  obs,
		})
		opts.Catalog = a.catalog
		opts.Executor = a.client
	}

	orch, err := fallback.New(opts)
	if err != nil {
		return nil, err
	}
	a.orch = orch
	s := orch.Settings()
	logger.Info("fallback_ready",
		"primary", string(s.Primary),
		"fallback", string(s.Fallback),
		"debug_level", s.Debug.String(),
		"agents", len(agents.List()),
	)
	ok = true
	return a, nil
}

// buildAgents registers every configured agent. Home Assistant's own agent is
// added under its built-in id when a client exists and no spec claims the id.
func buildAgents(cfg config.Config, client *homeassistant.Client, logger *slog.Logger, obs metrics.Observer) (*agent.Registry, error) {
	providers := agent.NewProviders()
	providers.Register(static.ProviderName, static.Factory)
	providers.Register(llmagent.ProviderName, llmagent.NewFactory(logger, obs))
	if client != nil {
		providers.Register(homeassistant.ProviderName, homeassistant.NewFactory(client))
	}
	reg, err := providers.BuildRegistry(cfg.Agents)
	if err != nil {
		return nil, err
	}
	if client != nil {
		if _, exists := reg.Get(agent.HomeAssistantID); !exists {
			reg.Register(homeassistant.DefaultAgent(client))
		}
	}
	return reg, nil
}

func (a *app) process(ctx context.Context, text string) fallback.Result {
	return a.orch.Process(ctx, agent.Request{Text: text})
}

// close tears components down in reverse build order. The catalog and the
// result sink are independent and drain concurrently.
func (a *app) close() error {
	var g errgroup.Group
	if a.catalog != nil {
		g.Go(func() error {
			a.catalog.Stop()
			return nil
		})
	}
	if a.results != nil {
		g.Go(func() error {
			a.results.Close()
			return a.resultsFile.Close()
		})
	} else if a.resultsFile != nil {
		g.Go(a.resultsFile.Close)
	}
	err := g.Wait()
	if a.client != nil {
		err = errors.Join(err, a.client.Close())
	}
	return err
}
