// Package catalog maintains a cached, event-driven index of the entities
// exposed to the assistant.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/logging"
	"github.com/harunnryd/fallback/pkg/metrics"
	"github.com/harunnryd/fallback/pkg/registry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAssistant = "conversation"
	DefaultTTL       = 60 * time.Second
	DefaultDebounce  = 250 * time.Millisecond
)

// DefaultDomains is the allow-set of controllable domains.
var DefaultDomains = []string{
	"light",
	"switch",
	"fan",
	"cover",
	"climate",
	"script",
	"scene",
	"input_boolean",
	"lock",
}

type Options struct {
	Registry registry.Registry
	Exposure registry.Exposure
	// States is optional; without it names fall back straight to the entity id.
	States    registry.States
	Assistant string
	Domains   []string
	TTL       time.Duration
	// Debounce coalesces bursts of change notifications into one rebuild.
	Debounce time.Duration
	Logger   *slog.Logger
	Observer metrics.Observer
	Now      func() time.Time
}

// Catalog serves the latest snapshot of exposed entities. Rebuilds are
// serialized; readers always see a complete snapshot.
type Catalog struct {
	reg       registry.Registry
	exposure  registry.Exposure
	states    registry.States
	assistant string
	domains   map[string]struct{}
	ttl       time.Duration
	debounce  time.Duration
	log       *slog.Logger
	obs       metrics.Observer
	now       func() time.Time

	snap atomic.Pointer[Snapshot]
	mu   sync.Mutex

	invalidate chan struct{}

	lifeMu  sync.Mutex
	unsubs  []registry.Unsubscribe
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func New(opts Options) *Catalog {
	if opts.Assistant == "" {
		opts.Assistant = DefaultAssistant
	}
	if len(opts.Domains) == 0 {
		opts.Domains = DefaultDomains
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	domains := make(map[string]struct{}, len(opts.Domains))
	for _, d := range opts.Domains {
		domains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	c := &Catalog{
		reg:        opts.Registry,
		exposure:   opts.Exposure,
		states:     opts.States,
		assistant:  opts.Assistant,
		domains:    domains,
		ttl:        opts.TTL,
		debounce:   opts.Debounce,
		log:        logging.NewComponentLogger(opts.Logger, "catalog"),
		obs:        metrics.OrNoop(opts.Observer),
		now:        opts.Now,
		invalidate: make(chan struct{}, 1),
	}
	c.snap.Store(emptySnapshot)
	return c
}

// Start registers change listeners, starts the invalidation worker and
// performs the initial forced build. A failed initial build is returned but
// leaves the catalog running with an empty snapshot.
func (c *Catalog) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.started {
		c.lifeMu.Unlock()
		return nil
	}
	c.started = true
	workerCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if c.exposure != nil {
		c.unsubs = append(c.unsubs, c.exposure.OnExposureChange(c.assistant, func(entityID string) {
			c.notify("exposure", entityID)
		}))
	}
	for _, kind := range []registry.ChangeKind{registry.ChangeEntity, registry.ChangeDevice, registry.ChangeArea} {
		c.unsubs = append(c.unsubs, c.reg.OnChange(kind, func() {
			c.notify(string(kind), "")
		}))
	}
	c.wg.Add(1)
	go c.loop(workerCtx)
	c.lifeMu.Unlock()

	return c.Rebuild(ctx, true)
}

// Stop unregisters every listener and stops the worker. It is idempotent.
func (c *Catalog) Stop() {
	c.lifeMu.Lock()
	if !c.started || c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.stopped = true
	unsubs := c.unsubs
	c.unsubs = nil
	cancel := c.cancel
	c.lifeMu.Unlock()

	for _, unsub := range unsubs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Warn("catalog_unsubscribe_panic", "panic", r)
				}
			}()
			if unsub != nil {
				unsub()
			}
		}()
	}
	cancel()
	c.wg.Wait()
}

// Snapshot returns the current snapshot, rebuilding first when it is older
// than the TTL. A failed rebuild is logged and the last good snapshot served.
func (c *Catalog) Snapshot(ctx context.Context) *Snapshot {
	if c.stale(c.snap.Load()) {
		if err := c.Rebuild(ctx, false); err != nil {
			c.log.Warn("catalog_rebuild_failed", "error", err, "reason", errorsx.Reason(err))
		}
	}
	return c.snap.Load()
}

// Items is shorthand for Snapshot(ctx).Items().
func (c *Catalog) Items(ctx context.Context) []Item {
	return c.Snapshot(ctx).Items()
}

// Rebuild recomputes the snapshot unless a fresh one exists and force is
// false. Concurrent callers serialize; a caller that waited on another
// caller's rebuild returns without building again.
func (c *Catalog) Rebuild(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && !c.stale(c.snap.Load()) {
		return nil
	}

	start := c.now()
	items, err := c.build(ctx)
	if err != nil {
		c.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventCatalogRebuildError,
			Time: time.Now(),
			Tags: map[string]string{"assistant": c.assistant, "reason": string(errorsx.Reason(err))},
		})
		return err
	}
	builtAt := c.now()
	c.snap.Store(newSnapshot(items, builtAt))

	c.log.Debug("catalog_rebuilt", "entities", len(items), "assistant", c.assistant, "forced", force)
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventCatalogRebuilt,
		Time:  time.Now(),
		Value: float64(len(items)),
		Tags:  map[string]string{"assistant": c.assistant},
		Fields: map[string]any{
			"duration_ms": builtAt.Sub(start).Milliseconds(),
			"forced":      force,
		},
	})
	return nil
}

// Invalidate schedules an asynchronous forced rebuild. It never blocks;
// signals arriving while one is pending are merged.
func (c *Catalog) Invalidate() {
	select {
	case c.invalidate <- struct{}{}:
	default:
	}
}

func (c *Catalog) stale(s *Snapshot) bool {
	if s == nil || s.builtAt.IsZero() {
		return true
	}
	return c.now().Sub(s.builtAt) > c.ttl
}

func (c *Catalog) notify(source, entityID string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("catalog_notify_panic", "source", source, "panic", r)
		}
	}()
	c.log.Debug("catalog_invalidated", "source", source, "entity_id", entityID)
	c.Invalidate()
}

func (c *Catalog) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.invalidate:
		}
		if c.debounce > 0 {
			timer := time.NewTimer(c.debounce)
		wait:
			for {
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-c.invalidate:
				case <-timer.C:
					break wait
				}
			}
		}
		if err := c.Rebuild(ctx, true); err != nil && ctx.Err() == nil {
			c.log.Warn("catalog_rebuild_failed", "error", err, "reason", errorsx.Reason(err))
		}
	}
}

func (c *Catalog) build(ctx context.Context) ([]Item, error) {
	var (
		entities []registry.Entity
		devices  []registry.Device
		areas    []registry.Area
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if entities, err = c.reg.Entities(gctx); err != nil {
			return fmt.Errorf("list entities: %w", errorsx.Wrap(err, errorsx.ReasonRegistryIO))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if devices, err = c.reg.Devices(gctx); err != nil {
			return fmt.Errorf("list devices: %w", errorsx.Wrap(err, errorsx.ReasonRegistryIO))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if areas, err = c.reg.Areas(gctx); err != nil {
			return fmt.Errorf("list areas: %w", errorsx.Wrap(err, errorsx.ReasonRegistryIO))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCatalogBuild)
	}

	devByID := make(map[string]registry.Device, len(devices))
	for _, d := range devices {
		devByID[d.DeviceID] = d
	}
	areaByID := make(map[string]registry.Area, len(areas))
	for _, a := range areas {
		areaByID[a.AreaID] = a
	}

	out := make([]Item, 0, len(entities))
	for _, e := range entities {
		domain := e.Domain()
		if _, ok := c.domains[domain]; !ok {
			continue
		}
		if c.exposure != nil {
			exposed, err := c.exposure.IsExposed(ctx, c.assistant, e.EntityID)
			if err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("exposure of %s: %w", e.EntityID, err), errorsx.ReasonRegistryIO)
			}
			if !exposed {
				continue
			}
		}

		name := strings.TrimSpace(e.Name)
		if name == "" && c.states != nil {
			st, ok, err := c.states.State(ctx, e.EntityID)
			if err != nil {
				return nil, errorsx.Wrap(fmt.Errorf("state of %s: %w", e.EntityID, err), errorsx.ReasonRegistryIO)
			}
			if ok {
				name = st.FriendlyName()
			}
		}
		if name == "" {
			name = e.EntityID
		}

		item := Item{EntityID: e.EntityID, Domain: domain, Name: name}
		areaID := e.AreaID
		if e.DeviceID != "" {
			if dev, ok := devByID[e.DeviceID]; ok {
				item.DeviceName = dev.DisplayName()
				if areaID == "" {
					areaID = dev.AreaID
				}
			}
		}
		if areaID != "" {
			if area, ok := areaByID[areaID]; ok {
				item.AreaName = area.Name
			}
		}
		out = append(out, item)
	}
	return out, nil
}
