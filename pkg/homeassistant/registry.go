package homeassistant

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/registry"
)

const (
	cmdEntityRegistryList = "config/entity_registry/list"
	cmdDeviceRegistryList = "config/device_registry/list"
	cmdAreaRegistryList   = "config/area_registry/list"
	cmdGetStates          = "get_states"
	cmdExposedEntities    = "homeassistant/expose_entity/list"
	cmdExposeEntity       = "homeassistant/expose_entity"
	cmdCallService        = "call_service"

	stateCacheTTL = 2 * time.Second
)

var changeEvents = map[registry.ChangeKind]string{
	registry.ChangeEntity: "entity_registry_updated",
	registry.ChangeDevice: "device_registry_updated",
	registry.ChangeArea:   "area_registry_updated",
}

// registryState holds listener fan-out and the exposure and state caches.
// One server subscription per event type is shared by all listeners.
type registryState struct {
	c *Client

	mu         sync.Mutex
	nextID     int
	listeners  map[registry.ChangeKind]map[int]func()
	exposure   map[string]map[int]func(string)
	subscribed map[string]bool

	// cacheLock is never held across a server call; the reader goroutine
	// takes it when dropping the exposure table.
	cacheLock  sync.Mutex
	exposed    map[string]map[string]bool
	exposedGen int
	states     map[string]registry.State
	statesAt   time.Time
}

func newRegistryState(c *Client) *registryState {
	return &registryState{
		c:          c,
		listeners:  make(map[registry.ChangeKind]map[int]func()),
		exposure:   make(map[string]map[int]func(string)),
		subscribed: make(map[string]bool),
	}
}

func (c *Client) Entities(ctx context.Context) ([]registry.Entity, error) {
	var out []registry.Entity
	if err := c.Call(ctx, cmdEntityRegistryList, nil, &out); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonRegistryIO)
	}
	return out, nil
}

func (c *Client) Devices(ctx context.Context) ([]registry.Device, error) {
	var out []registry.Device
	if err := c.Call(ctx, cmdDeviceRegistryList, nil, &out); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonRegistryIO)
	}
	return out, nil
}

func (c *Client) Areas(ctx context.Context) ([]registry.Area, error) {
	var out []registry.Area
	if err := c.Call(ctx, cmdAreaRegistryList, nil, &out); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonRegistryIO)
	}
	return out, nil
}

// OnChange calls fn whenever the matching registry is updated.
func (c *Client) OnChange(kind registry.ChangeKind, fn func()) registry.Unsubscribe {
	r := c.reg
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	if r.listeners[kind] == nil {
		r.listeners[kind] = make(map[int]func())
	}
	r.listeners[kind][id] = fn
	r.mu.Unlock()
	r.ensureSubscribed(changeEvents[kind])
	return func() {
		r.mu.Lock()
		delete(r.listeners[kind], id)
		r.mu.Unlock()
	}
}

// IsExposed reports whether entityID is exposed to assistant. The exposure
// table is cached until the entity registry reports a change.
func (c *Client) IsExposed(ctx context.Context, assistant, entityID string) (bool, error) {
	r := c.reg
	r.ensureSubscribed(changeEvents[registry.ChangeEntity])
	r.cacheLock.Lock()
	table, gen := r.exposed, r.exposedGen
	r.cacheLock.Unlock()
	if table == nil {
		var out struct {
			ExposedEntities map[string]map[string]bool `json:"exposed_entities"`
		}
		if err := c.Call(ctx, cmdExposedEntities, nil, &out); err != nil {
			return false, errorsx.Wrap(err, errorsx.ReasonRegistryIO)
		}
		table = out.ExposedEntities
		if table == nil {
			table = map[string]map[string]bool{}
		}
		r.cacheLock.Lock()
		if r.exposedGen == gen {
			r.exposed = table
		}
		r.cacheLock.Unlock()
	}
	return table[entityID][assistant], nil
}

// OnExposureChange calls fn with the entity id whenever an entity's
// options may have changed. Exposure settings live in entity options.
func (c *Client) OnExposureChange(assistant string, fn func(entityID string)) registry.Unsubscribe {
	r := c.reg
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	if r.exposure[assistant] == nil {
		r.exposure[assistant] = make(map[int]func(string))
	}
	r.exposure[assistant][id] = fn
	r.mu.Unlock()
	r.ensureSubscribed(changeEvents[registry.ChangeEntity])
	return func() {
		r.mu.Lock()
		delete(r.exposure[assistant], id)
		r.mu.Unlock()
	}
}

// Expose changes exposure of entityIDs for assistants and notifies listeners.
func (c *Client) Expose(ctx context.Context, assistants, entityIDs []string, exposed bool) error {
	err := c.Call(ctx, cmdExposeEntity, map[string]any{
		"assistants":    assistants,
		"entity_ids":    entityIDs,
		"should_expose": exposed,
	}, nil)
	if err != nil {
		return err
	}
	c.reg.dropExposure()
	for _, a := range assistants {
		for _, id := range entityIDs {
			c.reg.fireExposure(a, id)
		}
	}
	return nil
}

// State returns the live state of entityID from a short-lived cache of get_states.
func (c *Client) State(ctx context.Context, entityID string) (registry.State, bool, error) {
	r := c.reg
	r.cacheLock.Lock()
	states := r.states
	if time.Since(r.statesAt) > stateCacheTTL {
		states = nil
	}
	r.cacheLock.Unlock()
	if states == nil {
		var out []registry.State
		if err := c.Call(ctx, cmdGetStates, nil, &out); err != nil {
			return registry.State{}, false, errorsx.Wrap(err, errorsx.ReasonRegistryIO)
		}
		states = make(map[string]registry.State, len(out))
		for _, st := range out {
			states[st.EntityID] = st
		}
		r.cacheLock.Lock()
		r.states, r.statesAt = states, time.Now()
		r.cacheLock.Unlock()
	}
	st, ok := states[entityID]
	return st, ok, nil
}

// Execute calls a service and blocks until Home Assistant acknowledges it.
func (c *Client) Execute(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	serviceData := make(map[string]any, len(data))
	for k, v := range data {
		if k != "entity_id" {
			serviceData[k] = v
		}
	}
	err := c.Call(ctx, cmdCallService, map[string]any{
		"domain":       domain,
		"service":      service,
		"service_data": serviceData,
		"target":       map[string]any{"entity_id": entityID},
	}, nil)
	if err != nil {
		c.logger.Warn("ha_call_service_failed", "domain", domain, "service", service, "entity_id", entityID, "error", err)
	}
	return err
}

func (r *registryState) ensureSubscribed(eventType string) {
	r.mu.Lock()
	if r.subscribed[eventType] {
		r.mu.Unlock()
		return
	}
	r.subscribed[eventType] = true
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.c.cfg.RequestTimeout)
		defer cancel()
		_, err := r.c.Subscribe(ctx, eventType, func(raw json.RawMessage) { r.dispatch(eventType, raw) })
		if err != nil {
			r.c.logger.Warn("ha_subscribe_failed", "event_type", eventType, "error", err)
			r.mu.Lock()
			r.subscribed[eventType] = false
			r.mu.Unlock()
		}
	}()
}

type registryEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		Action   string `json:"action"`
		EntityID string `json:"entity_id"`
	} `json:"data"`
}

func (r *registryState) dispatch(eventType string, raw json.RawMessage) {
	var ev registryEvent
	_ = json.Unmarshal(raw, &ev)

	var kind registry.ChangeKind
	for k, name := range changeEvents {
		if name == eventType {
			kind = k
		}
	}
	if kind == registry.ChangeEntity {
		r.dropExposure()
		r.mu.Lock()
		var fns []func(string)
		for _, byID := range r.exposure {
			for _, fn := range byID {
				fns = append(fns, fn)
			}
		}
		r.mu.Unlock()
		for _, fn := range fns {
			fn(ev.Data.EntityID)
		}
	}

	r.mu.Lock()
	fns := make([]func(), 0, len(r.listeners[kind]))
	for _, fn := range r.listeners[kind] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (r *registryState) dropExposure() {
	r.cacheLock.Lock()
	r.exposed = nil
	r.exposedGen++
	r.cacheLock.Unlock()
}

func (r *registryState) fireExposure(assistant, entityID string) {
	r.mu.Lock()
	fns := make([]func(string), 0, len(r.exposure[assistant]))
	for _, fn := range r.exposure[assistant] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(entityID)
	}
}

var (
	_ registry.Registry = (*Client)(nil)
	_ registry.Exposure = (*Client)(nil)
	_ registry.States   = (*Client)(nil)
	_ registry.Executor = (*Client)(nil)
)
