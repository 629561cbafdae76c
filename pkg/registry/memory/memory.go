// Package memory is an in-process implementation of the registry
// collaborators. It backs tests and offline dry runs.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/fallback/pkg/registry"
)

// Call is one executed service call.
type Call struct {
	Domain   string
	Service  string
	EntityID string
	Data     map[string]any
}

// Store holds registries, exposure flags and states in memory.
type Store struct {
	mu       sync.Mutex
	entities []registry.Entity
	devices  map[string]registry.Device
	devOrder []string
	areas    map[string]registry.Area
	areaOrd  []string
	exposed  map[string]map[string]bool
	states   map[string]registry.State
	calls    []Call

	listeners   map[registry.ChangeKind]map[int]func()
	exposureLis map[string]map[int]func(string)
	nextID      int

	// ListErr, when set, is returned by every list call.
	ListErr error
	// ExecErr, when set, is returned by Execute.
	ExecErr error

	entityLists atomic.Int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		devices:     make(map[string]registry.Device),
		areas:       make(map[string]registry.Area),
		exposed:     make(map[string]map[string]bool),
		states:      make(map[string]registry.State),
		listeners:   make(map[registry.ChangeKind]map[int]func()),
		exposureLis: make(map[string]map[int]func(string)),
	}
}

// AddArea registers an area and notifies area listeners.
func (s *Store) AddArea(a registry.Area) {
	s.mu.Lock()
	if _, ok := s.areas[a.AreaID]; !ok {
		s.areaOrd = append(s.areaOrd, a.AreaID)
	}
	s.areas[a.AreaID] = a
	s.mu.Unlock()
	s.notify(registry.ChangeArea)
}

// AddDevice registers a device and notifies device listeners.
func (s *Store) AddDevice(d registry.Device) {
	s.mu.Lock()
	if _, ok := s.devices[d.DeviceID]; !ok {
		s.devOrder = append(s.devOrder, d.DeviceID)
	}
	s.devices[d.DeviceID] = d
	s.mu.Unlock()
	s.notify(registry.ChangeDevice)
}

// AddEntity registers or replaces an entity and notifies entity listeners.
func (s *Store) AddEntity(e registry.Entity) {
	s.mu.Lock()
	replaced := false
	for i := range s.entities {
		if s.entities[i].EntityID == e.EntityID {
			s.entities[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		s.entities = append(s.entities, e)
	}
	s.mu.Unlock()
	s.notify(registry.ChangeEntity)
}

// SetState stores the live state of an entity.
func (s *Store) SetState(st registry.State) {
	s.mu.Lock()
	s.states[st.EntityID] = st
	s.mu.Unlock()
}

// Expose sets the exposure flag of an entity for an assistant and notifies
// exposure listeners of that assistant.
func (s *Store) Expose(assistant, entityID string, exposed bool) {
	s.mu.Lock()
	m := s.exposed[assistant]
	if m == nil {
		m = make(map[string]bool)
		s.exposed[assistant] = m
	}
	m[entityID] = exposed
	fns := make([]func(string), 0, len(s.exposureLis[assistant]))
	for _, fn := range s.exposureLis[assistant] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(entityID)
	}
}

func (s *Store) Entities(ctx context.Context) ([]registry.Entity, error) {
	s.entityLists.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]registry.Entity, len(s.entities))
	copy(out, s.entities)
	return out, nil
}

func (s *Store) Devices(ctx context.Context) ([]registry.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]registry.Device, 0, len(s.devOrder))
	for _, id := range s.devOrder {
		out = append(out, s.devices[id])
	}
	return out, nil
}

func (s *Store) Areas(ctx context.Context) ([]registry.Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]registry.Area, 0, len(s.areaOrd))
	for _, id := range s.areaOrd {
		out = append(out, s.areas[id])
	}
	return out, nil
}

// EntityLists reports how many times Entities has been called. Each catalog
// build lists entities exactly once.
func (s *Store) EntityLists() int64 {
	return s.entityLists.Load()
}

func (s *Store) OnChange(kind registry.ChangeKind, fn func()) registry.Unsubscribe {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.listeners[kind] == nil {
		s.listeners[kind] = make(map[int]func())
	}
	s.listeners[kind][id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners[kind], id)
		s.mu.Unlock()
	}
}

func (s *Store) IsExposed(ctx context.Context, assistant, entityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposed[assistant][entityID], nil
}

func (s *Store) OnExposureChange(assistant string, fn func(entityID string)) registry.Unsubscribe {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.exposureLis[assistant] == nil {
		s.exposureLis[assistant] = make(map[int]func(string))
	}
	s.exposureLis[assistant][id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.exposureLis[assistant], id)
		s.mu.Unlock()
	}
}

// Listeners reports the number of registered change and exposure listeners.
func (s *Store) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.listeners {
		n += len(m)
	}
	for _, m := range s.exposureLis {
		n += len(m)
	}
	return n
}

func (s *Store) State(ctx context.Context, entityID string) (registry.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[entityID]
	return st, ok, nil
}

func (s *Store) Execute(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExecErr != nil {
		return s.ExecErr
	}
	s.calls = append(s.calls, Call{Domain: domain, Service: service, EntityID: entityID, Data: data})
	return nil
}

// Calls returns the service calls executed so far.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Store) notify(kind registry.ChangeKind) {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners[kind]))
	for _, fn := range s.listeners[kind] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

var (
	_ registry.Registry = (*Store)(nil)
	_ registry.Exposure = (*Store)(nil)
	_ registry.States   = (*Store)(nil)
	_ registry.Executor = (*Store)(nil)
)
