// Package registry defines the host-platform collaborators the catalog and
// orchestrator depend on: entity, device and area registries, the exposure
// policy, live state lookup and action execution.
package registry

import (
	"context"
	"strings"
)

// Entity is one entity registry entry.
type Entity struct {
	EntityID string `yaml:"entity_id" json:"entity_id"`
	Name     string `yaml:"name" json:"name"`
	AreaID   string `yaml:"area_id" json:"area_id"`
	DeviceID string `yaml:"device_id" json:"device_id"`
}

// Domain returns the part of the entity id before the first dot.
func (e Entity) Domain() string {
	return Domain(e.EntityID)
}

// Device is one device registry entry.
type Device struct {
	DeviceID   string `yaml:"device_id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	NameByUser string `yaml:"name_by_user" json:"name_by_user"`
	AreaID     string `yaml:"area_id" json:"area_id"`
}

// DisplayName prefers the user-assigned name over the manufacturer default.
func (d Device) DisplayName() string {
	if strings.TrimSpace(d.NameByUser) != "" {
		return d.NameByUser
	}
	return d.Name
}

// Area is one area registry entry.
type Area struct {
	AreaID string `yaml:"area_id" json:"area_id"`
	Name   string `yaml:"name" json:"name"`
}

// State is the live state of an entity. Only attributes are consulted.
type State struct {
	EntityID   string         `yaml:"entity_id" json:"entity_id"`
	State      string         `yaml:"state" json:"state"`
	Attributes map[string]any `yaml:"attributes" json:"attributes"`
}

// FriendlyName returns the friendly_name attribute, if it is a non-empty string.
func (s State) FriendlyName() string {
	if s.Attributes == nil {
		return ""
	}
	name, _ := s.Attributes["friendly_name"].(string)
	return strings.TrimSpace(name)
}

// ChangeKind identifies which registry emitted a change notification.
type ChangeKind string

const (
	ChangeEntity ChangeKind = "entity"
	ChangeDevice ChangeKind = "device"
	ChangeArea   ChangeKind = "area"
)

// Unsubscribe detaches a previously registered listener. It must be safe to
// call more than once.
type Unsubscribe func()

// Registry lists entities, devices and areas and reports when any of them
// change.
type Registry interface {
	Entities(ctx context.Context) ([]Entity, error)
	Devices(ctx context.Context) ([]Device, error)
	Areas(ctx context.Context) ([]Area, error)
	OnChange(kind ChangeKind, fn func()) Unsubscribe
}

// Exposure answers whether an entity is exposed to a given assistant.
type Exposure interface {
	IsExposed(ctx context.Context, assistant, entityID string) (bool, error)
	OnExposureChange(assistant string, fn func(entityID string)) Unsubscribe
}

// States looks up live entity state.
type States interface {
	State(ctx context.Context, entityID string) (State, bool, error)
}

// Executor performs a service call against a single entity and blocks until
// the host acknowledges it.
type Executor interface {
	Execute(ctx context.Context, domain, service, entityID string, data map[string]any) error
}

// Domain returns the domain part of an entity id of the form domain.object_id.
func Domain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return entityID
}
