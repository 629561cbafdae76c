package memory

import (
	"fmt"
	"os"

	"github.com/harunnryd/fallback/pkg/registry"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML layout accepted by LoadFixture.
//
//	assistant: conversation
//	areas:
//	  - {area_id: kitchen, name: Kitchen}
//	entities:
//	  - {entity_id: light.kitchen, name: Kitchen Light, area_id: kitchen}
type Fixture struct {
	Assistant string            `yaml:"assistant"`
	Areas     []registry.Area   `yaml:"areas"`
	Devices   []registry.Device `yaml:"devices"`
	Entities  []FixtureEntity   `yaml:"entities"`
	States    []registry.State  `yaml:"states"`
}

// FixtureEntity is an entity plus its exposure flag. Entities are exposed
// unless exposed is explicitly false.
type FixtureEntity struct {
	registry.Entity `yaml:",inline"`
	Exposed         *bool `yaml:"exposed"`
}

// LoadFixture reads a YAML fixture file into a new store.
func LoadFixture(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(raw)
}

// ParseFixture decodes YAML fixture bytes into a new store.
func ParseFixture(raw []byte) (*Store, error) {
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	assistant := fx.Assistant
	if assistant == "" {
		assistant = "conversation"
	}
	s := New()
	for _, a := range fx.Areas {
		s.AddArea(a)
	}
	for _, d := range fx.Devices {
		s.AddDevice(d)
	}
	for _, e := range fx.Entities {
		if e.EntityID == "" {
			return nil, fmt.Errorf("fixture entity without entity_id")
		}
		s.AddEntity(e.Entity)
		s.Expose(assistant, e.EntityID, e.Exposed == nil || *e.Exposed)
	}
	for _, st := range fx.States {
		s.SetState(st)
	}
	return s, nil
}
