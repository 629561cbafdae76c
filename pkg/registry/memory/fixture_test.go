package memory

import (
	"context"
	"testing"
)

const sampleFixture = `
areas:
  - {area_id: kitchen, name: Kitchen}
devices:
  - {device_id: dev1, name: Hue Bulb, name_by_user: Counter Bulb, area_id: kitchen}
entities:
  - {entity_id: light.kitchen, name: Kitchen Light, area_id: kitchen}
  - {entity_id: light.counter, device_id: dev1}
  - {entity_id: switch.hidden, name: Hidden, exposed: false}
states:
  - entity_id: light.counter
    attributes: {friendly_name: Counter}
`

func TestParseFixture(t *testing.T) {
	s, err := ParseFixture([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ctx := context.Background()
	ents, _ := s.Entities(ctx)
	if len(ents) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(ents))
	}
	if ok, _ := s.IsExposed(ctx, "conversation", "light.kitchen"); !ok {
		t.Fatalf("expected light.kitchen exposed by default")
	}
	if ok, _ := s.IsExposed(ctx, "conversation", "switch.hidden"); ok {
		t.Fatalf("expected switch.hidden hidden")
	}
	devs, _ := s.Devices(ctx)
	if len(devs) != 1 || devs[0].DisplayName() != "Counter Bulb" {
		t.Fatalf("expected user device name, got %+v", devs)
	}
	st, ok, _ := s.State(ctx, "light.counter")
	if !ok || st.FriendlyName() != "Counter" {
		t.Fatalf("expected friendly name Counter, got %+v", st)
	}
}

func TestParseFixtureRejectsMissingEntityID(t *testing.T) {
	if _, err := ParseFixture([]byte("entities:\n  - {name: nope}\n")); err == nil {
		t.Fatalf("expected error for entity without id")
	}
}
