package catalog

import "time"

// Item is one exposed, controllable entity with resolved names.
type Item struct {
	EntityID   string `json:"entity_id"`
	Domain     string `json:"domain"`
	Name       string `json:"name"`
	AreaName   string `json:"area_name,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// Snapshot is an immutable, fully built index of exposed entities. Callers
// must treat the slices it returns as read-only.
type Snapshot struct {
	items   []Item
	byID    map[string]Item
	areas   []string
	builtAt time.Time
}

func newSnapshot(items []Item, builtAt time.Time) *Snapshot {
	byID := make(map[string]Item, len(items))
	seen := make(map[string]struct{})
	var areas []string
	for _, it := range items {
		byID[it.EntityID] = it
		if it.AreaName == "" {
			continue
		}
		if _, ok := seen[it.AreaName]; !ok {
			seen[it.AreaName] = struct{}{}
			areas = append(areas, it.AreaName)
		}
	}
	return &Snapshot{items: items, byID: byID, areas: areas, builtAt: builtAt}
}

// NewSnapshot builds a snapshot from a fixed list of items.
func NewSnapshot(items []Item, builtAt time.Time) *Snapshot {
	cp := make([]Item, len(items))
	copy(cp, items)
	return newSnapshot(cp, builtAt)
}

var emptySnapshot = newSnapshot(nil, time.Time{})

// Items returns the catalog items in registry order.
func (s *Snapshot) Items() []Item { return s.items }

// Len returns the number of items.
func (s *Snapshot) Len() int { return len(s.items) }

// Get looks up an item by entity id.
func (s *Snapshot) Get(entityID string) (Item, bool) {
	it, ok := s.byID[entityID]
	return it, ok
}

// Areas returns the distinct resolved area names, in first-seen order.
func (s *Snapshot) Areas() []string { return s.areas }

// BuiltAt is the completion time of the build that produced the snapshot.
// The zero time marks the empty snapshot served before the first build.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }
