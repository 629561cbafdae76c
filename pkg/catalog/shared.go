package catalog

import (
	"context"
	"sync"
)

// Shared is a process-wide catalog that is built and started on first use.
// A failed initial build is logged and the started instance is kept; reads
// retry the build while the snapshot is empty.
type Shared struct {
	opts Options
	once sync.Once
	c    *Catalog
}

func NewShared(opts Options) *Shared {
	return &Shared{opts: opts}
}

// Get returns the started catalog.
func (s *Shared) Get(ctx context.Context) *Catalog {
	s.once.Do(func() {
		c := New(s.opts)
		if err := c.Start(ctx); err != nil {
			c.log.Warn("catalog_initial_build_failed", "error", err)
		}
		s.c = c
	})
	return s.c
}

func (s *Shared) Items(ctx context.Context) []Item {
	c := s.Get(ctx)
	if c == nil {
		return nil
	}
	return c.Items(ctx)
}

// Stop stops the catalog if it was started. Once stopped the Shared never
// starts a catalog and Get returns nil.
func (s *Shared) Stop() {
	s.once.Do(func() {})
	if s.c != nil {
		s.c.Stop()
	}
}
