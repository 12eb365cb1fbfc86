package specialize

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// BuildFunc builds the schema of a document.
type BuildFunc func(ctx context.Context, id string) (*Schema, error)

// Cache holds built schemas by document id. Entries are created on first
// use and kept for the life of the cache. Concurrent misses for one id share
// a single build; a failed build is not stored.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*Schema
	sf    singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]*Schema)}
}

// Get returns the schema of id, building it with build on a miss. cached
// reports whether the schema was already stored.
//
// The build runs detached from the cancellation of ctx, so callers sharing
// it do not fail when the one that started it goes away; each caller still
// returns as soon as its own ctx is done. Bounding the build is up to build.
func (c *Cache) Get(ctx context.Context, id string, build BuildFunc) (schema *Schema, cached bool, err error) {
	if s, ok := c.lookup(id); ok {
		return s, true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	bctx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(id, func() (any, error) {
		// Another flight may have stored it since the lookup above.
		if s, ok := c.lookup(id); ok {
			return s, nil
		}
		s, err := build(bctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[id] = s
		c.mu.Unlock()
		return s, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Schema), false, nil
	}
}

func (c *Cache) lookup(id string) (*Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[id]
	return s, ok
}

// Len returns the number of stored schemas.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// IDs returns the stored document ids, sorted.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
