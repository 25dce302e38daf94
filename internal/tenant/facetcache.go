package tenant

import (
	"sync"
	"time"

	"github.com/flapjack/flapjack/internal/model"
)

const facetCacheTTL = 5 * time.Second

type facetCacheEntry struct {
	counts    model.FacetCounts
	expiresAt time.Time
}

// facetCache is a bounded, TTL'd cache of facet distributions keyed on
// (filter, facet-set) per spec §4.7 step 5 — short-lived so successive
// typeahead keystrokes reuse the same distribution, with arbitrary-victim
// eviction on insert when full (spec §5's "Facet cache" paragraph; Go map
// iteration order is itself randomized per run, which is what supplies the
// "arbitrary" victim without extra bookkeeping).
type facetCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]facetCacheEntry
}

func newFacetCache(capacity int) *facetCache {
	if capacity <= 0 {
		capacity = 2048
	}
	return &facetCache{capacity: capacity, entries: make(map[string]facetCacheEntry)}
}

func (c *facetCache) Get(key string) (model.FacetCounts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.counts, true
}

func (c *facetCache) Put(key string, counts model.FacetCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		for victim := range c.entries {
			delete(c.entries, victim)
			break
		}
	}
	c.entries[key] = facetCacheEntry{counts: counts, expiresAt: time.Now().Add(facetCacheTTL)}
}

// Invalidate drops every cached entry, called after any commit that could
// change facet distributions (spec §4.3 step j).
func (c *facetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]facetCacheEntry)
}
