package cobranzas

import (
	"sync"
)

// ViewName tags one of the five derived views for cache invalidation.
type ViewName string

const (
	ViewClientSummary ViewName = "client_summary"
	ViewAnalystRollup ViewName = "analyst_rollup"
	ViewPeriodRollup  ViewName = "period_rollup"
	ViewBucketRollup  ViewName = "bucket_rollup"
	ViewResumen       ViewName = "resumen"
)

// AllViews lists every view tag, for mutations that touch amounts.
var AllViews = []ViewName{
	ViewClientSummary, ViewAnalystRollup, ViewPeriodRollup, ViewBucketRollup, ViewResumen,
}

type cacheEntry struct {
	view  ViewName
	value any
}

// ViewCache holds already-computed view rows keyed by view name plus
// filter signature. Mutations drop entries by view tag; a dropped view
// is recomputed on the next read. Thread-safe.
type ViewCache struct {
	entries map[string]cacheEntry
	mu      sync.RWMutex
}

// NewViewCache creates an empty view cache.
func NewViewCache() *ViewCache {
	return &ViewCache{entries: make(map[string]cacheEntry)}
}

func cacheKey(view ViewName, signature string) string {
	return string(view) + "|" + signature
}

// Get retrieves a cached view value for a filter signature.
func (c *ViewCache) Get(view ViewName, signature string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(view, signature)]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// Put stores a view value under a filter signature.
func (c *ViewCache) Put(view ViewName, signature string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(view, signature)] = cacheEntry{view: view, value: value}
}

// Invalidate drops every cached entry of the given views, across all
// filter signatures. Views not named keep their entries.
func (c *ViewCache) Invalidate(views ...ViewName) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		for _, v := range views {
			if entry.view == v {
				delete(c.entries, key)
				break
			}
		}
	}
}

// Len reports the number of live entries.
func (c *ViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
