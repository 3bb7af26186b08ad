package cache

import (
	"sync"

	"github.com/huiputin/routemap/pkg/core"
)

// MarkerCache holds the latest marker snapshot, keyed by marker ID.
// Replace swaps the whole snapshot; readers always see one complete snapshot.
type MarkerCache struct {
	mu      sync.RWMutex
	markers map[string]core.Marker
	order   []string
}

// NewMarkerCache creates a new MarkerCache
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{
		markers: make(map[string]core.Marker),
	}
}

// Get retrieves a marker by ID
func (c *MarkerCache) Get(id string) (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[id]
	return m, ok
}

// Replace stores markers as the current snapshot. Later duplicates of an ID win.
func (c *MarkerCache) Replace(markers []core.Marker) {
	next := make(map[string]core.Marker, len(markers))
	order := make([]string, 0, len(markers))
	for _, m := range markers {
		if _, dup := next[m.ID]; !dup {
			order = append(order, m.ID)
		}
		next[m.ID] = m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = next
	c.order = order
}

// All returns a copy of the snapshot in the order it was delivered.
func (c *MarkerCache) All() []core.Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Marker, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.markers[id])
	}
	return out
}

// IDs returns the set of marker IDs in the snapshot.
func (c *MarkerCache) IDs() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make(map[string]struct{}, len(c.markers))
	for id := range c.markers {
		ids[id] = struct{}{}
	}
	return ids
}

// Len returns the number of markers in the snapshot.
func (c *MarkerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// Reset clears all markers from the cache
func (c *MarkerCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = make(map[string]core.Marker)
	c.order = nil
}
