package runtime

import (
	"sync"

	"github.com/justapithecus/canvass/types"
)

// CacheEntry is a completed analysis outcome together with the frame
// snapshot that produced it.
type CacheEntry struct {
	Identifier uint32
	// Frames is the snapshot the committed job analyzed.
	Frames []types.Frame
	Outcome types.Outcome
}

// ResultCache maps identifiers to their most recent committed outcome.
// Entries are only ever written by the completion-relay path and are never
// evicted; a changed frame snapshot flags an entry as stale without
// invalidating it.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[uint32]*CacheEntry
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{entries: make(map[uint32]*CacheEntry)}
}

// Get returns the cached entry for an identifier, or nil.
func (c *ResultCache) Get(identifier uint32) *CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[identifier]
}

// Put replaces any prior entry for the identifier.
func (c *ResultCache) Put(identifier uint32, frames []types.Frame, outcome types.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identifier] = &CacheEntry{
		Identifier: identifier,
		Frames:     types.CloneFrames(frames),
		Outcome:    outcome,
	}
}

// IsStale reports whether the cached entry for an identifier was produced
// from a different frame snapshot than current. Missing entries are not
// stale.
func (c *ResultCache) IsStale(identifier uint32, current []types.Frame) bool {
	entry := c.Get(identifier)
	if entry == nil {
		return false
	}
	return !types.FramesEqual(entry.Frames, current)
}

// Len returns the number of cached identifiers.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
