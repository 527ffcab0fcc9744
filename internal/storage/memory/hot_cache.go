package memory

import (
	"sync"
	"time"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/storage"
)

// DefaultHotTTL is the freshness window of hot cache entries.
const DefaultHotTTL = 5 * time.Minute

type hotEntry struct {
	events    []domain.Event
	tags      []string
	expiresAt int64
}

// HotCache is a TTL cache of query results keyed by query signature.
// Writes are serialized; the last writer wins.
type HotCache struct {
	mu      sync.RWMutex
	ttl     int64
	now     clock.Clock
	entries map[string]hotEntry
}

// NewHotCache creates a hot cache. A zero ttl uses DefaultHotTTL and a nil
// clock uses the system clock.
func NewHotCache(ttl time.Duration, now clock.Clock) *HotCache {
	if ttl <= 0 {
		ttl = DefaultHotTTL
	}
	if now == nil {
		now = clock.System
	}
	return &HotCache{
		ttl:     ttl.Milliseconds(),
		now:     now,
		entries: make(map[string]hotEntry),
	}
}

// Get returns a fresh entry. Callers receive a copy.
func (c *HotCache) Get(key string) ([]domain.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now() >= e.expiresAt {
		return nil, false
	}
	return copyEvents(e.events), true
}

// Set stores an entry tagged for invalidation.
func (c *HotCache) Set(key string, events []domain.Event, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = hotEntry{
		events:    copyEvents(events),
		tags:      append([]string(nil), tags...),
		expiresAt: c.now() + c.ttl,
	}
}

// InvalidateTag removes every entry carrying tag.
func (c *HotCache) InvalidateTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		for _, t := range e.tags {
			if t == tag {
				delete(c.entries, key)
				n++
				break
			}
		}
	}
	return n
}

// Purge removes expired entries.
func (c *HotCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if now >= e.expiresAt {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries.
func (c *HotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyEvents(events []domain.Event) []domain.Event {
	if events == nil {
		return nil
	}
	out := make([]domain.Event, len(events))
	copy(out, events)
	return out
}

// Verify interface compliance at compile time.
var _ storage.HotCache = (*HotCache)(nil)
