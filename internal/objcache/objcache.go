// Package objcache is a category-partitioned TTL cache for catalog metadata.
//
// Each category (constraints, indexes, routines, types) has its own fixed
// TTL. Entries are expired lazily on read, never evicted eagerly; unbounded
// growth is an accepted tradeoff because the key space is the entity
// universe, which is bounded by the schema. Payloads are stored as JSON so
// the whole cache can be persisted and restored alongside the schema index.
package objcache

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CategoryStats holds monotonically incrementing hit/miss counters for one
// category. Counters reset only on process restart.
type CategoryStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Snapshot is the serializable state of the cache, used by schema index
// persistence so a restart resumes warm.
type Snapshot struct {
	Entries map[string]map[string]entry `json:"entries"`
	Stats   map[string]CategoryStats    `json:"stats"`
}

// Cache is a TTL-keyed cache partitioned into fixed categories. Safe for
// concurrent use.
type Cache struct {
	ttls  map[string]time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]map[string]entry
	stats   map[string]*counters
}

// New creates a Cache with the given per-category TTLs. The category set is
// fixed at construction. clock may be nil, defaulting to time.Now.
func New(ttls map[string]time.Duration, clock func() time.Time) *Cache {
	if clock == nil {
		clock = time.Now
	}
	entries := make(map[string]map[string]entry, len(ttls))
	stats := make(map[string]*counters, len(ttls))
	ttlCopy := make(map[string]time.Duration, len(ttls))
	for category, ttl := range ttls {
		entries[category] = make(map[string]entry)
		stats[category] = &counters{}
		ttlCopy[category] = ttl
	}
	return &Cache{ttls: ttlCopy, clock: clock, entries: entries, stats: stats}
}

// Put stores a payload under (category, key), stamped with the current time.
// The payload must be JSON-serializable.
func (c *Cache) Put(category, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize cache payload: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.entries[category]
	if !ok {
		return fmt.Errorf("unknown cache category: %s", category)
	}
	bucket[key] = entry{Payload: raw, Timestamp: c.clock()}
	return nil
}

// Get loads a still-valid payload into dest and reports whether one was
// found. An expired entry is treated as absent (and counted as a miss) but
// not deleted.
func (c *Cache) Get(category, key string, dest any) bool {
	c.mu.Lock()
	e, ok := c.lookupLocked(category, key)
	c.mu.Unlock()

	stats := c.stats[category]
	if !ok {
		if stats != nil {
			stats.misses.Add(1)
		}
		return false
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		stats.misses.Add(1)
		return false
	}
	stats.hits.Add(1)
	return true
}

// IsValid reports whether (category, key) holds an unexpired entry.
func (c *Cache) IsValid(category, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(category, key)
	return ok
}

func (c *Cache) lookupLocked(category, key string) (entry, bool) {
	bucket, ok := c.entries[category]
	if !ok {
		return entry{}, false
	}
	e, ok := bucket[key]
	if !ok {
		return entry{}, false
	}
	if c.clock().Sub(e.Timestamp) >= c.ttls[category] {
		return entry{}, false
	}
	return e, true
}

// Stats returns per-category hit/miss counters and current sizes.
func (c *Cache) Stats() map[string]CategoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CategoryStats, len(c.stats))
	for category, s := range c.stats {
		out[category] = CategoryStats{
			Hits:   s.hits.Load(),
			Misses: s.misses.Load(),
			Size:   len(c.entries[category]),
		}
	}
	return out
}

// Snapshot returns a serializable copy of the cache contents and counters.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := &Snapshot{
		Entries: make(map[string]map[string]entry, len(c.entries)),
		Stats:   make(map[string]CategoryStats, len(c.stats)),
	}
	for category, bucket := range c.entries {
		copied := make(map[string]entry, len(bucket))
		for k, e := range bucket {
			copied[k] = e
		}
		snap.Entries[category] = copied
	}
	for category, s := range c.stats {
		snap.Stats[category] = CategoryStats{
			Hits:   s.hits.Load(),
			Misses: s.misses.Load(),
			Size:   len(c.entries[category]),
		}
	}
	return snap
}

// Restore replaces the cache contents and counters from a snapshot. Entries
// for categories unknown to this cache are dropped; their TTLs would be
// undefined.
func (c *Cache) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for category := range c.entries {
		bucket := make(map[string]entry)
		for k, e := range snap.Entries[category] {
			bucket[k] = e
		}
		c.entries[category] = bucket
		if s, ok := snap.Stats[category]; ok {
			c.stats[category].hits.Store(s.Hits)
			c.stats[category].misses.Store(s.Misses)
		}
	}
}
