// SPDX-License-Identifier: MIT

// Package cache provides the memoization substrate shared by all pipeline
// stages: a bounded LRU with optional TTL, an optional Redis-backed store,
// and deterministic cache-key derivation.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"vidpipe/internal/metrics"
	"vidpipe/internal/vperrors"
)

// ErrInvalidCapacity is returned when a cache is constructed with a
// non-positive capacity.
var ErrInvalidCapacity = fmt.Errorf("%w: cache capacity must be greater than 0", vperrors.ErrProcessing)

// Store is the narrow cache surface stage workers consume. All artifact
// values are strings (file paths, transcripts, summaries).
type Store interface {
	// Get retrieves a value. The second return is false if the key is
	// absent or expired.
	Get(key string) (string, bool)
	// Set stores a value, evicting as needed.
	Set(key, value string)
	// Delete removes a key, reporting whether it was present.
	Delete(key string) bool
	// Clear drops all entries and resets statistics.
	Clear()
	// Len returns the current number of entries.
	Len() int
	// Contains reports key presence without affecting recency or stats.
	Contains(key string) bool
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Total   int64   `json:"total_requests"`
}

// entry is a cached value with its insertion timestamp.
type entry struct {
	key      string
	value    string
	storedAt time.Time
}

// LRU is a bounded least-recently-used cache with optional TTL.
//
// All operations are atomic under a single mutex and never block on I/O
// while holding it. Expiration is lazy: an expired entry is removed when a
// Get observes it.
type LRU struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration // 0 means entries never expire
	order   *list.List    // front = most recent
	items   map[string]*list.Element
	hits    int64
	misses  int64
	now     func() time.Time
}

// NewLRU creates a bounded LRU cache. A ttl of 0 disables expiration.
// Returns ErrInvalidCapacity when maxSize is not positive.
func NewLRU(maxSize int, ttl time.Duration) (*LRU, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &LRU{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}, nil
}

// expired reports whether an entry stored at t is past its TTL.
func (c *LRU) expired(storedAt time.Time) bool {
	if c.ttl == 0 {
		return false
	}
	return c.now().Sub(storedAt) > c.ttl
}

// Get retrieves a value and promotes the entry to most-recent on a hit.
// An expired entry is evicted and counted as a miss.
func (c *LRU) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		metrics.IncCacheMiss()
		return "", false
	}
	ent := elem.Value.(*entry)
	if c.expired(ent.storedAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		metrics.IncCacheMiss()
		metrics.IncCacheEviction("expired")
		metrics.CacheSize.Set(float64(c.order.Len()))
		return "", false
	}
	c.order.MoveToFront(elem)
	c.hits++
	metrics.IncCacheHit()
	return ent.value, true
}

// Set stores a value as most-recent. A pre-existing entry for the key is
// replaced; when the cache is at capacity the least-recent entry is
// evicted. Capacity-driven eviction is the only removal Set performs.
func (c *LRU) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
			metrics.IncCacheEviction("capacity")
		}
	}
	elem := c.order.PushFront(&entry{key: key, value: value, storedAt: c.now()})
	c.items[key] = elem
	metrics.CacheSize.Set(float64(c.order.Len()))
}

// Delete removes a key, reporting whether it was present.
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	metrics.CacheSize.Set(float64(c.order.Len()))
	return true
}

// Clear drops all entries and resets the hit/miss counters.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
	metrics.CacheSize.Set(0)
}

// Len returns the current number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Contains reports key presence without touching recency or stats.
func (c *LRU) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Stats returns a snapshot of the cache counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Size:    c.order.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
		Total:   total,
	}
}
