// Package cache provides the TTL- and capacity-bounded stores that
// short-circuit repeated identical AI requests. Each data category gets
// its own independently configured instance.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/folioworks/vitae/internal/telemetry"
)

type item struct {
	data      any
	writtenAt time.Time
	ttl       time.Duration
}

// expired reports logical validity: an entry past its TTL is absent
// even before the sweep physically removes it.
func (it *item) expired(now time.Time) bool {
	return now.Sub(it.writtenAt) >= it.ttl
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Cache is one TTL+capacity bounded store. The sweep goroutine started
// by New owns expiry; Stop must be called on shutdown.
type Cache struct {
	name       string
	maxSize    int
	defaultTTL time.Duration

	mu     sync.Mutex
	items  map[string]*item
	hits   int64
	misses int64

	metrics *telemetry.Metrics
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// New creates a cache and starts its background sweep.
func New(name string, maxSize int, defaultTTL, cleanupInterval time.Duration, metrics *telemetry.Metrics) *Cache {
	c := &Cache{
		name:       name,
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*item),
		metrics:    metrics,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.sweepLoop(cleanupInterval)
	return c
}

// Get returns the cached value for key, or ok=false. Reading a
// logically expired entry deletes it, even between sweeps.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if ok && it.expired(c.now()) {
		delete(c.items, key)
		ok = false
	}
	if !ok {
		c.misses++
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(c.name)
		}
		return nil, false
	}
	c.hits++
	if c.metrics != nil {
		c.metrics.RecordCacheHit(c.name)
	}
	return it.data, true
}

// Set stores data under key. A non-positive ttl uses the instance
// default. Inserting past maxSize evicts the oldest-written entries
// immediately so bursts between sweeps stay bounded.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &item{data: data, writtenAt: c.now(), ttl: ttl}
	if len(c.items) > c.maxSize {
		c.evictOldest(len(c.items) - c.maxSize)
	}
}

// Has reports whether key holds a logically valid entry, without
// counting a hit or a miss.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	return ok && !it.expired(c.now())
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
}

// Len returns the physical entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.items), Hits: c.hits, Misses: c.misses}
}

// Stop halts the background sweep.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep removes expired entries, then evicts oldest-written entries if
// the store is still over capacity.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
		}
	}
	if len(c.items) > c.maxSize {
		c.evictOldest(len(c.items) - c.maxSize)
	}
}

// evictOldest removes n entries in writtenAt order. Approximate
// LRU-by-insertion-time, not LRU-by-access. Caller holds c.mu.
func (c *Cache) evictOldest(n int) {
	type aged struct {
		key       string
		writtenAt time.Time
	}
	all := make([]aged, 0, len(c.items))
	for key, it := range c.items {
		all = append(all, aged{key, it.writtenAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].writtenAt.Before(all[j].writtenAt) })
	for i := 0; i < n && i < len(all); i++ {
		delete(c.items, all[i].key)
	}
}
