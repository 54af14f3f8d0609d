// Package cache implements the warm set: a byte-budgeted chunk store with
// least-recently-used eviction.
//
// Entries are keyed by chunk id, not model id. Chunk ids are assumed to be
// globally unique across every model fetched into the process, so a chunk
// shared by two models is stored once.
package cache

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// DefaultBudgetBytes is the budget used when New is given a non-positive value.
const DefaultBudgetBytes int64 = 100 * 1024 * 1024

// Entry is one resident chunk. LastAccessed is a strictly increasing logical
// timestamp (unix nanoseconds, bumped when the clock does not advance).
type Entry struct {
	Key          string
	Data         []byte
	LastAccessed int64
	AccessCount  uint64
	SizeBytes    int64
}

// Stats is a point-in-time view of cache accounting.
type Stats struct {
	Entries     int
	UsedBytes   int64
	BudgetBytes int64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
}

// EvictFunc observes evictions. It runs after the cache lock is released.
type EvictFunc func(key string, sizeBytes int64)

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictFunc registers an eviction observer.
func WithEvictFunc(fn EvictFunc) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// SetEvictFunc replaces the eviction observer on a live cache.
func (c *Cache) SetEvictFunc(fn EvictFunc) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Cache is safe for concurrent use. Every mutation updates the byte accounting
// in the same critical section as the map, so UsedBytes always equals the sum
// of resident entry sizes.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	entries map[string]*Entry
	tick    int64

	hits      uint64
	misses    uint64
	evictions uint64

	now     func() time.Time
	onEvict EvictFunc
}

// New returns an empty cache with the given byte budget.
func New(budgetBytes int64, opts ...Option) *Cache {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudgetBytes
	}
	c := &Cache{
		budget:  budgetBytes,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// stamp returns the next logical access time. Caller holds c.mu.
func (c *Cache) stamp() int64 {
	t := c.now().UnixNano()
	if t <= c.tick {
		t = c.tick + 1
	}
	c.tick = t
	return t
}

// Put inserts data under key, evicting the least recently used entries until
// the new entry fits or the cache is empty. A single entry larger than the
// whole budget drains the cache and is still inserted. Re-putting an existing
// key replaces it without counting as an eviction.
func (c *Cache) Put(key string, data []byte) {
	buf := append([]byte(nil), data...)
	size := int64(len(buf))

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.used -= old.SizeBytes
	}
	var evicted []*Entry
	if c.used+size > c.budget {
		evicted = c.evictLocked(size)
	}
	c.entries[key] = &Entry{
		Key:          key,
		Data:         buf,
		LastAccessed: c.stamp(),
		AccessCount:  1,
		SizeBytes:    size,
	}
	c.used += size
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, e := range evicted {
			onEvict(e.Key, e.SizeBytes)
		}
	}
}

// evictLocked removes entries oldest-first until need more bytes fit.
func (c *Cache) evictLocked(need int64) []*Entry {
	order := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		order = append(order, e)
	}
	slices.SortFunc(order, func(a, b *Entry) int {
		return cmp.Compare(a.LastAccessed, b.LastAccessed)
	})
	var out []*Entry
	for _, e := range order {
		if c.used+need <= c.budget {
			break
		}
		delete(c.entries, e.Key)
		c.used -= e.SizeBytes
		c.evictions++
		out = append(out, e)
	}
	return out
}

// Get returns a copy of the bytes under key and marks the entry as used.
// It never evicts.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	e.LastAccessed = c.stamp()
	e.AccessCount++
	return append([]byte(nil), e.Data...), true
}

// Peek returns a copy of the bytes under key without touching LRU state or
// the hit/miss counters.
func (c *Cache) Peek(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), e.Data...), true
}

// Contains reports whether key is resident, without touching it.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	return ok
}

// Remove evicts key explicitly. It reports whether an entry was removed.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.used -= e.SizeBytes
		c.evictions++
	}
	onEvict := c.onEvict
	c.mu.Unlock()
	if ok && onEvict != nil {
		onEvict(e.Key, e.SizeBytes)
	}
	return ok
}

// Keys returns resident keys in unspecified order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

func (c *Cache) Budget() int64 { return c.budget }

// Utilization is the fraction of the byte budget in use. It can exceed 1
// only while a single oversized entry is resident.
func (c *Cache) Utilization() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.used) / float64(c.budget)
}

// HitRate is hits/(hits+misses) over the cache lifetime, 0 with no lookups.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:     len(c.entries),
		UsedBytes:   c.used,
		BudgetBytes: c.budget,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
	}
}

// Snapshot returns deep copies of all entries, oldest first.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		cp := *e
		cp.Data = append([]byte(nil), e.Data...)
		out = append(out, cp)
	}
	slices.SortFunc(out, oldestFirst)
	return out
}

// Restore replaces the cache contents with entries and counters from a
// snapshot. Sizes are recomputed from the data; entries beyond the budget are
// dropped oldest-first as a normal Put would.
func (c *Cache) Restore(entries []Entry, hits, misses uint64) {
	sorted := append([]Entry(nil), entries...)
	slices.SortFunc(sorted, oldestFirst)

	c.mu.Lock()
	c.entries = make(map[string]*Entry, len(sorted))
	c.used = 0
	c.hits, c.misses = hits, misses
	var evicted []*Entry
	for _, e := range sorted {
		size := int64(len(e.Data))
		if old, ok := c.entries[e.Key]; ok {
			delete(c.entries, e.Key)
			c.used -= old.SizeBytes
		}
		if c.used+size > c.budget {
			evicted = append(evicted, c.evictLocked(size)...)
		}
		ts := e.LastAccessed
		if ts <= c.tick {
			ts = c.tick + 1
		}
		c.tick = ts
		count := e.AccessCount
		if count == 0 {
			count = 1
		}
		c.entries[e.Key] = &Entry{
			Key:          e.Key,
			Data:         append([]byte(nil), e.Data...),
			LastAccessed: ts,
			AccessCount:  count,
			SizeBytes:    size,
		}
		c.used += size
	}
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, e := range evicted {
			onEvict(e.Key, e.SizeBytes)
		}
	}
}

func oldestFirst(a, b Entry) int { return cmp.Compare(a.LastAccessed, b.LastAccessed) }

// Info returns touch-free metadata for key; Data is nil.
func (c *Cache) Info(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.Data = nil
	return cp, true
}
