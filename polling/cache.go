// Package polling provides the shared poll-gating, TTL-cache and
// change-detection core used by every external data source. It is pure
// in-memory bookkeeping; fetching is a collaborator's job.
package polling

import (
	"reflect"
	"sync"
	"time"
)

type cachedItem struct {
	value     any
	expiresAt time.Time
}

// Cache bundles the three concerns every poller shares: when it last
// polled, what values it has cached, and what it has seen before.
// All operations are infallible.
type Cache struct {
	mu    sync.Mutex
	now   func() time.Time
	polls map[string]time.Time
	items map[string]cachedItem
	seen  map[string]any
}

func NewCache() *Cache {
	return &Cache{
		now:   time.Now,
		polls: make(map[string]time.Time),
		items: make(map[string]cachedItem),
		seen:  make(map[string]any),
	}
}

// SetClock replaces the time source, for tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// ShouldPoll reports whether the key is due: never polled, or at least
// interval has passed since the last RecordPoll.
func (c *Cache) ShouldPoll(key string, interval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.polls[key]
	if !ok {
		return true
	}
	return c.now().Sub(last) >= interval
}

// RecordPoll stamps the key as polled now.
func (c *Cache) RecordPoll(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls[key] = c.now()
}

// Put caches a value with the given lifetime. A non-positive ttl means
// the value is already expired and will never be returned.
func (c *Cache) Put(key string, v any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cachedItem{value: v, expiresAt: c.now().Add(ttl)}
}

// Get returns the cached value if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return item.value, true
}

// DetectChange compares v against the last value recorded for the key
// using structural equality, then records v. A never-seen key is new,
// not changed.
func (c *Cache) DetectChange(key string, v any) (isNew, isChanged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.seen[key]
	c.seen[key] = v
	if !ok {
		return true, false
	}
	return false, !reflect.DeepEqual(prev, v)
}
