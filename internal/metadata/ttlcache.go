package metadata

import (
	"container/list"
	"sync"
	"time"
)

type ttlEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTLCache is a small concurrency-safe cache with per-entry expiry and
// least-recently-used eviction once the capacity is reached. Expired
// entries are dropped lazily on lookup.
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	ll    *list.List
	items map[K]*list.Element
}

// NewTTLCache builds a cache holding at most max entries for ttl each.
// Non-positive arguments fall back to 24h and 1000 entries.
func NewTTLCache[K comparable, V any](ttl time.Duration, max int) *TTLCache[K, V] {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if max <= 0 {
		max = 1000
	}
	return &TTLCache[K, V]{
		ttl:   ttl,
		max:   max,
		ll:    list.New(),
		items: make(map[K]*list.Element),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*ttlEntry[K, V])
	if time.Now().After(ent.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return ent.value, true
}

// Set stores value under key, refreshing its expiry and evicting the
// least recently used entry when the cache is full.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*ttlEntry[K, V])
		ent.value = value
		ent.expiresAt = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&ttlEntry[K, V]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)})
	c.items[key] = el
	if c.ll.Len() > c.max {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*ttlEntry[K, V]).key)
		}
	}
}

// Len reports the number of entries currently held, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
