// Package cache provides a bounded, expiring in-memory cache used to hold
// raw tile payloads between fetches.
package cache

import (
	"math"
	"sort"
	"sync"
	"time"
)

type item[V any] struct {
	value      V
	expiration int64
}

func (it item[V]) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

// TTLCache is a thread-safe cache with time-based expiration. When it
// holds more than maxItems entries the ones closest to expiry go first.
type TTLCache[K comparable, V any] struct {
	mu              sync.RWMutex
	items           map[K]item[V]
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	maxItems        int
	onEvict         func(K, V)

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTTLCache creates a cache with the given default TTL. A positive
// cleanupInterval starts a janitor that drops expired entries; call
// Stop to end it. maxItems <= 0 means unbounded.
func NewTTLCache[K comparable, V any](defaultTTL, cleanupInterval time.Duration, maxItems int) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		items:           make(map[K]item[V]),
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		maxItems:        maxItems,
		stop:            make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor()
	}
	return c
}

// OnEvict registers fn to be called for every entry removed by expiry,
// capacity or Delete. fn runs without the cache lock held.
func (c *TTLCache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Set adds an item to the cache with the default TTL
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL adds an item to the cache with a specific TTL. ttl <= 0
// never expires.
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiration: expiration}
	var evicted map[K]V
	if c.maxItems > 0 && len(c.items) > c.maxItems {
		evicted = c.evictOldest()
	}
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, evicted)
}

// Get retrieves an item and reports whether it was found and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, found := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !found {
		return zero, false
	}
	if it.expired(time.Now().UnixNano()) {
		c.mu.Lock()
		// Re-check: another writer may have refreshed the entry.
		latest, ok := c.items[key]
		removed := ok && latest.expired(time.Now().UnixNano())
		if removed {
			delete(c.items, key)
		}
		fn := c.onEvict
		c.mu.Unlock()
		if removed && fn != nil {
			fn(key, latest.value)
		}
		return zero, false
	}
	return it.value, true
}

// Delete removes an item from the cache
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	it, ok := c.items[key]
	delete(c.items, key)
	fn := c.onEvict
	c.mu.Unlock()

	if ok && fn != nil {
		fn(key, it.value)
	}
}

// Count returns the number of items in the cache, expired ones included
// until the janitor or a Get removes them.
func (c *TTLCache[K, V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the keys of unexpired items in no particular order.
func (c *TTLCache[K, V]) Keys() []K {
	now := time.Now().UnixNano()
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.items))
	for k, it := range c.items {
		if !it.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clear removes all items from the cache
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	old := c.items
	c.items = make(map[K]item[V])
	fn := c.onEvict
	c.mu.Unlock()

	if fn != nil {
		for k, it := range old {
			fn(k, it.value)
		}
	}
}

// evictOldest removes the entries closest to expiry until the cache is
// back to maxItems. The lock must be held.
func (c *TTLCache[K, V]) evictOldest() map[K]V {
	type keyExpiration struct {
		key        K
		expiration int64
	}

	n := len(c.items) - c.maxItems
	if n <= 0 {
		return nil
	}

	all := make([]keyExpiration, 0, len(c.items))
	for k, v := range c.items {
		exp := v.expiration
		if exp == 0 {
			exp = math.MaxInt64
		}
		all = append(all, keyExpiration{k, exp})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].expiration < all[j].expiration
	})

	evicted := make(map[K]V, n)
	for _, ke := range all[:n] {
		evicted[ke.key] = c.items[ke.key].value
		delete(c.items, ke.key)
	}
	return evicted
}

func (c *TTLCache[K, V]) janitor() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *TTLCache[K, V]) deleteExpired() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	evicted := make(map[K]V)
	for k, v := range c.items {
		if v.expired(now) {
			evicted[k] = v.value
			delete(c.items, k)
		}
	}
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, evicted)
}

// Stop ends the janitor. It is safe to call more than once.
func (c *TTLCache[K, V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func notify[K comparable, V any](fn func(K, V), evicted map[K]V) {
	if fn == nil {
		return
	}
	for k, v := range evicted {
		fn(k, v)
	}
}
