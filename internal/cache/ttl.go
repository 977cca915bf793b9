package cache

import (
	"container/list"
	"sync"
	"time"
)

// Bounded TTL cache with LRU eviction on overflow.
// Expired entries are not removed on read, they stay until PurgeExpired or
// LRU pressure: price lookups want the stale value as fallback.
type TTLCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	ll    *list.List // front = most recently used
	items map[string]*list.Element
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

func NewTTL(ttl time.Duration, max int) *TTLCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if max <= 0 {
		max = 1024
	}

	return &TTLCache{
		ttl:   ttl,
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element, max),
	}
}

// Get return value only if still fresh
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}

	e := el.Value.(*entry)
	if time.Since(e.storedAt) > c.ttl {
		return nil, false
	}

	c.ll.MoveToFront(el)
	return e.value, true
}

// GetStale return value regardless of age + when it was stored
func (c *TTLCache) GetStale(key string) (any, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, time.Time{}, false
	}

	e := el.Value.(*entry)
	c.ll.MoveToFront(el)
	return e.value, e.storedAt, true
}

func (c *TTLCache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = v
		e.storedAt = time.Now()
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: key, value: v, storedAt: time.Now()})
	c.items[key] = el

	// overflow -> drop least recently used
	for c.ll.Len() > c.max {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Drop all entries older than TTL; run from housekeeping sweep
func (c *TTLCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if time.Since(e.storedAt) > c.ttl {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *TTLCache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
}
