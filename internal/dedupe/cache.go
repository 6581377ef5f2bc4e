// Package dedupe remembers recently indexed event IDs so redelivered Kafka
// messages are not indexed twice.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key  string
	seen time.Time
}

// Cache is a set of keys bounded by capacity and age. The oldest key is
// evicted first.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSeen reports whether key was marked within the ttl. It does not mark it.
func (c *Cache) IsSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	return c.now().Sub(el.Value.(*entry).seen) <= c.ttl
}

// MarkSeen records key, refreshing its age if already present.
func (c *Cache) MarkSeen(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).seen = now
		c.order.MoveToBack(el)
	} else {
		c.items[key] = c.order.PushBack(&entry{key: key, seen: now})
	}
	c.evict(now)
}

// Len returns the number of remembered keys, expired ones included until the
// next MarkSeen.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) evict(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*entry)
		if len(c.items) <= c.capacity && !e.seen.Before(cutoff) {
			return
		}
		c.order.Remove(front)
		delete(c.items, e.key)
	}
}
