// Package extractcache holds short-lived per-request text keyed by request id
package extractcache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity      = 1000
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

type EvictReason string

const (
	EvictCapacity EvictReason = "capacity"
	EvictExpired  EvictReason = "expired"
)

type Config[K comparable] struct {
	// OnEvict is called outside the lock for capacity and TTL evictions, not for Delete
	OnEvict       func(key K, reason EvictReason)
	Now           func() time.Time
	Capacity      int
	TTL           time.Duration
	SweepInterval time.Duration
}

type entry[K comparable, V any] struct {
	storedAt time.Time
	value    V
	key      K
}

// Cache is bounded by capacity (oldest inserted goes first) and by TTL. Overwriting a key
// refreshes its value and timestamp but keeps its insertion position.
type Cache[K comparable, V any] struct {
	items    map[K]*list.Element
	order    *list.List
	onEvict  func(key K, reason EvictReason)
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	once     sync.Once
}

// New starts the background sweep when SweepInterval is positive; call Close to stop it
func New[K comparable, V any](cfg Config[K]) *Cache[K, V] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Cache[K, V]{
		items:    make(map[K]*list.Element, cfg.Capacity),
		order:    list.New(),
		onEvict:  cfg.OnEvict,
		now:      cfg.Now,
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	} else {
		close(c.done)
	}
	return c
}

func (c *Cache[K, V]) Set(key K, value V) {
	var evicted []K

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.storedAt = c.now()
		c.mu.Unlock()
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		e := oldest.Value.(*entry[K, V])
		c.order.Remove(oldest)
		delete(c.items, e.key)
		evicted = append(evicted, e.key)
	}
	c.items[key] = c.order.PushBack(&entry[K, V]{key: key, value: value, storedAt: c.now()})
	c.mu.Unlock()

	c.notify(evicted, EvictCapacity)
}

// Get treats an expired entry as absent even if the sweep has not reached it yet
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.now().Sub(e.storedAt) >= c.ttl {
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys in insertion order, oldest first
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Sweep removes every TTL-expired entry and returns how many went
func (c *Cache[K, V]) Sweep() int {
	var expired []K
	now := c.now()

	c.mu.Lock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[K, V])
		if now.Sub(e.storedAt) >= c.ttl {
			c.order.Remove(el)
			delete(c.items, e.key)
			expired = append(expired, e.key)
		}
		el = next
	}
	c.mu.Unlock()

	c.notify(expired, EvictExpired)
	return len(expired)
}

func (c *Cache[K, V]) sweepLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[K, V]) notify(keys []K, reason EvictReason) {
	if c.onEvict == nil {
		return
	}
	for _, k := range keys {
		c.onEvict(k, reason)
	}
}

// Close stops the sweep goroutine; the cache stays usable
func (c *Cache[K, V]) Close() {
	c.once.Do(func() {
		close(c.stop)
	})
	<-c.done
}
