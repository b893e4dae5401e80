package extractcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestCache_CapacityEvictsOldestInserted(t *testing.T) {
	var evicted []string
	c := New[string, string](Config[string]{
		Capacity: 3,
		TTL:      time.Hour,
		OnEvict: func(key string, reason EvictReason) {
			assert.Equal(t, EvictCapacity, reason)
			evicted = append(evicted, key)
		},
	})
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("req-%d", i), "text")
	}

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"req-2", "req-3", "req-4"}, c.Keys())
	assert.Equal(t, []string{"req-0", "req-1"}, evicted)

	_, ok := c.Get("req-0")
	assert.False(t, ok)
	v, ok := c.Get("req-4")
	assert.True(t, ok)
	assert.Equal(t, "text", v)
}

func TestCache_OverwriteKeepsInsertionPosition(t *testing.T) {
	c := New[string, int](Config[string]{Capacity: 2, TTL: time.Hour})
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // update, a is still the oldest
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestCache_TTL(t *testing.T) {
	clock := newClock()
	var expired []string
	c := New[string, string](Config[string]{
		Capacity: 10,
		TTL:      time.Minute,
		Now:      clock.Now,
		OnEvict: func(key string, reason EvictReason) {
			assert.Equal(t, EvictExpired, reason)
			expired = append(expired, key)
		},
	})
	defer c.Close()

	c.Set("old", "x")
	clock.Advance(30 * time.Second)
	c.Set("new", "y")

	_, ok := c.Get("old")
	assert.True(t, ok)

	clock.Advance(31 * time.Second)
	_, ok = c.Get("old")
	assert.False(t, ok, "expired entries are invisible before the sweep")
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, []string{"old"}, expired)
	assert.Equal(t, []string{"new"}, c.Keys())
}

func TestCache_OverwriteRefreshesTTL(t *testing.T) {
	clock := newClock()
	c := New[string, string](Config[string]{Capacity: 10, TTL: time.Minute, Now: clock.Now})
	defer c.Close()

	c.Set("k", "v1")
	clock.Advance(50 * time.Second)
	c.Set("k", "v2")
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := New[string, string](Config[string]{
		Capacity:      10,
		TTL:           10 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})
	defer c.Close()

	c.Set("a", "x")
	c.Set("b", "y")

	require.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestCache_Delete(t *testing.T) {
	evictions := 0
	c := New[string, string](Config[string]{
		Capacity: 2,
		OnEvict:  func(string, EvictReason) { evictions++ },
	})
	defer c.Close()

	c.Set("a", "x")
	c.Delete("a")
	c.Delete("missing")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, evictions)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[string, int](Config[string]{Capacity: 50, TTL: time.Minute, SweepInterval: time.Millisecond})
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				c.Set(key, i)
				c.Get(key)
				if i%3 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New[string, string](Config[string]{SweepInterval: time.Millisecond})
	c.Close()
	c.Close()

	noSweep := New[string, string](Config[string]{})
	noSweep.Close()
}
