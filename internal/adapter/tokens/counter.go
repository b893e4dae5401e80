package tokens

import (
	"context"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/thushan/llamatap/internal/logger"
)

const (
	DefaultEncoderCacheSize = 16
	DefaultMaxConcurrent    = 8
)

// unavailable is cached for models without an encoder so the factory is not retried per request
type unavailable struct{}

type Config struct {
	Factory       EncoderFactory
	OnEvict       func(model string)
	CacheSize     int
	MaxConcurrent int64
}

// Counter counts tokens with an LRU of per-model encoders
type Counter struct {
	factory       EncoderFactory
	onEvict       func(model string)
	cache         *lru.Cache
	sem           *semaphore.Weighted
	logger        *logger.StyledLogger
	group         singleflight.Group
	wg            sync.WaitGroup
	mu            sync.Mutex
	constructions atomic.Int64
	evictions     atomic.Int64
}

func NewCounter(cfg Config, log *logger.StyledLogger) *Counter {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultEncoderCacheSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Factory == nil {
		cfg.Factory = TiktokenFactory("")
	}

	c := &Counter{
		factory: cfg.Factory,
		onEvict: cfg.OnEvict,
		cache:   lru.New(cfg.CacheSize),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  log,
	}
	c.cache.OnEvicted = func(key lru.Key, _ interface{}) {
		c.evictions.Add(1)
		c.logger.Debug("Evicted encoder", "model", key)
		if c.onEvict != nil {
			if model, ok := key.(string); ok {
				c.onEvict(model)
			}
		}
	}
	return c
}

// Count never fails: without an encoder it degrades to the rune count of text
func (c *Counter) Count(text, model string) int {
	if text == "" {
		return 0
	}

	enc := c.encoderFor(model)
	if enc == nil {
		return utf8.RuneCountInString(text)
	}

	n, err := enc.Count(text)
	if err != nil {
		c.logger.Warn("Token encoding failed, using character count", "model", model, "error", err)
		return utf8.RuneCountInString(text)
	}
	return n
}

// CountAsync always runs on its own goroutine, never on the caller's
func (c *Counter) CountAsync(text, model string, done func(int)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		n := c.Count(text, model)
		c.sem.Release(1)

		if done != nil {
			done(n)
		}
	}()
}

// Wait blocks until every scheduled CountAsync has finished
func (c *Counter) Wait() {
	c.wg.Wait()
}

func (c *Counter) encoderFor(model string) Encoder {
	c.mu.Lock()
	cached, ok := c.cache.Get(model)
	c.mu.Unlock()
	if ok {
		return asEncoder(cached)
	}

	// concurrent misses for the same model share one construction
	v, _, _ := c.group.Do(model, func() (interface{}, error) {
		c.mu.Lock()
		if cached, ok := c.cache.Get(model); ok {
			c.mu.Unlock()
			return cached, nil
		}
		c.mu.Unlock()

		c.constructions.Add(1)
		var entry interface{} = unavailable{}
		enc, err := c.factory(model)
		if err != nil || enc == nil {
			c.logger.WarnWithModel("No tokenizer available, counting characters for", model, "error", err)
		} else {
			entry = enc
		}

		c.mu.Lock()
		c.cache.Add(model, entry)
		c.mu.Unlock()
		return entry, nil
	})
	return asEncoder(v)
}

func asEncoder(v interface{}) Encoder {
	if enc, ok := v.(Encoder); ok {
		return enc
	}
	return nil
}

// Constructions is how many times the factory has been invoked
func (c *Counter) Constructions() int64 {
	return c.constructions.Load()
}

func (c *Counter) Evictions() int64 {
	return c.evictions.Load()
}

func (c *Counter) CachedEncoders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
