package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"domovik/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCache serves from a primary cache (Redis) and falls back to the
// durable local cache when the primary misbehaves. Writes go through to the
// fallback regardless, so cached reads survive both a Redis outage and a
// restart.
type FailoverCache struct {
	primary  Cache
	fallback Cache
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCache(primary, fallback Cache, logger *zerolog.Logger) *FailoverCache {
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FailoverCache) markDown(err error) {
	c.logger.Error().Err(err).Msg("Primary cache failed, falling back to local store")
	c.isDown.Store(true)
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()
}

// shouldProbe reports whether enough time has passed to retry the primary.
func (c *FailoverCache) shouldProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastCheck) <= time.Minute {
		return false
	}
	c.lastCheck = time.Now()
	return true
}

func (c *FailoverCache) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	fallbackErr := c.fallback.Put(ctx, key, value, ttl)

	if !c.isDown.Load() || c.shouldProbe() {
		if err := c.primary.Put(ctx, key, value, ttl); err != nil {
			if !c.isDown.Load() {
				c.markDown(err)
			}
		} else {
			c.isDown.Store(false)
		}
	}

	return fallbackErr
}

func (c *FailoverCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if !c.isDown.Load() {
		entry, err := c.primary.Get(ctx, key)
		if err == nil && entry != nil {
			return entry, nil
		}
		if err != nil {
			c.markDown(err)
		}
		// Primary miss: the entry may predate this process, check the
		// durable fallback.
	} else if c.shouldProbe() {
		entry, err := c.primary.Get(ctx, key)
		if err == nil {
			c.isDown.Store(false)
			if entry != nil {
				return entry, nil
			}
		}
	}

	return c.fallback.Get(ctx, key)
}

func (c *FailoverCache) Delete(ctx context.Context, key string) error {
	if !c.isDown.Load() {
		if err := c.primary.Delete(ctx, key); err != nil {
			c.markDown(err)
		}
	}
	return c.fallback.Delete(ctx, key)
}
