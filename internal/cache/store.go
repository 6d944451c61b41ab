package cache

import (
	"context"
	"encoding/json"
	"time"

	"domovik/internal/models"
	"domovik/internal/store"
)

// StoreCache persists entries in the local store so cached reads survive
// process restarts.
type StoreCache struct {
	store store.Store
}

func NewStoreCache(st store.Store) *StoreCache {
	return &StoreCache{store: st}
}

func (c *StoreCache) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return c.store.PutCacheEntry(ctx, newEntry(key, value, ttl))
}

func (c *StoreCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	return c.store.GetCacheEntry(ctx, key)
}

func (c *StoreCache) Delete(ctx context.Context, key string) error {
	return c.store.DeleteCacheEntry(ctx, key)
}
