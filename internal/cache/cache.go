// Package cache provides best-effort read-path resilience: last-known-good
// server responses keyed by logical resource name. Caching is advisory —
// a miss or a stale hit degrades freshness, never correctness.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"domovik/internal/models"
)

// Cache stores CacheEntry values. Get returns (nil, nil) on a miss; stale
// entries are returned as-is, the caller checks CachedAt/TTL when freshness
// matters.
type Cache interface {
	Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Delete(ctx context.Context, key string) error
}

func newEntry(key string, value json.RawMessage, ttl time.Duration) models.CacheEntry {
	return models.CacheEntry{
		Key:      key,
		Value:    value,
		CachedAt: time.Now(),
		TTL:      ttl,
	}
}
