package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"domovik/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps entries in Redis. The entry TTL is advisory and lives
// inside the stored envelope; the Redis expiry is a retention window after
// which даже устаревшая запись никому не нужна.
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisCache(client *redis.Client, retention time.Duration) *RedisCache {
	if retention <= 0 {
		retention = models.DefaultCacheRetention
	}
	return &RedisCache{client: client, retention: retention}
}

func (c *RedisCache) key(key string) string {
	return fmt.Sprintf("cache:%s", key)
}

func (c *RedisCache) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}

	entry := newEntry(key, value, ttl)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.key(key), data, c.retention).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if c.client == nil {
		return nil, errors.New("redis client is nil")
	}

	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}

	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
