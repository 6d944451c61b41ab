// Package store is the durable local storage layer of the sync core. It
// exposes three logical collections — pending mutations, cache entries and a
// generic key/value area — over an embedded SQLite database, with an
// in-memory implementation for degraded (storage-unavailable) mode.
package store

import (
	"context"
	"time"

	"domovik/internal/models"
)

// Store is the single shared mutable resource of the sync core. Every
// operation is atomic with respect to its own collection; no transactions
// span collections.
type Store interface {
	// Pending mutation collection.
	InsertMutation(ctx context.Context, m *models.PendingMutation) error
	PendingMutations(ctx context.Context, entityType string, limit int) ([]models.PendingMutation, error)
	DeleteMutation(ctx context.Context, id string) error
	UpdateMutationStatus(ctx context.Context, id string, status, errMsg string, nextRetryAt *time.Time) error
	FailedMutations(ctx context.Context) ([]models.PendingMutation, error)
	CountPendingByEntity(ctx context.Context) (models.PendingSummary, error)

	// Cache entry collection.
	PutCacheEntry(ctx context.Context, entry models.CacheEntry) error
	GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error)
	DeleteCacheEntry(ctx context.Context, key string) error

	// Generic key/value collection.
	SetValue(ctx context.Context, key, value string) error
	GetValue(ctx context.Context, key string) (string, bool, error)
	DeleteValue(ctx context.Context, key string) error

	Close() error
}
