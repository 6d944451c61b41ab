package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"domovik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreQueueOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertMutation(ctx, newMutation(models.EntityAsset, now, i)))
	}

	got, err := s.PendingMutations(ctx, models.EntityAsset, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "asset-0", got[0].ID)
	assert.Equal(t, "asset-2", got[2].ID)

	// Limit applies after filtering.
	got, err = s.PendingMutations(ctx, models.EntityAsset, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStoreStatusTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	m := newMutation(models.EntityTask, time.Now(), 1)
	require.NoError(t, s.InsertMutation(ctx, m))

	future := time.Now().Add(time.Hour)
	require.NoError(t, s.UpdateMutationStatus(ctx, m.ID, models.MutationRetry, "boom", &future))

	pending, err := s.PendingMutations(ctx, models.EntityTask, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	summary, err := s.CountPendingByEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Tasks)

	require.NoError(t, s.UpdateMutationStatus(ctx, m.ID, models.MutationFailed, "gave up", nil))
	failed, err := s.FailedMutations(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)

	summary, err = s.CountPendingByEntity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
}

func TestMemoryStoreCacheAndKV(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entry := models.CacheEntry{Key: "providers", Value: json.RawMessage(`{}`), CachedAt: time.Now(), TTL: time.Minute}
	require.NoError(t, s.PutCacheEntry(ctx, entry))

	got, err := s.GetCacheEntry(ctx, "providers")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Key, got.Key)

	missing, err := s.GetCacheEntry(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SetValue(ctx, "schema_version", "1"))
	v, ok, err := s.GetValue(ctx, "schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)
}
