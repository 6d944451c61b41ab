// Package queue records mutations made while offline and reports on their
// resolution, giving replay FIFO semantics per entity type.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"domovik/internal/metrics"
	"domovik/internal/models"
	"domovik/internal/store"
	"domovik/internal/syncerr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Manager struct {
	store  store.Store
	logger *zerolog.Logger
}

func NewManager(st store.Store, logger *zerolog.Logger) *Manager {
	return &Manager{store: st, logger: logger}
}

// StoreForSync durably records a mutation for later replay. It does not
// attempt any network activity. Returns EnqueueFailed when the record cannot
// be persisted, so the caller can warn the user that the change may be lost.
func (m *Manager) StoreForSync(ctx context.Context, entityType string, payload interface{}) (*models.PendingMutation, error) {
	if !models.IsValidEntityType(entityType) {
		return nil, syncerr.New(syncerr.KindEnqueueFailed, "queue.StoreForSync", fmt.Errorf("unknown entity type %q", entityType))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, syncerr.New(syncerr.KindEnqueueFailed, "queue.StoreForSync", fmt.Errorf("encode payload: %w", err))
	}

	mutation := &models.PendingMutation{
		ID:         uuid.NewString(),
		EntityType: entityType,
		Payload:    string(raw),
		Status:     models.MutationPending,
		EnqueuedAt: time.Now(),
	}

	if err := m.store.InsertMutation(ctx, mutation); err != nil {
		return nil, syncerr.New(syncerr.KindEnqueueFailed, "queue.StoreForSync", err)
	}

	metrics.IncEnqueued(entityType)
	m.logger.Debug().Str("mutation_id", mutation.ID).Str("entity_type", entityType).Msg("mutation queued for sync")
	return mutation, nil
}

// GetPendingSync returns pending mutations for an entity type in enqueue
// order, oldest first, so replay preserves FIFO semantics.
func (m *Manager) GetPendingSync(ctx context.Context, entityType string) ([]models.PendingMutation, error) {
	return m.store.PendingMutations(ctx, entityType, 0)
}

// RemoveSynced deletes a mutation after its successful replay.
func (m *Manager) RemoveSynced(ctx context.Context, id string) error {
	if err := m.store.DeleteMutation(ctx, id); err != nil {
		return fmt.Errorf("remove synced mutation: %w", err)
	}
	return nil
}

// PendingCounts reports the number of unresolved mutations per entity type.
func (m *Manager) PendingCounts(ctx context.Context) (models.PendingSummary, error) {
	return m.store.CountPendingByEntity(ctx)
}

// FailedMutations lists mutations whose replay retries are exhausted.
func (m *Manager) FailedMutations(ctx context.Context) ([]models.PendingMutation, error) {
	return m.store.FailedMutations(ctx)
}

// LastReplayAt returns when the worker last applied a mutation, or zero time
// when nothing has ever been replayed.
func (m *Manager) LastReplayAt(ctx context.Context) (time.Time, error) {
	raw, ok, err := m.store.GetValue(ctx, models.KeyLastReplayAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last replay time: %w", err)
	}
	return ts, nil
}
