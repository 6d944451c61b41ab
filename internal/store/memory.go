package store

import (
	"context"
	"sync"
	"time"

	"domovik/internal/models"
)

// MemoryStore keeps all collections in process memory. Used when the SQLite
// store cannot be opened: offline support degrades to the lifetime of the
// process instead of crashing the app.
type MemoryStore struct {
	mu        sync.Mutex
	mutations []models.PendingMutation
	cache     map[string]models.CacheEntry
	kv        map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: make(map[string]models.CacheEntry),
		kv:    make(map[string]string),
	}
}

func (s *MemoryStore) InsertMutation(ctx context.Context, m *models.PendingMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations = append(s.mutations, *m)
	return nil
}

func (s *MemoryStore) PendingMutations(ctx context.Context, entityType string, limit int) ([]models.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []models.PendingMutation
	for _, m := range s.mutations {
		if m.EntityType != entityType {
			continue
		}
		if m.Status != models.MutationPending && m.Status != models.MutationRetry {
			continue
		}
		if m.NextRetryAt != nil && m.NextRetryAt.After(now) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteMutation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.mutations {
		if m.ID == id {
			s.mutations = append(s.mutations[:i], s.mutations[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) UpdateMutationStatus(ctx context.Context, id string, status, errMsg string, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.mutations {
		if s.mutations[i].ID != id {
			continue
		}
		s.mutations[i].Status = status
		s.mutations[i].NextRetryAt = nextRetryAt
		if errMsg != "" {
			msg := errMsg
			s.mutations[i].LastError = &msg
		}
		switch status {
		case models.MutationRetry:
			s.mutations[i].RetryCount++
		case models.MutationCompleted, models.MutationFailed:
			s.mutations[i].ProcessedAt = &now
		}
		return nil
	}
	return nil
}

func (s *MemoryStore) FailedMutations(ctx context.Context) ([]models.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.PendingMutation
	for i := len(s.mutations) - 1; i >= 0; i-- {
		if s.mutations[i].Status == models.MutationFailed {
			out = append(out, s.mutations[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) CountPendingByEntity(ctx context.Context) (models.PendingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary models.PendingSummary
	for _, m := range s.mutations {
		switch m.Status {
		case models.MutationPending, models.MutationRetry, models.MutationSyncing:
			summary.Set(m.EntityType, summary.CountFor(m.EntityType)+1)
		}
	}
	return summary, nil
}

func (s *MemoryStore) PutCacheEntry(ctx context.Context, entry models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[entry.Key] = entry
	return nil
}

func (s *MemoryStore) GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) DeleteCacheEntry(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
	return nil
}

func (s *MemoryStore) SetValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *MemoryStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.kv[key]
	return value, ok, nil
}

func (s *MemoryStore) DeleteValue(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
