// Package service is the facade the UI layer talks to. It bundles the queue,
// the cache, the orchestrator and the connectivity monitor behind one API so
// callers never wire sync internals themselves.
package service

import (
	"context"
	"encoding/json"
	"time"

	"domovik/internal/cache"
	"domovik/internal/connectivity"
	"domovik/internal/metrics"
	"domovik/internal/models"
	"domovik/internal/orchestrator"
	"domovik/internal/queue"

	"github.com/rs/zerolog"
)

type OfflineService struct {
	queue      *queue.Manager
	cache      cache.Cache
	orch       *orchestrator.Orchestrator
	monitor    *connectivity.Monitor
	defaultTTL time.Duration
	logger     *zerolog.Logger
}

func NewOfflineService(q *queue.Manager, c cache.Cache, orch *orchestrator.Orchestrator, monitor *connectivity.Monitor, defaultTTL time.Duration, logger *zerolog.Logger) *OfflineService {
	if defaultTTL <= 0 {
		defaultTTL = models.DefaultCacheTTL
	}
	return &OfflineService{
		queue:      q,
		cache:      c,
		orch:       orch,
		monitor:    monitor,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// StoreForOfflineSync durably queues a mutation made while offline. No
// network activity happens here; replay is the worker's job.
func (s *OfflineService) StoreForOfflineSync(ctx context.Context, entityType string, payload interface{}) (*models.PendingMutation, error) {
	return s.queue.StoreForSync(ctx, entityType, payload)
}

// CachedResult is a cache read outcome: a stale hit still carries data, the
// caller decides whether freshness matters for its view.
type CachedResult struct {
	Entry *models.CacheEntry
	Stale bool
}

// GetCachedData looks up a cached server response. A miss returns a nil
// Entry; cache failures degrade to a miss as well, so there is no error to
// report.
func (s *OfflineService) GetCachedData(ctx context.Context, key string) CachedResult {
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		metrics.IncCacheRequest("miss")
		return CachedResult{}
	}
	if entry == nil {
		metrics.IncCacheRequest("miss")
		return CachedResult{}
	}

	stale := entry.IsStale(time.Now())
	if stale {
		metrics.IncCacheRequest("stale")
	} else {
		metrics.IncCacheRequest("hit")
	}
	return CachedResult{Entry: entry, Stale: stale}
}

// CacheData stores a server response for later offline reads. A zero or
// negative ttl falls back to the configured default.
func (s *OfflineService) CacheData(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.cache.Put(ctx, key, value, ttl)
}

// InvalidateCache drops a cached response, forcing the next read to miss.
func (s *OfflineService) InvalidateCache(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

// TriggerSync asks the orchestrator to schedule replay of everything pending.
func (s *OfflineService) TriggerSync(ctx context.Context) (models.PendingSummary, error) {
	return s.orch.TriggerSync(ctx)
}

// PendingCounts reports unresolved mutations per entity type.
func (s *OfflineService) PendingCounts(ctx context.Context) (models.PendingSummary, error) {
	return s.queue.PendingCounts(ctx)
}

// FailedMutations lists mutations whose replay gave up.
func (s *OfflineService) FailedMutations(ctx context.Context) ([]models.PendingMutation, error) {
	return s.queue.FailedMutations(ctx)
}

// LastReplayAt reports when the worker last applied a mutation.
func (s *OfflineService) LastReplayAt(ctx context.Context) (time.Time, error) {
	return s.queue.LastReplayAt(ctx)
}

// IsOnline reflects the connectivity monitor's last observation. Without a
// monitor the service reports offline, the safe answer for queueing.
func (s *OfflineService) IsOnline() bool {
	if s.monitor == nil {
		return false
	}
	return s.monitor.IsOnline()
}
