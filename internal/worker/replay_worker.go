// Package worker hosts the background half of the sync contract: it consumes
// named job requests and replays queued mutations against the remote backend.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"domovik/internal/metrics"
	"domovik/internal/models"
	"domovik/internal/remote"
	"domovik/internal/scheduler"
	"domovik/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ReplayTarget applies a single mutation to the remote backend.
type ReplayTarget interface {
	Replay(ctx context.Context, m *models.PendingMutation) error
}

// ReplayWorker drains the pending-mutation queue in enqueue order per entity
// type. Job requests arrive through the scheduler's Redis list; a периодический
// опрос локального хранилища подбирает всё, что осталось после сбоев.
type ReplayWorker struct {
	store         store.Store
	target        ReplayTarget
	jobs          *scheduler.RedisJobScheduler
	redis         *redis.Client
	retryPolicy   RetryPolicy
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// Settings tunes the worker loop. Zero values fall back to the defaults the
// shipped config documents.
type Settings struct {
	Retry        RetryPolicy
	BatchSize    int
	PollInterval time.Duration
}

// NewReplayWorker builds a worker from settings, typically produced from the
// sync config section via PolicyFromConfig.
func NewReplayWorker(st store.Store, target ReplayTarget, jobs *scheduler.RedisJobScheduler, redisClient *redis.Client, settings Settings, logger *zerolog.Logger) *ReplayWorker {
	if settings.BatchSize <= 0 {
		settings.BatchSize = models.DefaultBatchSize
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}

	return &ReplayWorker{
		store:         st,
		target:        target,
		jobs:          jobs,
		redis:         redisClient,
		retryPolicy:   settings.Retry.withDefaults(),
		deadLetterKey: "sync:deadletter",
		pollInterval:  settings.PollInterval,
		batchSize:     settings.BatchSize,
		logger:        logger,
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *ReplayWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("replay worker started")
	defer w.logger.Info().Msg("replay worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.jobs != nil {
			if job, ok := w.tryNextJob(ctx); ok {
				if entityType := models.EntityForJob(job); entityType != "" {
					w.processEntity(ctx, entityType)
				} else {
					w.logger.Warn().Str("job", job).Msg("unknown sync job requested")
				}
				continue
			}
		}

		if w.pollAll(ctx) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

func (w *ReplayWorker) tryNextJob(ctx context.Context) (string, bool) {
	job, ok, err := w.jobs.Next(ctx, time.Second)
	if err != nil {
		w.logger.Error().Err(err).Msg("job queue read failed")
		return "", false
	}
	return job, ok
}

// pollAll replays due mutations for every entity type, returning how many
// were processed.
func (w *ReplayWorker) pollAll(ctx context.Context) int {
	processed := 0
	for _, entityType := range models.EntityTypes {
		processed += w.processEntity(ctx, entityType)
	}
	return processed
}

// processEntity replays due mutations for one entity type, oldest first.
func (w *ReplayWorker) processEntity(ctx context.Context, entityType string) int {
	processed := 0
	defer func() {
		if processed > 0 {
			if err := w.store.SetValue(ctx, models.KeyLastReplayAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
				w.logger.Warn().Err(err).Msg("record last replay time failed")
			}
		}
	}()
	for {
		batch, err := w.store.PendingMutations(ctx, entityType, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Str("entity_type", entityType).Msg("fetch pending mutations failed")
			return processed
		}
		if len(batch) == 0 {
			return processed
		}

		for i := range batch {
			if ctx.Err() != nil {
				return processed
			}
			w.processMutation(ctx, &batch[i])
			processed++
		}

		if len(batch) < w.batchSize {
			return processed
		}
	}
}

func (w *ReplayWorker) processMutation(ctx context.Context, m *models.PendingMutation) {
	err := w.target.Replay(ctx, m)
	if err == nil {
		// Success removes the mutation entirely; pending counts shrink.
		if err := w.store.DeleteMutation(ctx, m.ID); err != nil {
			w.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("remove replayed mutation failed")
			return
		}
		metrics.IncReplay("completed")
		return
	}

	if remote.IsPermanent(err) {
		w.failMutation(ctx, m, err)
		return
	}
	w.retryOrFail(ctx, m, err)
}

func (w *ReplayWorker) retryOrFail(ctx context.Context, m *models.PendingMutation, cause error) {
	attempt := m.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failMutation(ctx, m, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateMutationStatus(ctx, m.ID, models.MutationRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("mark retry failed")
		return
	}
	metrics.IncReplay("retry")
}

// failMutation keeps the mutation in the store with status failed — it is
// never silently dropped — and mirrors it to a dead-letter list for support.
func (w *ReplayWorker) failMutation(ctx context.Context, m *models.PendingMutation, cause error) {
	w.logger.Error().Err(cause).Str("mutation_id", m.ID).Str("entity_type", m.EntityType).Msg("mutation replay failed permanently")
	if err := w.store.UpdateMutationStatus(ctx, m.ID, models.MutationFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("mark failed failed")
	}
	metrics.IncReplay("failed")
	w.pushDeadLetter(ctx, m)
}

func (w *ReplayWorker) pushDeadLetter(ctx context.Context, m *models.PendingMutation) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		w.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("encode deadletter failed")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Str("mutation_id", m.ID).Msg("deadletter push failed")
	}
}
