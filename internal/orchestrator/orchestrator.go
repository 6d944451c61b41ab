// Package orchestrator coordinates replay of queued mutations. It never
// performs the network replay itself: it requests named background jobs and
// re-reads queue state after a settle delay to report progress.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"domovik/internal/events"
	"domovik/internal/metrics"
	"domovik/internal/models"
	"domovik/internal/queue"
	"domovik/internal/scheduler"
	"domovik/internal/syncerr"

	"github.com/rs/zerolog"
)

type Orchestrator struct {
	queue       *queue.Manager
	sched       scheduler.JobScheduler
	bus         *events.Bus
	logger      *zerolog.Logger
	settleDelay time.Duration

	// inFlight guards against overlapping triggers: a new trigger is
	// short-circuited until the previous one's settle delay has passed.
	inFlight atomic.Bool
}

func New(q *queue.Manager, sched scheduler.JobScheduler, bus *events.Bus, settleDelay time.Duration, logger *zerolog.Logger) *Orchestrator {
	if settleDelay <= 0 {
		settleDelay = models.DefaultSettleDelay
	}
	return &Orchestrator{
		queue:       q,
		sched:       sched,
		bus:         bus,
		logger:      logger,
		settleDelay: settleDelay,
	}
}

// Bind subscribes the orchestrator to connectivity transitions: each
// offline→online edge triggers exactly one sync attempt.
func (o *Orchestrator) Bind(bus *events.Bus) {
	bus.Subscribe(events.EventNetworkOnline, func(ev *events.Event) error {
		if _, err := o.TriggerSync(context.Background()); err != nil {
			o.logger.Warn().Err(err).Msg("sync trigger on reconnect failed")
		}
		return nil
	})
}

// TriggerSync requests one background job per entity type with pending
// mutations and returns the pre-trigger counts. Fire-and-forget: the settle
// re-read happens asynchronously and is published as a sync_settled event.
// Returns SyncTriggerUnsupported when no background-sync facility is
// configured; mutations simply stay queued.
func (o *Orchestrator) TriggerSync(ctx context.Context) (models.PendingSummary, error) {
	metrics.IncSyncTrigger()

	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Debug().Msg("sync trigger short-circuited, previous trigger still settling")
		return o.queue.PendingCounts(ctx)
	}

	summary, err := o.queue.PendingCounts(ctx)
	if err != nil {
		o.inFlight.Store(false)
		return summary, err
	}

	if o.sched == nil {
		o.inFlight.Store(false)
		return summary, syncerr.New(syncerr.KindSyncTriggerUnsupported, "orchestrator.TriggerSync", nil)
	}

	requested := 0
	for _, entityType := range models.EntityTypes {
		if summary.CountFor(entityType) == 0 {
			continue
		}

		job := models.JobNameFor(entityType)
		if err := o.sched.Request(ctx, job); err != nil {
			// Fail soft: the mutations stay queued for the next trigger.
			o.logger.Error().Err(err).Str("job", job).Msg("background-sync request failed")
			continue
		}

		metrics.IncJobRequested(job)
		requested++
		if err := o.bus.PublishJSON(events.EventSyncRequested, events.SyncRequestedPayload{EntityType: entityType, Job: job}); err != nil {
			o.logger.Error().Err(err).Msg("failed to publish sync_requested event")
		}
	}

	if requested == 0 {
		o.inFlight.Store(false)
		return summary, nil
	}

	go o.settle(requested)
	return summary, nil
}

// settle waits the fixed delay, re-reads pending counts and reports them.
// The delay is a heuristic, not a guarantee: a slow replay job is picked up
// by the next trigger.
func (o *Orchestrator) settle(requested int) {
	defer o.inFlight.Store(false)

	time.Sleep(o.settleDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := o.queue.PendingCounts(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to re-read pending counts after settle delay")
		return
	}

	o.logger.Info().
		Int("tasks", summary.Tasks).
		Int("assets", summary.Assets).
		Int("bookings", summary.Bookings).
		Msg("sync settled")

	if err := o.bus.PublishJSON(events.EventSyncSettled, events.SyncSettledPayload{Pending: summary, Requested: requested}); err != nil {
		o.logger.Error().Err(err).Msg("failed to publish sync_settled event")
	}
}
