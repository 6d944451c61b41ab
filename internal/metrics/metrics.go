package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domovik",
			Name:      "mutations_enqueued_total",
			Help:      "Mutations recorded for offline sync, by entity type.",
		},
		[]string{"entity_type"},
	)

	syncTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "domovik",
			Name:      "sync_triggers_total",
			Help:      "Sync orchestrator triggers, including short-circuited ones.",
		},
	)

	jobRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domovik",
			Name:      "sync_jobs_requested_total",
			Help:      "Background-sync job requests by job name.",
		},
		[]string{"job"},
	)

	replays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domovik",
			Name:      "replays_total",
			Help:      "Replay outcomes by result (completed, retry, failed).",
		},
		[]string{"result"},
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domovik",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result (hit, stale, miss).",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(enqueued, syncTriggers, jobRequests, replays, cacheRequests)
	})
}

// IncEnqueued increments the enqueued counter for an entity type.
func IncEnqueued(entityType string) {
	enqueued.WithLabelValues(entityType).Inc()
}

// IncSyncTrigger counts a TriggerSync call.
func IncSyncTrigger() {
	syncTriggers.Inc()
}

// IncJobRequested counts a background-sync job request.
func IncJobRequested(job string) {
	jobRequests.WithLabelValues(job).Inc()
}

// IncReplay counts a replay outcome.
func IncReplay(result string) {
	replays.WithLabelValues(result).Inc()
}

// IncCacheRequest counts a cache lookup result.
func IncCacheRequest(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}
