package models

import "time"

const (
	EntityTask    = "task"
	EntityAsset   = "asset"
	EntityBooking = "booking"
)

// EntityTypes lists the mutation categories tracked for offline sync,
// in the order they are reported.
var EntityTypes = []string{EntityTask, EntityAsset, EntityBooking}

// IsValidEntityType reports whether t is one of the tracked entity types.
func IsValidEntityType(t string) bool {
	switch t {
	case EntityTask, EntityAsset, EntityBooking:
		return true
	}
	return false
}

const (
	MutationPending   = "pending"
	MutationSyncing   = "syncing"
	MutationRetry     = "retry"
	MutationCompleted = "completed"
	MutationFailed    = "failed"
)

const (
	JobSyncTasks    = "sync-tasks"
	JobSyncAssets   = "sync-assets"
	JobSyncBookings = "sync-bookings"
)

// JobNameFor maps an entity type to its background-sync job identifier.
func JobNameFor(entityType string) string {
	switch entityType {
	case EntityTask:
		return JobSyncTasks
	case EntityAsset:
		return JobSyncAssets
	case EntityBooking:
		return JobSyncBookings
	}
	return ""
}

// EntityForJob is the inverse of JobNameFor; returns "" for unknown jobs.
func EntityForJob(job string) string {
	switch job {
	case JobSyncTasks:
		return EntityTask
	case JobSyncAssets:
		return EntityAsset
	case JobSyncBookings:
		return EntityBooking
	}
	return ""
}

// KeyLastReplayAt is the kv key recording when the worker last applied a
// mutation, RFC3339.
const KeyLastReplayAt = "sync:last_replay_at"

const (
	// DefaultCacheTTL время жизни кэшированного ответа по умолчанию
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheRetention сколько Redis хранит запись независимо от её TTL
	DefaultCacheRetention = 24 * time.Hour

	// DefaultSettleDelay пауза перед повторным чтением счётчиков после триггера
	DefaultSettleDelay = 2 * time.Second

	// DefaultProbeInterval период опроса доступности бэкенда
	DefaultProbeInterval = 15 * time.Second

	// DefaultBatchSize размер батча при чтении очереди
	DefaultBatchSize = 20
)
