package models

import "time"

// PendingMutation is a locally recorded create/update that still has to be
// replayed against the remote backend.
type PendingMutation struct {
	ID          string     `json:"id"`
	EntityType  string     `json:"entity_type"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// PendingSummary holds pending mutation counts per entity type.
type PendingSummary struct {
	Tasks    int `json:"tasks"`
	Assets   int `json:"assets"`
	Bookings int `json:"bookings"`
}

func (s PendingSummary) Total() int {
	return s.Tasks + s.Assets + s.Bookings
}

// CountFor returns the count for a given entity type, 0 for unknown types.
func (s PendingSummary) CountFor(entityType string) int {
	switch entityType {
	case EntityTask:
		return s.Tasks
	case EntityAsset:
		return s.Assets
	case EntityBooking:
		return s.Bookings
	}
	return 0
}

// Set updates the count for a given entity type.
func (s *PendingSummary) Set(entityType string, count int) {
	switch entityType {
	case EntityTask:
		s.Tasks = count
	case EntityAsset:
		s.Assets = count
	case EntityBooking:
		s.Bookings = count
	}
}
