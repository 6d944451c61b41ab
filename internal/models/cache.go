package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is a last-known-good server response stored under a logical
// resource name. Staleness is advisory: a stale entry is still returned to
// the caller, который сам решает, устраивает ли его свежесть.
type CacheEntry struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	CachedAt time.Time       `json:"cached_at"`
	TTL      time.Duration   `json:"ttl"`
}

// IsStale reports whether the entry has outlived its TTL at the given moment.
// A zero TTL means the entry is stale immediately after caching.
func (e CacheEntry) IsStale(now time.Time) bool {
	return !now.Before(e.CachedAt.Add(e.TTL))
}
