// Package syncerr defines the closed error taxonomy of the offline-sync core.
// Callers switch on Kind instead of matching message text.
package syncerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindStorageUnavailable: the local store cannot be opened or has gone
	// away. Non-fatal; callers degrade to memory-only operation.
	KindStorageUnavailable Kind = iota + 1
	// KindEnqueueFailed: a mutation could not be durably recorded.
	KindEnqueueFailed
	// KindSyncTriggerUnsupported: no background-sync facility is configured.
	KindSyncTriggerUnsupported
	// KindReplayFailure: replay of a queued mutation failed; the mutation
	// stays queued for a future retry.
	KindReplayFailure
)

func (k Kind) String() string {
	switch k {
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindEnqueueFailed:
		return "enqueue_failed"
	case KindSyncTriggerUnsupported:
		return "sync_trigger_unsupported"
	case KindReplayFailure:
		return "replay_failure"
	}
	return "unknown"
}

// Error is a tagged sync error wrapping an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a tagged error. Op names the failing operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or 0 if err is not a sync error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
