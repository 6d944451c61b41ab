package events

import (
	"encoding/json"
	"sync"
	"time"

	"domovik/internal/models"
)

const (
	EventNetworkOnline  = "network_online"
	EventNetworkOffline = "network_offline"
	EventSyncRequested  = "sync_requested"
	EventSyncSettled    = "sync_settled"
)

// NetworkEventPayload carries a connectivity edge transition.
type NetworkEventPayload struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// SyncRequestedPayload describes a background-sync job request.
type SyncRequestedPayload struct {
	EntityType string `json:"entity_type"`
	Job        string `json:"job"`
}

// SyncSettledPayload is published after the settle delay with re-read counts.
type SyncSettledPayload struct {
	Pending   models.PendingSummary `json:"pending"`
	Requested int                   `json:"requested"`
}

// Event represents a lightweight in-process event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub between the sync components and the UI
// surface.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
