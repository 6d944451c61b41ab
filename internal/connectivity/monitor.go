// Package connectivity normalizes backend reachability into a single
// online/offline flag with edge-triggered notifications. The monitor is the
// flag's only writer; everyone else reads IsOnline or subscribes to the bus.
package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"domovik/internal/events"

	"github.com/rs/zerolog"
)

// Prober checks whether the remote backend is reachable right now.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	bus      *events.Bus
	logger   *zerolog.Logger

	online      atomic.Bool
	initialized atomic.Bool
}

func NewMonitor(prober Prober, interval time.Duration, bus *events.Bus, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  interval / 2,
		bus:      bus,
		logger:   logger,
	}
}

// IsOnline returns the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Start runs the probe loop until ctx is done. The first probe establishes
// the initial state without publishing an event; only real transitions
// notify subscribers.
func (m *Monitor) Start(ctx context.Context) {
	m.probeOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	m.setOnline(err == nil)
}

// setOnline updates the state and publishes exactly one event per edge.
// Repeated observations of the same state are silent.
func (m *Monitor) setOnline(online bool) {
	if m.initialized.CompareAndSwap(false, true) {
		m.online.Store(online)
		m.logger.Info().Bool("online", online).Msg("initial connectivity state")
		return
	}

	if !m.online.CompareAndSwap(!online, online) {
		return
	}

	eventType := events.EventNetworkOffline
	if online {
		eventType = events.EventNetworkOnline
	}
	m.logger.Info().Bool("online", online).Msg("connectivity transition")

	if err := m.bus.PublishJSON(eventType, events.NetworkEventPayload{Online: online, At: time.Now()}); err != nil {
		m.logger.Error().Err(err).Msg("failed to publish connectivity event")
	}
}
