// Package connectivity tracks whether the remote store is reachable and
// fires callbacks on transitions. It replaces the browser online/offline
// events with a reachability probe against the remote store itself.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

type Monitor struct {
	mu        sync.Mutex
	online    bool
	probe     func(ctx context.Context) error
	interval  time.Duration
	onOnline  []func()
	onOffline []func()
}

// NewMonitor starts in the offline state; the first successful probe (or an
// explicit SetOnline) brings it online. probe may be nil when the state is
// driven manually.
func NewMonitor(probe func(ctx context.Context) error, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{probe: probe, interval: interval}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a callback fired on every offline-to-online
// transition. Registration is not safe after Start.
func (m *Monitor) OnOnline(fn func()) {
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers a callback fired on every online-to-offline
// transition.
func (m *Monitor) OnOffline(fn func()) {
	m.onOffline = append(m.onOffline, fn)
}

// SetOnline forces the state and fires transition callbacks. Tests drive
// the monitor with it instead of a probe.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		log.Println("[connectivity] back online")
		for _, fn := range m.onOnline {
			fn()
		}
	} else {
		log.Println("[connectivity] working offline, changes will sync when back online")
		for _, fn := range m.onOffline {
			fn()
		}
	}
}

// Start probes the remote store until ctx is cancelled. The first probe
// runs immediately so startup state settles fast.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}

	go func() {
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
	}()
}

func (m *Monitor) probeOnce(ctx context.Context) {
	err := m.probe(ctx)
	m.SetOnline(err == nil)
}
