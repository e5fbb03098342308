// Package netmon maintains a live view of network availability by probing
// a well-known address. The retry layer consults it to fail fast while the
// machine is offline instead of burning retry attempts.
package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// Monitor probes an address on a fixed interval and keeps an atomic
// online flag. The flag starts true; the first probe corrects it.
type Monitor struct {
	address     string
	interval    time.Duration
	dialTimeout time.Duration
	online      atomic.Bool
	running     atomic.Bool
	stop        chan struct{}
}

// NewMonitor creates a monitor probing address over TCP.
func NewMonitor(address string, interval time.Duration) *Monitor {
	m := &Monitor{
		address:     address,
		interval:    interval,
		dialTimeout: 5 * time.Second,
		stop:        make(chan struct{}),
	}
	m.online.Store(true)
	return m
}

// Online reports the last probed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Start begins the probe loop with an immediate first check. It blocks
// until the context is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("network monitor already running")
	}
	defer m.running.Store(false)

	slog.Info("Starting network monitor", "address", m.address, "interval", m.interval)
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stop:
			return nil
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Stop stops the probe loop.
func (m *Monitor) Stop() error {
	if m.running.Load() {
		close(m.stop)
	}
	return nil
}

func (m *Monitor) check(ctx context.Context) {
	dialer := net.Dialer{Timeout: m.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.address)
	if err == nil {
		conn.Close()
	}

	was := m.online.Swap(err == nil)
	switch {
	case was && err != nil:
		slog.Warn("Network connectivity lost", "address", m.address, "error", err)
	case !was && err == nil:
		slog.Info("Network connectivity restored", "address", m.address)
	}
}
