package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/routing"
)

// Prober issues a lightweight canary fetch through every endpoint on a
// fixed interval and feeds the outcomes into the registry's circuit
// counters. This is how an open circuit recovers without waiting for
// user traffic. Probes bypass selection, so they consume neither the
// rate window nor the rotation order.
type Prober struct {
	registry *routing.Registry
	target   string
	interval time.Duration
	running  atomic.Bool
	stop     chan struct{}
}

// NewProber creates a prober fetching target through each endpoint.
func NewProber(registry *routing.Registry, target string, interval time.Duration) *Prober {
	return &Prober{
		registry: registry,
		target:   target,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the probe loop. It blocks until the context is cancelled
// or Stop is called.
func (p *Prober) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("prober already running")
	}
	defer p.running.Store(false)

	slog.Info("Starting health prober", "interval", p.interval, "target", p.target)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// Stop stops the probe loop.
func (p *Prober) Stop() error {
	if p.running.Load() {
		close(p.stop)
	}
	return nil
}

// ProbeAll runs one canary round through every endpoint concurrently and
// waits for all of them to finish.
func (p *Prober) ProbeAll(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range p.registry.Endpoints() {
		g.Go(func() error {
			p.probe(ctx, e)
			return nil
		})
	}
	g.Wait()
}

func (p *Prober) probe(ctx context.Context, e *endpoint.Endpoint) {
	resp, err := e.Fetch(ctx, p.target)
	if err != nil {
		p.registry.RecordFailure(e.Name(), err)
		slog.Debug("Canary probe failed", "endpoint", e.Name(), "error", err)
		return
	}

	// The probe only proves liveness; drain a little and discard.
	io.CopyN(io.Discard, resp.Body, 4096)
	resp.Body.Close()
	p.registry.RecordSuccess(e.Name())
}
