// Package control assembles the dispatch and transfer layers into one
// runnable service and manages their lifecycle.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/config"
	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/core/worker"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/netmon"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/routing"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/api"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/health"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/metrics"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/scheduler"
)

// Service is the main application struct that manages the downloader lifecycle.
type Service struct {
	cfg config.AppConfig

	registry   *routing.Registry
	limiter    *routing.WindowLimiter
	dispatcher *proxy.Dispatcher
	prober     *proxy.Prober
	netMon     *netmon.Monitor
	scheduler  *scheduler.Scheduler
	pruner     *worker.Pruner
	healthMon  *health.Monitor
	apiServer  *api.Server
	log        *slog.Logger
}

// Start starts all service components. Long-running loops are spawned
// in the background; failures are logged, not propagated.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting downloader service",
		"endpoints", s.registry.Len(),
		"max_concurrent", s.cfg.Scheduler.MaxConcurrent,
		"port", s.cfg.Server.Port)

	go func() {
		if err := s.apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("API server failed", "error", err)
		}
	}()

	go func() {
		if err := s.netMon.Start(ctx); err != nil {
			s.log.Error("Network monitor failed", "error", err)
		}
	}()

	go func() {
		if err := s.prober.Start(ctx); err != nil {
			s.log.Error("Endpoint prober failed", "error", err)
		}
	}()

	go s.limiter.Run(ctx)
	go s.pruner.Start(ctx)
	go s.runMetricsUpdater(ctx)

	return nil
}

// Stop stops the service, waiting for in-flight transfers up to ctx's
// deadline before shutting the API down.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping downloader service...")

	if err := s.prober.Stop(); err != nil {
		s.log.Warn("Prober stop", "error", err)
	}
	if err := s.netMon.Stop(); err != nil {
		s.log.Warn("Network monitor stop", "error", err)
	}

	if err := s.scheduler.Stop(ctx); err != nil {
		s.log.Warn("Transfers still in flight at shutdown", "error", err)
	}

	return s.apiServer.Stop(ctx)
}

func (s *Service) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateMetrics(ctx)
		}
	}
}

var gaugedStatuses = []domain.TaskStatus{
	domain.TaskStatusPending,
	domain.TaskStatusQueued,
	domain.TaskStatusDownloading,
	domain.TaskStatusRetrying,
	domain.TaskStatusCompleted,
	domain.TaskStatusFailed,
	domain.TaskStatusCancelled,
}

func (s *Service) updateMetrics(ctx context.Context) {
	usage := s.limiter.Usage()
	for _, st := range s.registry.Stats() {
		open := 0.0
		if st.CircuitOpen {
			open = 1
		}
		metrics.CircuitOpen.WithLabelValues(st.Name).Set(open)
		metrics.EndpointWindowRequests.WithLabelValues(st.Name).Set(float64(usage[st.Name]))
	}

	stats, err := s.scheduler.Stats(ctx)
	if err != nil {
		s.log.Warn("Stats collection failed", "error", err)
		return
	}
	metrics.ActiveTransfers.Set(float64(stats.Active))
	metrics.QueuedTransfers.Set(float64(stats.Queued))
	for _, status := range gaugedStatuses {
		metrics.TasksByStatus.WithLabelValues(string(status)).Set(float64(stats.ByStatus[status]))
	}
}
