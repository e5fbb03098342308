package control

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/config"
	"github.com/DrHuaSH/web-browser-downloader/internal/core/worker"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/netmon"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/routing"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/sink"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/storage/memory"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/api"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/health"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/progress"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/recovery"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/scheduler"
)

// retryMaxDelay caps the exponential backoff between transfer attempts.
const retryMaxDelay = time.Minute

// NewService creates a new Service instance with all dependencies initialized.
func NewService(cfg config.AppConfig) (*Service, error) {
	// 1. Rate limiting and endpoint registry
	limiter := routing.NewWindowLimiter(cfg.Dispatch.RateWindow)
	registry := routing.NewRegistry(limiter,
		cfg.Dispatch.CircuitFailureThreshold,
		cfg.Dispatch.CircuitCooldown)

	for _, ec := range cfg.Endpoints {
		registry.Add(endpoint.New(ec.Name, ec.URL, ec.Timeout, ec.RateLimitPerMinute))
		limiter.SetLimit(ec.Name, ec.RateLimitPerMinute)
		slog.Info("Registered relay endpoint",
			"endpoint", ec.Name,
			"timeout", ec.Timeout,
			"rate_limit_per_minute", ec.RateLimitPerMinute)
	}

	// 2. Dispatch layer
	dispatcher := proxy.NewDispatcher(registry, cfg.Dispatch.MaxBodyBytes)
	prober := proxy.NewProber(registry, cfg.Dispatch.ProbeTarget, cfg.Dispatch.ProbeInterval)
	netMon := netmon.NewMonitor(cfg.Network.CheckAddress, cfg.Network.CheckInterval)

	// 3. Storage and sinks
	store := memory.NewTaskStore()
	content := sink.NewMemory()
	files, err := sink.NewFiles(cfg.Scheduler.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("init download dir: %w", err)
	}

	// 4. Transfer layer
	publisher := progress.NewPublisher()
	coordinator := recovery.NewCoordinator(&recovery.ExponentialBackoff{
		BaseDelay:  cfg.Scheduler.RetryBaseDelay,
		MaxDelay:   retryMaxDelay,
		MaxRetries: cfg.Scheduler.MaxRetries,
		Classifier: proxy.Classify,
	}, netMon)

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		Repo:          store,
		Forwarder:     dispatcher,
		Retrier:       coordinator,
		Sinks:         &sink.ByKind{Content: content, Files: files},
		Content:       content,
		Publisher:     publisher,
		Classify:      proxy.Classify,
	})

	pruner := worker.NewPruner(cfg.Scheduler.Retention, store, content)

	// 5. Health and API surface
	healthMon := health.NewMonitor(registry, limiter, sched, netMon)
	apiServer := api.NewServer(sched, healthMon, content, publisher, cfg.Server.Port)

	return &Service{
		cfg:        cfg,
		registry:   registry,
		limiter:    limiter,
		dispatcher: dispatcher,
		prober:     prober,
		netMon:     netMon,
		scheduler:  sched,
		pruner:     pruner,
		healthMon:  healthMon,
		apiServer:  apiServer,
		log:        slog.Default(),
	}, nil
}
