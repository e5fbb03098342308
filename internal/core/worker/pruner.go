package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/infra/sink"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/storage"
)

// Pruner deletes terminal tasks past the retention period, together
// with any response content still buffered for them.
type Pruner struct {
	retention time.Duration
	repo      storage.TaskRepository
	content   *sink.Memory
}

// NewPruner creates a new Pruner worker. content may be nil.
func NewPruner(retention time.Duration, repo storage.TaskRepository, content *sink.Memory) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		content:   content,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	ids, err := p.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Pruning tasks failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	if p.content != nil {
		for _, id := range ids {
			p.content.Remove(id)
		}
	}
	slog.Info("Pruned expired tasks", "count", len(ids), "retention", p.retention)
}
