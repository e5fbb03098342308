package storage

import (
	"context"
	"errors"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

var (
	// ErrTaskNotFound is returned when a task doesn't exist
	ErrTaskNotFound = errors.New("task not found")
)

// TaskRepository handles transfer task storage. The scheduler is the only
// writer; read surfaces (API, CLI, health) consume copies.
type TaskRepository interface {
	// Save stores or replaces a task
	Save(ctx context.Context, task *domain.TransferTask) error

	// Get retrieves a copy of a task by id
	Get(ctx context.Context, id string) (*domain.TransferTask, error)

	// List retrieves copies of all tasks, newest first
	List(ctx context.Context) ([]*domain.TransferTask, error)

	// Update applies mutate to the stored task under the store lock, so
	// compound transitions (status + error + timestamps) stay atomic
	Update(ctx context.Context, id string, mutate func(*domain.TransferTask)) error

	// CountByStatus returns the number of tasks per status
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)

	// DeleteTerminalBefore removes terminal tasks that completed before
	// cutoff and returns the removed ids
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
