package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/storage"
)

// TaskStore is an in-memory TaskRepository. Task state deliberately does
// not survive a process restart.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.TransferTask
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*domain.TransferTask),
	}
}

func (s *TaskStore) Save(ctx context.Context, task *domain.TransferTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneTask(task)
	s.tasks[task.ID] = stored
	return nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*domain.TransferTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (s *TaskStore) List(ctx context.Context) ([]*domain.TransferTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.TransferTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, cloneTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *TaskStore) Update(ctx context.Context, id string, mutate func(*domain.TransferTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return storage.ErrTaskNotFound
	}
	mutate(task)
	return nil
}

func (s *TaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.TaskStatus]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, t := range s.tasks {
		if !t.Status.Terminal() {
			continue
		}
		if !t.CompletedAt.IsZero() && t.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func cloneTask(t *domain.TransferTask) *domain.TransferTask {
	c := *t
	if t.SensitiveHits != nil {
		c.SensitiveHits = append([]string(nil), t.SensitiveHits...)
	}
	return &c
}
