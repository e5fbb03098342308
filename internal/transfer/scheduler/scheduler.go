// Package scheduler owns transfer tasks end to end: admission under a
// bounded concurrency cap, the per-task state machine, cooperative
// cancellation, and re-admission of failed tasks.
//
// A submitted task either starts immediately (a free slot flips it to
// downloading) or waits in a FIFO queue as queued. When any running
// task reaches a terminal state its slot is released and the oldest
// queued task is promoted. Transfer failures are retried through the
// recovery coordinator; between attempts the task sits in retrying.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/sink"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/storage"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/metrics"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/progress"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/recovery"
)

// progressInterval throttles how often streaming progress is written
// back to the repository and published.
const progressInterval = 200 * time.Millisecond

// errCancelled aborts an in-flight attempt when its task was cancelled.
// It is non-retryable so the coordinator propagates it straight back.
var errCancelled = errors.New("transfer cancelled")

// Forwarder is the dispatch surface a transfer runs through.
type Forwarder interface {
	Forward(ctx context.Context, target string) (*endpoint.Response, error)
}

// Config wires the scheduler's collaborators.
type Config struct {
	// MaxConcurrent caps simultaneously running transfers. Defaults to 3.
	MaxConcurrent int

	Repo      storage.TaskRepository
	Forwarder Forwarder
	Retrier   *recovery.Coordinator
	Sinks     sink.Factory

	// Content, when set, is scanned after a committed content fetch so
	// embedded credential fragments can be flagged on the task.
	Content *sink.Memory

	// Publisher receives state and progress events. Optional.
	Publisher *progress.Publisher

	// Classify buckets transfer failures for display and metrics.
	Classify recovery.Classifier
}

// Scheduler runs transfer tasks under a concurrency cap.
type Scheduler struct {
	cfg Config

	mu     sync.Mutex
	active int
	queue  []string
	cancel map[string]bool

	wg       sync.WaitGroup
	baseCtx  context.Context
	shutdown context.CancelFunc
}

// New creates a scheduler and installs its retry hook on the
// coordinator, so task retry counts track coordinator attempts.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Classify == nil {
		cfg.Classify = func(error) domain.Classification {
			return domain.Classification{Kind: domain.ErrorKindUnknown, Severity: domain.SeverityMedium}
		}
	}
	if cfg.Retrier == nil {
		cfg.Retrier = recovery.NewCoordinator(recovery.DefaultBackoff(cfg.Classify), nil)
	}

	s := &Scheduler{
		cfg:    cfg,
		cancel: make(map[string]bool),
	}
	s.baseCtx, s.shutdown = context.WithCancel(context.Background())
	cfg.Retrier.SetRetryHook(s.onRetry)
	return s
}

// SubmitRequest describes a new transfer.
type SubmitRequest struct {
	Kind            domain.TaskKind
	Target          string
	DestinationName string
}

// Submit records a new task and admits it. Submission always succeeds:
// target validation happens on dispatch, and a bad target surfaces as a
// failed task rather than a rejected submission. The returned snapshot
// already reflects admission, downloading or queued.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*domain.TransferTask, error) {
	kind := req.Kind
	if kind == "" {
		kind = domain.TaskKindContentFetch
	}

	task := &domain.TransferTask{
		ID:              uuid.New().String(),
		Kind:            kind,
		Target:          req.Target,
		DestinationName: req.DestinationName,
		Status:          domain.TaskStatusPending,
		BytesTotal:      -1,
		CreatedAt:       time.Now(),
	}
	if err := s.cfg.Repo.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	slog.Info("Task submitted",
		"task", task.ID,
		"kind", kind,
		"target", req.Target)

	s.admit(ctx, task.ID)
	return s.cfg.Repo.Get(ctx, task.ID)
}

// Cancel stops a task. A queued task is removed from the queue and
// finalized immediately without touching the slot count. A running task
// gets a cooperative stop request: the transfer observes it between
// writes or at the next attempt boundary and its result is discarded.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	task, err := s.cfg.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already %s", id, task.Status)
	}

	s.mu.Lock()
	for i, queued := range s.queue {
		if queued != id {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.update(id, func(t *domain.TransferTask) {
			t.Status = domain.TaskStatusCancelled
			t.CompletedAt = time.Now()
		})
		s.mu.Unlock()
		s.publishState(id, domain.TaskStatusCancelled, nil)
		slog.Info("Queued task cancelled", "task", id)
		return nil
	}
	s.cancel[id] = true
	s.mu.Unlock()

	// The task may have gone terminal while the flag was being set.
	if t, err := s.cfg.Repo.Get(ctx, id); err == nil && t.Status.Terminal() {
		s.clearCancel(id)
	}
	slog.Info("Cancellation requested", "task", id)
	return nil
}

// Retry re-admits a failed task under its original ID with counters and
// error state reset. Only failed tasks are eligible.
func (s *Scheduler) Retry(ctx context.Context, id string) error {
	var eligible bool
	err := s.cfg.Repo.Update(ctx, id, func(t *domain.TransferTask) {
		if t.Status != domain.TaskStatusFailed {
			return
		}
		eligible = true
		t.Status = domain.TaskStatusPending
		t.Progress = 0
		t.BytesLoaded = 0
		t.BytesTotal = -1
		t.RetryCount = 0
		t.LastError = ""
		t.ErrorKind = ""
		t.SensitiveHits = nil
		t.StartedAt = time.Time{}
		t.CompletedAt = time.Time{}
	})
	if err != nil {
		return err
	}
	if !eligible {
		task, err := s.cfg.Repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("task %s is %s, only failed tasks can be retried", id, task.Status)
	}

	s.clearCancel(id)
	slog.Info("Task re-admitted", "task", id)
	s.admit(ctx, id)
	return nil
}

// Get returns a task snapshot.
func (s *Scheduler) Get(ctx context.Context, id string) (*domain.TransferTask, error) {
	return s.cfg.Repo.Get(ctx, id)
}

// List returns all known tasks, newest first.
func (s *Scheduler) List(ctx context.Context) ([]*domain.TransferTask, error) {
	return s.cfg.Repo.List(ctx)
}

// Stats is a point-in-time snapshot of scheduler occupancy.
type Stats struct {
	Active   int                       `json:"active"`
	Queued   int                       `json:"queued"`
	ByStatus map[domain.TaskStatus]int `json:"by_status"`
}

func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	st := Stats{Active: s.active, Queued: len(s.queue)}
	s.mu.Unlock()

	counts, err := s.cfg.Repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.ByStatus = counts
	return st, nil
}

// Stop waits for in-flight transfers to finish. When ctx expires first,
// the remaining transfers are aborted and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.shutdown()
		return ctx.Err()
	}
}

// admit starts id immediately when a slot is free, otherwise appends it
// to the FIFO queue as queued.
func (s *Scheduler) admit(ctx context.Context, id string) {
	s.mu.Lock()
	if s.active < s.cfg.MaxConcurrent {
		s.active++
		s.mu.Unlock()
		s.begin(id)
		return
	}
	s.queue = append(s.queue, id)
	s.update(id, func(t *domain.TransferTask) {
		t.Status = domain.TaskStatusQueued
	})
	s.mu.Unlock()
	s.publishState(id, domain.TaskStatusQueued, nil)
}

// begin marks id downloading and spawns its transfer goroutine. The
// caller has already taken a concurrency slot for it.
func (s *Scheduler) begin(id string) {
	now := time.Now()
	s.update(id, func(t *domain.TransferTask) {
		t.Status = domain.TaskStatusDownloading
		if t.StartedAt.IsZero() {
			t.StartedAt = now
		}
	})
	s.publishState(id, domain.TaskStatusDownloading, nil)

	s.wg.Add(1)
	go s.run(id)
}

// run drives one task to a terminal state and then releases its slot.
func (s *Scheduler) run(id string) {
	defer s.wg.Done()

	start := time.Now()
	_, err := s.cfg.Retrier.Run(s.baseCtx, id, func(ctx context.Context) (any, error) {
		return nil, s.attempt(ctx, id)
	})

	switch {
	case err == nil:
		s.finish(id, start)
	case errors.Is(err, errCancelled):
		s.finalizeCancelled(id)
	default:
		s.fail(id, err)
	}

	s.release(id)
}

// attempt performs one full dispatch-and-store round. Each retry
// invocation opens a fresh sink, so a failed attempt never leaks
// partial output into the destination.
func (s *Scheduler) attempt(ctx context.Context, id string) error {
	if s.cancelRequested(id) {
		return errCancelled
	}

	task, err := s.cfg.Repo.Get(ctx, id)
	if err != nil {
		return err
	}

	// Attempts re-entered after a backoff come back from retrying.
	var resumed bool
	s.update(id, func(t *domain.TransferTask) {
		if t.Status != domain.TaskStatusDownloading {
			t.Status = domain.TaskStatusDownloading
			resumed = true
		}
	})
	if resumed {
		s.publishState(id, domain.TaskStatusDownloading, nil)
	}

	resp, err := s.cfg.Forwarder.Forward(ctx, task.Target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := s.cfg.Sinks.Create(task)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}

	total := resp.ContentLength
	s.update(id, func(t *domain.TransferTask) {
		t.BytesTotal = total
		t.ContentType = resp.ContentType
		t.BytesLoaded = 0
		t.Progress = 0
	})

	counter := &progressWriter{scheduler: s, taskID: id, total: total}
	written, err := io.Copy(io.MultiWriter(out, counter), resp.Body)
	if err != nil {
		out.Abort()
		if errors.Is(err, errCancelled) {
			return errCancelled
		}
		return fmt.Errorf("stream body: %w", err)
	}
	if err := out.Commit(); err != nil {
		return fmt.Errorf("commit sink: %w", err)
	}

	var hits []string
	if task.Kind == domain.TaskKindContentFetch && s.cfg.Content != nil {
		if body, ok := s.cfg.Content.Bytes(id); ok {
			hits = proxy.FlagSensitive(resp.ContentType, body)
		}
		if len(hits) > 0 {
			slog.Warn("Sensitive content flagged", "task", id, "patterns", hits)
		}
	}

	s.update(id, func(t *domain.TransferTask) {
		t.BytesLoaded = written
		t.BytesTotal = written
		t.Progress = 100
		if hits != nil {
			t.SensitiveHits = hits
		}
	})
	s.publishProgress(id, written, written)
	metrics.TransferBytesTotal.WithLabelValues(string(task.Kind)).Add(float64(written))
	return nil
}

// onRetry is the coordinator's retry hook: the task sits in retrying
// for the backoff window and its retry count tracks the coordinator's
// attempt number.
func (s *Scheduler) onRetry(operationID string, attempt int, delay time.Duration, cause error) {
	c := s.cfg.Classify(cause)
	var kind domain.TaskKind
	s.update(operationID, func(t *domain.TransferTask) {
		t.Status = domain.TaskStatusRetrying
		t.RetryCount = attempt
		t.LastError = cause.Error()
		t.ErrorKind = c.Kind
		kind = t.Kind
	})
	metrics.TaskRetriesTotal.WithLabelValues(string(kind)).Inc()
	s.publishState(operationID, domain.TaskStatusRetrying, cause)
	slog.Info("Transfer attempt failed, backing off",
		"task", operationID,
		"attempt", attempt,
		"delay", delay,
		"error_kind", c.Kind,
		"error", cause)
}

func (s *Scheduler) finish(id string, start time.Time) {
	var kind domain.TaskKind
	s.update(id, func(t *domain.TransferTask) {
		t.Status = domain.TaskStatusCompleted
		t.Progress = 100
		t.CompletedAt = time.Now()
		t.LastError = ""
		t.ErrorKind = ""
		kind = t.Kind
	})
	metrics.TransferDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	s.publishState(id, domain.TaskStatusCompleted, nil)
	slog.Info("Transfer completed", "task", id, "duration", time.Since(start))
}

func (s *Scheduler) fail(id string, cause error) {
	c := s.cfg.Classify(cause)
	s.update(id, func(t *domain.TransferTask) {
		t.Status = domain.TaskStatusFailed
		t.LastError = cause.Error()
		t.ErrorKind = c.Kind
		t.CompletedAt = time.Now()
	})
	metrics.TransferErrorsTotal.WithLabelValues(string(c.Kind)).Inc()
	s.publishState(id, domain.TaskStatusFailed, cause)
	slog.Warn("Transfer failed",
		"task", id,
		"error_kind", c.Kind,
		"severity", c.Severity,
		"error", cause)
}

func (s *Scheduler) finalizeCancelled(id string) {
	s.update(id, func(t *domain.TransferTask) {
		t.Status = domain.TaskStatusCancelled
		t.CompletedAt = time.Now()
	})
	s.publishState(id, domain.TaskStatusCancelled, nil)
	slog.Info("Transfer cancelled", "task", id)
}

// release gives the slot back and promotes the oldest queued task.
func (s *Scheduler) release(id string) {
	s.clearCancel(id)

	s.mu.Lock()
	s.active--
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.active++
	s.mu.Unlock()

	s.begin(next)
}

func (s *Scheduler) cancelRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel[id]
}

func (s *Scheduler) clearCancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancel, id)
}

func (s *Scheduler) update(id string, mutate func(*domain.TransferTask)) {
	if err := s.cfg.Repo.Update(context.Background(), id, mutate); err != nil {
		slog.Error("Task update failed", "task", id, "error", err)
	}
}

func (s *Scheduler) recordProgress(id string, loaded, total int64) {
	var pct float64
	if total > 0 {
		pct = float64(loaded) / float64(total) * 100
		if pct > 100 {
			pct = 100
		}
	}
	s.update(id, func(t *domain.TransferTask) {
		t.BytesLoaded = loaded
		t.Progress = pct
	})
	s.publishProgress(id, loaded, total)
}

func (s *Scheduler) publishState(id string, status domain.TaskStatus, cause error) {
	if s.cfg.Publisher == nil {
		return
	}
	ev := progress.Event{Type: progress.EventState, TaskID: id, Status: status}
	if cause != nil {
		c := s.cfg.Classify(cause)
		ev.Error = cause.Error()
		ev.Kind = c.Kind
	}
	s.cfg.Publisher.Publish(ev)
}

func (s *Scheduler) publishProgress(id string, loaded, total int64) {
	if s.cfg.Publisher == nil {
		return
	}
	s.cfg.Publisher.Publish(progress.Event{
		Type:   progress.EventProgress,
		TaskID: id,
		Loaded: loaded,
		Total:  total,
	})
}

// progressWriter counts streamed bytes and publishes throttled progress
// updates. A cancellation request surfaces here as a write error so the
// copy stops consuming the body.
type progressWriter struct {
	scheduler *Scheduler
	taskID    string
	total     int64
	loaded    int64
	lastFlush time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	if w.scheduler.cancelRequested(w.taskID) {
		return 0, errCancelled
	}
	w.loaded += int64(len(p))
	if time.Since(w.lastFlush) >= progressInterval {
		w.lastFlush = time.Now()
		w.scheduler.recordProgress(w.taskID, w.loaded, w.total)
	}
	return len(p), nil
}
