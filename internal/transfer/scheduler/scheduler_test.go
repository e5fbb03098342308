package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/sink"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/storage/memory"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/progress"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/recovery"
)

// ===== Mocks =====

// mockForwarder scripts dispatch outcomes per target and counts calls.
type mockForwarder struct {
	mu       sync.Mutex
	calls    map[string]int
	inflight int
	peak     int
	fn       func(target string, call int) (*endpoint.Response, error)
}

func newMockForwarder(fn func(target string, call int) (*endpoint.Response, error)) *mockForwarder {
	return &mockForwarder{calls: map[string]int{}, fn: fn}
}

func (m *mockForwarder) Forward(_ context.Context, target string) (*endpoint.Response, error) {
	m.mu.Lock()
	m.calls[target]++
	call := m.calls[target]
	m.inflight++
	if m.inflight > m.peak {
		m.peak = m.inflight
	}
	fn := m.fn
	m.mu.Unlock()

	resp, err := fn(target, call)

	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
	return resp, err
}

func (m *mockForwarder) callCount(target string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[target]
}

func (m *mockForwarder) peakInflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func (m *mockForwarder) setFn(fn func(target string, call int) (*endpoint.Response, error)) {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
}

func okResponse(contentType, body string) *endpoint.Response {
	return &endpoint.Response{
		Endpoint:      "mock",
		StatusCode:    200,
		ContentType:   contentType,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(strings.NewReader(body)),
	}
}

// gatedBody blocks every read until the gate channel is closed.
type gatedBody struct {
	gate <-chan struct{}
	data io.Reader
}

func (b *gatedBody) Read(p []byte) (int, error) {
	<-b.gate
	return b.data.Read(p)
}

func (b *gatedBody) Close() error { return nil }

// ===== Helpers =====

func fastRetrier(maxRetries int) *recovery.Coordinator {
	return recovery.NewCoordinator(&recovery.ExponentialBackoff{
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		MaxRetries: maxRetries,
		Classifier: proxy.Classify,
	}, nil)
}

func newTestScheduler(t *testing.T, maxConcurrent int, fwd Forwarder) (*Scheduler, *sink.Memory) {
	t.Helper()
	content := sink.NewMemory()
	files, err := sink.NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("create file sink: %v", err)
	}
	s := New(Config{
		MaxConcurrent: maxConcurrent,
		Repo:          memory.NewTaskStore(),
		Forwarder:     fwd,
		Retrier:       fastRetrier(3),
		Sinks:         &sink.ByKind{Content: content, Files: files},
		Content:       content,
		Publisher:     progress.NewPublisher(),
		Classify:      proxy.Classify,
	})
	return s, content
}

func waitForStatus(t *testing.T, s *Scheduler, id string, want domain.TaskStatus) *domain.TransferTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get task %s: %v", id, err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(2 * time.Millisecond)
	}
	task, _ := s.Get(context.Background(), id)
	t.Fatalf("task %s: status = %s, want %s", id, task.Status, want)
	return nil
}

func stopScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop scheduler: %v", err)
	}
}

// ===== Tests =====

func TestSubmit_RoundTrip(t *testing.T) {
	const body = "<html><body>hello</body></html>"
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		return okResponse("text/html; charset=utf-8", body), nil
	})
	s, content := newTestScheduler(t, 3, fwd)

	submitted, err := s.Submit(context.Background(), SubmitRequest{
		Target:          "https://example.com/page",
		DestinationName: "page.html",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Kind != domain.TaskKindContentFetch {
		t.Errorf("default kind = %s, want %s", submitted.Kind, domain.TaskKindContentFetch)
	}

	task := waitForStatus(t, s, submitted.ID, domain.TaskStatusCompleted)
	if task.ID != submitted.ID {
		t.Errorf("id changed: %s -> %s", submitted.ID, task.ID)
	}
	if task.Target != "https://example.com/page" {
		t.Errorf("target = %q", task.Target)
	}
	if task.DestinationName != "page.html" {
		t.Errorf("destination name = %q", task.DestinationName)
	}
	if task.Progress != 100 {
		t.Errorf("progress = %v, want 100", task.Progress)
	}
	if task.BytesLoaded != int64(len(body)) {
		t.Errorf("bytes loaded = %d, want %d", task.BytesLoaded, len(body))
	}
	if task.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", task.ContentType)
	}
	if task.CompletedAt.IsZero() {
		t.Error("completed task has zero CompletedAt")
	}

	got, ok := content.Bytes(task.ID)
	if !ok || string(got) != body {
		t.Errorf("content sink = %q, ok=%v, want body", got, ok)
	}
	stopScheduler(t, s)
}

func TestSubmit_CapAdmitsAndQueuesFIFO(t *testing.T) {
	gates := map[string]chan struct{}{}
	for i := 1; i <= 4; i++ {
		gates[fmt.Sprintf("https://example.com/%d", i)] = make(chan struct{})
	}
	fwd := newMockForwarder(func(target string, _ int) (*endpoint.Response, error) {
		return &endpoint.Response{
			Endpoint:      "mock",
			StatusCode:    200,
			ContentType:   "application/octet-stream",
			ContentLength: 4,
			Body:          &gatedBody{gate: gates[target], data: strings.NewReader("data")},
		}, nil
	})
	s, _ := newTestScheduler(t, 2, fwd)

	var ids []string
	for i := 1; i <= 4; i++ {
		task, err := s.Submit(context.Background(), SubmitRequest{
			Target: fmt.Sprintf("https://example.com/%d", i),
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, task.ID)

		want := domain.TaskStatusDownloading
		if i > 2 {
			want = domain.TaskStatusQueued
		}
		if task.Status != want {
			t.Fatalf("task %d admitted as %s, want %s", i, task.Status, want)
		}
	}

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Active != 2 || st.Queued != 2 {
		t.Fatalf("stats = %d active / %d queued, want 2/2", st.Active, st.Queued)
	}

	// Finishing one running task promotes exactly the oldest queued one.
	close(gates["https://example.com/1"])
	waitForStatus(t, s, ids[0], domain.TaskStatusCompleted)
	waitForStatus(t, s, ids[2], domain.TaskStatusDownloading)

	fourth, err := s.Get(context.Background(), ids[3])
	if err != nil {
		t.Fatalf("get fourth: %v", err)
	}
	if fourth.Status != domain.TaskStatusQueued {
		t.Errorf("fourth task = %s, want still queued", fourth.Status)
	}

	for _, target := range []string{"https://example.com/2", "https://example.com/3", "https://example.com/4"} {
		close(gates[target])
	}
	for _, id := range ids[1:] {
		waitForStatus(t, s, id, domain.TaskStatusCompleted)
	}

	st, err = s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Active != 0 || st.Queued != 0 {
		t.Errorf("stats after drain = %d active / %d queued, want 0/0", st.Active, st.Queued)
	}
	stopScheduler(t, s)
}

func TestTransfer_RetriesThenSucceeds(t *testing.T) {
	fwd := newMockForwarder(func(_ string, call int) (*endpoint.Response, error) {
		if call <= 2 {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return okResponse("text/plain", "recovered"), nil
	})
	s, _ := newTestScheduler(t, 1, fwd)

	submitted, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/flaky"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	task := waitForStatus(t, s, submitted.ID, domain.TaskStatusCompleted)
	if task.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", task.RetryCount)
	}
	if task.LastError != "" {
		t.Errorf("completed task kept error %q", task.LastError)
	}
	if got := fwd.callCount("https://example.com/flaky"); got != 3 {
		t.Errorf("forward calls = %d, want 3", got)
	}
	stopScheduler(t, s)
}

func TestTransfer_NonRetryableFailsOnce(t *testing.T) {
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		return nil, &endpoint.StatusError{Endpoint: "mock", Code: 404}
	})
	s, _ := newTestScheduler(t, 1, fwd)

	submitted, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/missing"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	task := waitForStatus(t, s, submitted.ID, domain.TaskStatusFailed)
	if task.ErrorKind != domain.ErrorKindNotFound {
		t.Errorf("error kind = %s, want %s", task.ErrorKind, domain.ErrorKindNotFound)
	}
	if task.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", task.RetryCount)
	}
	if got := fwd.callCount("https://example.com/missing"); got != 1 {
		t.Errorf("forward calls = %d, want 1", got)
	}
	stopScheduler(t, s)
}

func TestCancel_QueuedTaskNeverRuns(t *testing.T) {
	gate := make(chan struct{})
	fwd := newMockForwarder(func(target string, _ int) (*endpoint.Response, error) {
		return &endpoint.Response{
			Endpoint:      "mock",
			StatusCode:    200,
			ContentType:   "text/plain",
			ContentLength: 4,
			Body:          &gatedBody{gate: gate, data: strings.NewReader("data")},
		}, nil
	})
	s, _ := newTestScheduler(t, 1, fwd)

	running, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/slow"})
	if err != nil {
		t.Fatalf("submit running: %v", err)
	}
	queued, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/waiting"})
	if err != nil {
		t.Fatalf("submit queued: %v", err)
	}
	if queued.Status != domain.TaskStatusQueued {
		t.Fatalf("second task = %s, want queued", queued.Status)
	}

	if err := s.Cancel(context.Background(), queued.ID); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}

	task := waitForStatus(t, s, queued.ID, domain.TaskStatusCancelled)
	if task.CompletedAt.IsZero() {
		t.Error("cancelled task has zero CompletedAt")
	}

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Active != 1 || st.Queued != 0 {
		t.Errorf("stats = %d active / %d queued, want 1/0", st.Active, st.Queued)
	}

	close(gate)
	waitForStatus(t, s, running.ID, domain.TaskStatusCompleted)

	if got := fwd.callCount("https://example.com/waiting"); got != 0 {
		t.Errorf("cancelled queued task was dispatched %d times", got)
	}
	// Cancelling a terminal task is rejected.
	if err := s.Cancel(context.Background(), queued.ID); err == nil {
		t.Error("cancel of terminal task succeeded")
	}
	stopScheduler(t, s)
}

func TestCancel_RunningTaskDiscardsResult(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		started <- struct{}{}
		return &endpoint.Response{
			Endpoint:      "mock",
			StatusCode:    200,
			ContentType:   "text/html",
			ContentLength: 9,
			Body:          &gatedBody{gate: gate, data: strings.NewReader("partially")},
		}, nil
	})
	s, content := newTestScheduler(t, 1, fwd)

	submitted, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/doomed"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-started
	if err := s.Cancel(context.Background(), submitted.ID); err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	close(gate)

	task := waitForStatus(t, s, submitted.ID, domain.TaskStatusCancelled)
	if task.Status != domain.TaskStatusCancelled {
		t.Fatalf("status = %s", task.Status)
	}
	if _, ok := content.Bytes(submitted.ID); ok {
		t.Error("aborted transfer left bytes in the content sink")
	}
	stopScheduler(t, s)
}

func TestRetry_ReAdmitsFailedTask(t *testing.T) {
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		return nil, &endpoint.StatusError{Endpoint: "mock", Code: 404}
	})
	s, content := newTestScheduler(t, 1, fwd)

	submitted, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/fixme"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForStatus(t, s, submitted.ID, domain.TaskStatusFailed)

	fwd.setFn(func(string, int) (*endpoint.Response, error) {
		return okResponse("text/plain", "fixed"), nil
	})
	if err := s.Retry(context.Background(), submitted.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}

	task := waitForStatus(t, s, submitted.ID, domain.TaskStatusCompleted)
	if task.ID != submitted.ID {
		t.Errorf("retry changed id: %s -> %s", submitted.ID, task.ID)
	}
	if task.RetryCount != 0 {
		t.Errorf("retry count = %d, want reset to 0", task.RetryCount)
	}
	if task.LastError != "" || task.ErrorKind != "" {
		t.Errorf("error state not reset: %q / %s", task.LastError, task.ErrorKind)
	}
	if got, ok := content.Bytes(task.ID); !ok || string(got) != "fixed" {
		t.Errorf("content after retry = %q, ok=%v", got, ok)
	}

	// Only failed tasks are eligible.
	if err := s.Retry(context.Background(), submitted.ID); err == nil {
		t.Error("retry of completed task succeeded")
	}
	stopScheduler(t, s)
}

func TestByteTransfer_WritesNamedFile(t *testing.T) {
	const payload = "binary-payload-bytes"
	dir := t.TempDir()
	files, err := sink.NewFiles(dir)
	if err != nil {
		t.Fatalf("create file sink: %v", err)
	}
	content := sink.NewMemory()
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		return okResponse("application/octet-stream", payload), nil
	})
	s := New(Config{
		MaxConcurrent: 1,
		Repo:          memory.NewTaskStore(),
		Forwarder:     fwd,
		Retrier:       fastRetrier(3),
		Sinks:         &sink.ByKind{Content: content, Files: files},
		Content:       content,
		Classify:      proxy.Classify,
	})

	submitted, err := s.Submit(context.Background(), SubmitRequest{
		Kind:            domain.TaskKindByteTransfer,
		Target:          "https://example.com/asset.bin",
		DestinationName: "asset.bin",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForStatus(t, s, submitted.ID, domain.TaskStatusCompleted)

	got, err := os.ReadFile(filepath.Join(dir, "asset.bin"))
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(got) != payload {
		t.Errorf("file contents = %q, want %q", got, payload)
	}
	if _, err := os.Stat(filepath.Join(dir, "asset.bin.part")); !os.IsNotExist(err) {
		t.Error("staging file was not cleaned up")
	}
	stopScheduler(t, s)
}

func TestContentFetch_FlagsSensitiveMarkup(t *testing.T) {
	const body = `<html><script>var q = "?token=abc123";</script></html>`
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		return okResponse("text/html", body), nil
	})
	s, _ := newTestScheduler(t, 1, fwd)

	submitted, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/leaky"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	task := waitForStatus(t, s, submitted.ID, domain.TaskStatusCompleted)
	if len(task.SensitiveHits) == 0 {
		t.Fatal("sensitive markup was not flagged")
	}
	found := false
	for _, hit := range task.SensitiveHits {
		if hit == "token=" {
			found = true
		}
	}
	if !found {
		t.Errorf("hits = %v, want to include token=", task.SensitiveHits)
	}
	stopScheduler(t, s)
}

func TestScheduler_PeakConcurrencyRespectsCap(t *testing.T) {
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		time.Sleep(5 * time.Millisecond)
		return okResponse("text/plain", "ok"), nil
	})
	s, _ := newTestScheduler(t, 3, fwd)

	var ids []string
	for i := 0; i < 10; i++ {
		task, err := s.Submit(context.Background(), SubmitRequest{
			Target: fmt.Sprintf("https://example.com/load/%d", i),
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, task.ID)
	}
	for _, id := range ids {
		waitForStatus(t, s, id, domain.TaskStatusCompleted)
	}

	if peak := fwd.peakInflight(); peak > 3 {
		t.Errorf("peak concurrent dispatches = %d, cap is 3", peak)
	}
	stopScheduler(t, s)
}

func TestScheduler_EventStreamObservesLifecycle(t *testing.T) {
	pub := progress.NewPublisher()
	content := sink.NewMemory()
	files, err := sink.NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("create file sink: %v", err)
	}
	fwd := newMockForwarder(func(string, int) (*endpoint.Response, error) {
		return okResponse("text/plain", "streamed"), nil
	})
	s := New(Config{
		MaxConcurrent: 1,
		Repo:          memory.NewTaskStore(),
		Forwarder:     fwd,
		Retrier:       fastRetrier(3),
		Sinks:         &sink.ByKind{Content: content, Files: files},
		Content:       content,
		Publisher:     pub,
		Classify:      proxy.Classify,
	})

	events, unsubscribe := pub.Subscribe()
	defer unsubscribe()

	submitted, err := s.Submit(context.Background(), SubmitRequest{Target: "https://example.com/observed"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForStatus(t, s, submitted.ID, domain.TaskStatusCompleted)

	var seen []domain.TaskStatus
	deadline := time.After(time.Second)
	for {
		done := false
		select {
		case ev := <-events:
			if ev.Type == progress.EventState && ev.TaskID == submitted.ID {
				seen = append(seen, ev.Status)
				if ev.Status == domain.TaskStatusCompleted {
					done = true
				}
			}
		case <-deadline:
			t.Fatalf("no completed event, saw %v", seen)
		}
		if done {
			break
		}
	}

	if seen[0] != domain.TaskStatusDownloading {
		t.Errorf("first state event = %s, want downloading", seen[0])
	}
	if seen[len(seen)-1] != domain.TaskStatusCompleted {
		t.Errorf("last state event = %s, want completed", seen[len(seen)-1])
	}
	stopScheduler(t, s)
}
