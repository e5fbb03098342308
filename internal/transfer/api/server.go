// Package api exposes the downloader over HTTP: task submission and
// control, health probes, Prometheus metrics, and a live event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/sink"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/storage"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/health"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/progress"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/scheduler"
)

// TaskService is the scheduler surface the API drives.
type TaskService interface {
	Submit(ctx context.Context, req scheduler.SubmitRequest) (*domain.TransferTask, error)
	Cancel(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.TransferTask, error)
	List(ctx context.Context) ([]*domain.TransferTask, error)
	Stats(ctx context.Context) (scheduler.Stats, error)
}

// Server provides the HTTP endpoints for the downloader.
type Server struct {
	tasks     TaskService
	monitor   *health.Monitor
	content   *sink.Memory
	publisher *progress.Publisher
	server    *http.Server
}

// NewServer creates a new API server listening on port.
func NewServer(
	tasks TaskService,
	monitor *health.Monitor,
	content *sink.Memory,
	publisher *progress.Publisher,
	port int,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		tasks:     tasks,
		monitor:   monitor,
		content:   content,
		publisher: publisher,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /tasks", s.handleSubmit)
	mux.HandleFunc("GET /tasks", s.handleList)
	mux.HandleFunc("GET /tasks/{id}", s.handleGet)
	mux.HandleFunc("GET /tasks/{id}/content", s.handleContent)
	mux.HandleFunc("POST /tasks/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /tasks/{id}/retry", s.handleRetry)
	mux.HandleFunc("GET /events", s.handleEvents)

	return s
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and blocks until it shuts down.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": report.SystemStatus,
		"online": report.Online,
	})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type submitRequest struct {
	Kind            string `json:"kind"`
	Target          string `json:"target"`
	DestinationName string `json:"destination_name"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	var kind domain.TaskKind
	switch req.Kind {
	case "", string(domain.TaskKindContentFetch):
		kind = domain.TaskKindContentFetch
	case string(domain.TaskKindByteTransfer):
		kind = domain.TaskKindByteTransfer
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", req.Kind))
		return
	}

	task, err := s.tasks.Submit(r.Context(), scheduler.SubmitRequest{
		Kind:            kind,
		Target:          req.Target,
		DestinationName: req.DestinationName,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleContent serves the stored body of a completed content fetch.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if task.Kind != domain.TaskKindContentFetch {
		writeError(w, http.StatusConflict, "task is not a content fetch")
		return
	}
	if task.Status != domain.TaskStatusCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("task is %s, content is available once completed", task.Status))
		return
	}

	body, ok := s.content.Bytes(id)
	if !ok {
		writeError(w, http.StatusNotFound, "content no longer retained")
		return
	}

	contentType := task.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tasks.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tasks.Retry(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retry admitted"})
}

// handleEvents streams task lifecycle events as server-sent events.
// Clients attaching mid-flight see only events from then on.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := s.publisher.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
