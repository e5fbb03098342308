package sink

import (
	"bytes"
	"sync"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

// Memory keeps committed content in per-task buffers. Used for
// content-fetch tasks whose result the caller reads back over the API.
type Memory struct {
	mu      sync.RWMutex
	content map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		content: make(map[string][]byte),
	}
}

func (m *Memory) Create(task *domain.TransferTask) (Sink, error) {
	return &memoryWriter{store: m, id: task.ID}, nil
}

// Bytes returns the committed content for a task.
func (m *Memory) Bytes(taskID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.content[taskID]
	return b, ok
}

// Remove drops a task's committed content.
func (m *Memory) Remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, taskID)
}

type memoryWriter struct {
	store *Memory
	id    string
	buf   bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memoryWriter) Commit() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.content[w.id] = w.buf.Bytes()
	return nil
}

func (w *memoryWriter) Abort() error {
	w.buf.Reset()
	return nil
}
