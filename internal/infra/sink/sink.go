// Package sink provides write destinations for transferred bytes.
//
// A transfer attempt writes into a Sink and then either commits it,
// making the bytes visible, or aborts it, discarding partial output. The
// scheduler opens a fresh sink per attempt so a failed attempt never
// leaks half-written data into the destination.
package sink

import (
	"io"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

// Sink receives one transfer attempt's bytes. Exactly one of Commit or
// Abort must be called once writing ends.
type Sink interface {
	io.Writer

	// Commit finalizes the destination and makes the bytes visible.
	Commit() error

	// Abort discards partial output.
	Abort() error
}

// Factory creates a sink for a task.
type Factory interface {
	Create(task *domain.TransferTask) (Sink, error)
}

// ByKind routes tasks to a destination by task kind: content fetches stay
// in memory for the caller to read back, byte transfers go to files.
type ByKind struct {
	Content *Memory
	Files   *Files
}

func (b *ByKind) Create(task *domain.TransferTask) (Sink, error) {
	if task.Kind == domain.TaskKindByteTransfer {
		return b.Files.Create(task)
	}
	return b.Content.Create(task)
}
