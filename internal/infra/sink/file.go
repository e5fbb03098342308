package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

// Files writes byte transfers into a download directory. Bytes land in a
// .part staging file first; Commit renames it into place, Abort removes
// it, so an interrupted attempt never leaves a half file under the final
// name.
type Files struct {
	dir string
}

func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return &Files{dir: dir}, nil
}

func (f *Files) Create(task *domain.TransferTask) (Sink, error) {
	name := sanitizeName(task.DestinationName)
	if name == "" {
		name = task.ID
	}

	final := filepath.Join(f.dir, name)
	staging := final + ".part"

	file, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open staging file: %w", err)
	}

	return &fileWriter{file: file, staging: staging, final: final}, nil
}

// Path returns where a committed destination name lands.
func (f *Files) Path(destinationName string) string {
	return filepath.Join(f.dir, sanitizeName(destinationName))
}

// sanitizeName strips any directory component so a crafted destination
// name cannot escape the download dir.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

type fileWriter struct {
	file    *os.File
	staging string
	final   string
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *fileWriter) Commit() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(w.staging, w.final); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

func (w *fileWriter) Abort() error {
	w.file.Close()
	return os.Remove(w.staging)
}
