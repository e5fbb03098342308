package domain

import "time"

// TransferTask represents one scheduled transfer tracked from admission
// to a terminal outcome.
type TransferTask struct {
	ID              string     `json:"id"`
	Kind            TaskKind   `json:"kind"`
	Target          string     `json:"target"`
	DestinationName string     `json:"destination_name,omitempty"`
	Status          TaskStatus `json:"status"`
	Progress        float64    `json:"progress"`
	BytesLoaded     int64      `json:"bytes_loaded"`
	BytesTotal      int64      `json:"bytes_total"`
	ContentType     string     `json:"content_type,omitempty"`
	RetryCount      int        `json:"retry_count"`
	LastError       string     `json:"last_error,omitempty"`
	ErrorKind       ErrorKind  `json:"error_kind,omitempty"`
	SensitiveHits   []string   `json:"sensitive_hits,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     time.Time  `json:"completed_at"`
}

type TaskKind string

const (
	TaskKindContentFetch TaskKind = "content-fetch"
	TaskKindByteTransfer TaskKind = "byte-transfer"
)

type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusQueued      TaskStatus = "queued"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusRetrying    TaskStatus = "retrying"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
	TaskStatusCancelled   TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
