package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ForwardAttemptsTotal tracks dispatched attempts per endpoint and outcome
	ForwardAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloader_forward_attempts_total",
			Help: "Total number of forwarded request attempts",
		},
		[]string{"endpoint", "outcome"},
	)

	// TransferErrorsTotal tracks classified transfer failures
	TransferErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloader_transfer_errors_total",
			Help: "Total number of classified transfer errors",
		},
		[]string{"kind"},
	)

	// TaskRetriesTotal tracks task-level retry attempts
	TaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloader_task_retries_total",
			Help: "Total number of task retry attempts",
		},
		[]string{"kind"},
	)

	// TasksByStatus tracks how many tasks sit in each state
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "downloader_tasks_by_status",
			Help: "Number of tasks per status",
		},
		[]string{"status"},
	)

	// ActiveTransfers tracks transfers holding a concurrency slot
	ActiveTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "downloader_active_transfers",
			Help: "Transfers currently holding a concurrency slot",
		},
	)

	// QueuedTransfers tracks transfers waiting for a slot
	QueuedTransfers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "downloader_queued_transfers",
			Help: "Transfers waiting for a concurrency slot",
		},
	)

	// CircuitOpen reports whether an endpoint's circuit is open
	CircuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "downloader_circuit_open",
			Help: "Whether the endpoint circuit is open (1) or closed (0)",
		},
		[]string{"endpoint"},
	)

	// EndpointWindowRequests tracks requests in the current rate window
	EndpointWindowRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "downloader_endpoint_window_requests",
			Help: "Requests issued in the current rate window",
		},
		[]string{"endpoint"},
	)

	// TransferBytesTotal tracks bytes moved to sinks
	TransferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloader_transfer_bytes_total",
			Help: "Total bytes written to transfer destinations",
		},
		[]string{"kind"},
	)

	// TransferDuration tracks how long completed transfers took
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "downloader_transfer_duration_seconds",
			Help:    "Duration of completed transfers in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
