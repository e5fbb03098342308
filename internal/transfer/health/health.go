// Package health aggregates dispatch and transfer signals into a
// system status report.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// EndpointHealth is one relay endpoint's verdict.
type EndpointHealth struct {
	Name             string       `json:"name"`
	Status           SystemStatus `json:"status"`
	CircuitOpen      bool         `json:"circuit_open"`
	ConsecutiveFails int          `json:"consecutive_fails"`
	WindowUsed       int          `json:"window_used"`
	WindowLimit      int          `json:"window_limit"`
}

// TaskCounts summarizes scheduler occupancy.
type TaskCounts struct {
	Active   int `json:"active"`
	Queued   int `json:"queued"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus              `json:"system_status"`
	Online       bool                      `json:"online"`
	Endpoints    map[string]EndpointHealth `json:"endpoints"`
	Tasks        TaskCounts                `json:"tasks"`
}
