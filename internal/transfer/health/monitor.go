package health

import (
	"context"
	"sync"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/routing"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/scheduler"
)

// EndpointStats exposes the registry's live circuit counters.
type EndpointStats interface {
	Stats() []routing.EndpointStats
}

// WindowUsage exposes the limiter's current window occupancy.
type WindowUsage interface {
	Usage() map[string]int
	Limit(name string) int
}

// TaskStats exposes scheduler occupancy.
type TaskStats interface {
	Stats(ctx context.Context) (scheduler.Stats, error)
}

// OnlineChecker reports machine connectivity.
type OnlineChecker interface {
	Online() bool
}

// reportTTL rate limits report rebuilds so hot polling stays cheap.
const reportTTL = 10 * time.Second

// Monitor aggregates health status from the dispatch and transfer layers.
type Monitor struct {
	endpoints EndpointStats
	windows   WindowUsage
	tasks     TaskStats
	online    OnlineChecker

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a new health monitor. Any collaborator may be nil;
// its signal is then skipped.
func NewMonitor(endpoints EndpointStats, windows WindowUsage, tasks TaskStats, online OnlineChecker) *Monitor {
	return &Monitor{
		endpoints: endpoints,
		windows:   windows,
		tasks:     tasks,
		online:    online,
	}
}

// CheckHealth builds the current report, reusing the cached one while
// it is fresh.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < reportTTL {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Online:       true,
		Endpoints:    make(map[string]EndpointHealth),
	}
	if m.online != nil {
		report.Online = m.online.Online()
	}

	usage := map[string]int{}
	if m.windows != nil {
		usage = m.windows.Usage()
	}

	var total, open int
	if m.endpoints != nil {
		for _, st := range m.endpoints.Stats() {
			total++
			eh := EndpointHealth{
				Name:             st.Name,
				Status:           StatusHealthy,
				CircuitOpen:      st.CircuitOpen,
				ConsecutiveFails: st.ConsecutiveFails,
				WindowUsed:       usage[st.Name],
			}
			if m.windows != nil {
				eh.WindowLimit = m.windows.Limit(st.Name)
			}

			switch {
			case st.CircuitOpen:
				eh.Status = StatusCritical
				open++
			case st.ConsecutiveFails > 0 || (eh.WindowLimit > 0 && eh.WindowUsed >= eh.WindowLimit):
				eh.Status = StatusDegraded
			}
			report.Endpoints[st.Name] = eh
		}
	}

	if m.tasks != nil {
		if st, err := m.tasks.Stats(ctx); err == nil {
			report.Tasks = TaskCounts{
				Active:   st.Active,
				Queued:   st.Queued,
				Retrying: st.ByStatus[domain.TaskStatusRetrying],
				Failed:   st.ByStatus[domain.TaskStatusFailed],
			}
		}
	}

	// Worst case wins: no connectivity, or no endpoint left to dispatch
	// through, is an outage. Anything less is degradation.
	switch {
	case !report.Online, total > 0 && open == total:
		report.SystemStatus = StatusCritical
	default:
		for _, eh := range report.Endpoints {
			if eh.Status != StatusHealthy {
				report.SystemStatus = StatusDegraded
				break
			}
		}
		if report.SystemStatus == StatusHealthy && report.Tasks.Queued > 100 {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
