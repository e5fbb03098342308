// Package routing handles endpoint selection, circuit breaking and
// per-endpoint rate limiting.
//
// This package contains:
//   - Registry: the configured endpoint set with health tracking and
//     least-recently-used selection
//   - WindowLimiter: fixed-window per-endpoint request budgets
package routing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
)

// RateChecker is the minimal interface the registry needs from the
// window limiter.
type RateChecker interface {
	Allow(name string) bool
	MarkRequest(name string)
}

type endpointState struct {
	successCount     int
	failureCount     int
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	lastUsedAt       time.Time
	consecutiveFails int
	circuitOpen      bool
	openedAt         time.Time
}

// EndpointStats is a point-in-time snapshot of one endpoint's health.
type EndpointStats struct {
	Name             string    `json:"name"`
	SuccessCount     int       `json:"success_count"`
	FailureCount     int       `json:"failure_count"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	CircuitOpen      bool      `json:"circuit_open"`
	OpenedAt         time.Time `json:"opened_at"`
	LastUsedAt       time.Time `json:"last_used_at"`
	LastSuccessAt    time.Time `json:"last_success_at"`
	LastFailureAt    time.Time `json:"last_failure_at"`
}

// Registry owns the endpoint set and its live circuit state. All counter
// mutations go through registry methods; nothing else writes them.
type Registry struct {
	mu               sync.RWMutex
	endpoints        []*endpoint.Endpoint
	state            map[string]*endpointState
	limiter          RateChecker
	failureThreshold int
	cooldown         time.Duration
}

// NewRegistry creates an empty registry. The limiter may be nil, which
// disables rate filtering.
func NewRegistry(limiter RateChecker, failureThreshold int, cooldown time.Duration) *Registry {
	return &Registry{
		state:            make(map[string]*endpointState),
		limiter:          limiter,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

// Add registers an endpoint.
func (r *Registry) Add(e *endpoint.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints = append(r.endpoints, e)
	r.state[e.Name()] = &endpointState{
		lastSuccessAt: time.Now(),
	}
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Endpoints returns a copy of the registered endpoint list.
func (r *Registry) Endpoints() []*endpoint.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*endpoint.Endpoint, len(r.endpoints))
	copy(result, r.endpoints)
	return result
}

// Select returns the least-recently-used endpoint that is neither
// circuit-open nor over its window budget. An open circuit whose cooldown
// has elapsed is cleared on the spot; the next outcome for that endpoint
// decides whether it stays closed or reopens.
func (r *Registry) Select() (*endpoint.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var best *endpoint.Endpoint
	var bestState *endpointState

	for _, e := range r.endpoints {
		st := r.state[e.Name()]
		if st.circuitOpen {
			if now.Sub(st.openedAt) < r.cooldown {
				continue
			}
			st.circuitOpen = false
			st.openedAt = time.Time{}
			slog.Info("Circuit cooldown elapsed, re-admitting endpoint", "endpoint", e.Name())
		}
		if r.limiter != nil && !r.limiter.Allow(e.Name()) {
			continue
		}
		if best == nil || st.lastUsedAt.Before(bestState.lastUsedAt) {
			best = e
			bestState = st
		}
	}

	if best == nil {
		return nil, domain.ErrNoEndpoints
	}
	return best, nil
}

// MarkAttempt records a dispatched attempt: it refreshes the endpoint's
// last-used timestamp and consumes one unit of its window budget. Called
// for every attempt, success or failure.
func (r *Registry) MarkAttempt(name string) {
	r.mu.Lock()
	if st, ok := r.state[name]; ok {
		st.lastUsedAt = time.Now()
	}
	r.mu.Unlock()

	if r.limiter != nil {
		r.limiter.MarkRequest(name)
	}
}

// RecordSuccess records a successful attempt and closes any open circuit.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.state[name]
	if !ok {
		return
	}

	st.successCount++
	st.lastSuccessAt = time.Now()
	st.consecutiveFails = 0
	if st.circuitOpen {
		st.circuitOpen = false
		st.openedAt = time.Time{}
		slog.Info("Circuit closed", "endpoint", name)
	}
}

// RecordFailure records a failed attempt; reaching the consecutive-failure
// threshold opens the circuit for the cooldown period.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.state[name]
	if !ok {
		return
	}

	st.failureCount++
	st.lastFailureAt = time.Now()
	st.consecutiveFails++

	if st.consecutiveFails >= r.failureThreshold && !st.circuitOpen {
		st.circuitOpen = true
		st.openedAt = time.Now()
		slog.Warn("Circuit opened",
			"endpoint", name,
			"consecutive_failures", st.consecutiveFails,
			"cooldown", r.cooldown,
			"error", err)
	}
}

// Stats returns a snapshot of every endpoint's health state.
func (r *Registry) Stats() []EndpointStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		st := r.state[e.Name()]
		stats = append(stats, EndpointStats{
			Name:             e.Name(),
			SuccessCount:     st.successCount,
			FailureCount:     st.failureCount,
			ConsecutiveFails: st.consecutiveFails,
			CircuitOpen:      st.circuitOpen,
			OpenedAt:         st.openedAt,
			LastUsedAt:       st.lastUsedAt,
			LastSuccessAt:    st.lastSuccessAt,
			LastFailureAt:    st.lastFailureAt,
		})
	}
	return stats
}
