package routing

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter caps per-endpoint requests inside a fixed window. Counters
// are zeroed wholesale on every window boundary rather than per-endpoint;
// Allow is a pure read.
type WindowLimiter struct {
	mu          sync.RWMutex
	window      time.Duration
	limits      map[string]int
	counts      map[string]int
	windowStart time.Time
}

// NewWindowLimiter creates a limiter with the given reset window.
func NewWindowLimiter(window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		window:      window,
		limits:      make(map[string]int),
		counts:      make(map[string]int),
		windowStart: time.Now(),
	}
}

// SetLimit registers an endpoint's per-window budget. A limit of 0 means
// unlimited.
func (l *WindowLimiter) SetLimit(name string, perWindow int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[name] = perWindow
}

// Allow reports whether the endpoint is still under its window budget.
func (l *WindowLimiter) Allow(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := l.limits[name]
	if limit <= 0 {
		return true
	}
	return l.counts[name] < limit
}

// MarkRequest consumes one unit of the endpoint's window budget.
func (l *WindowLimiter) MarkRequest(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[name]++
}

// Usage returns a copy of the current window's per-endpoint counts.
func (l *WindowLimiter) Usage() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	usage := make(map[string]int, len(l.counts))
	for name, count := range l.counts {
		usage[name] = count
	}
	return usage
}

// Limit returns the configured budget for an endpoint.
func (l *WindowLimiter) Limit(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits[name]
}

// NextResetAt returns when the current window ends.
func (l *WindowLimiter) NextResetAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.windowStart.Add(l.window)
}

// Reset zeroes all counters and starts a fresh window.
func (l *WindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts = make(map[string]int)
	l.windowStart = time.Now()
}

// Run resets the window on a fixed interval until the context is done.
func (l *WindowLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Reset()
		}
	}
}
