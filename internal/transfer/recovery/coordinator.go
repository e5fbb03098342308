// Package recovery re-invokes failed operations with exponential backoff,
// bounded by a per-operation attempt budget.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OnlineChecker reports whether the machine currently has connectivity.
type OnlineChecker interface {
	Online() bool
}

// RetryHook observes retry scheduling. It fires after the attempt counter
// is consumed and before the backoff wait.
type RetryHook func(operationID string, attempt int, delay time.Duration, err error)

// Coordinator drives retryable units of work. Attempt counts are keyed by
// operation id and live only while a retried operation is in flight: they
// are cleared on success and on any terminal propagation.
type Coordinator struct {
	strategy RetryStrategy
	online   OnlineChecker
	onRetry  RetryHook

	mu       sync.Mutex
	attempts map[string]int
}

// NewCoordinator creates a coordinator. online may be nil, which disables
// the offline fast-fail.
func NewCoordinator(strategy RetryStrategy, online OnlineChecker) *Coordinator {
	return &Coordinator{
		strategy: strategy,
		online:   online,
		attempts: make(map[string]int),
	}
}

// SetRetryHook registers an observer called before each backoff wait.
func (c *Coordinator) SetRetryHook(hook RetryHook) {
	c.onRetry = hook
}

// Attempts returns the live attempt count for an operation, 0 when idle.
func (c *Coordinator) Attempts(operationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[operationID]
}

// Run invokes work and retries it on retryable failure until it succeeds
// or the operation's budget is spent. Non-retryable failures propagate
// immediately. A known-offline machine also propagates immediately, since
// retrying is certain to fail, without consuming a retry attempt.
func (c *Coordinator) Run(
	ctx context.Context,
	operationID string,
	work func(ctx context.Context) (any, error),
) (any, error) {
	for {
		result, err := work(ctx)
		if err == nil {
			c.clear(operationID)
			return result, nil
		}

		if !c.strategy.ShouldRetry(err, c.Attempts(operationID)) {
			c.clear(operationID)
			return nil, err
		}

		if c.online != nil && !c.online.Online() {
			slog.Warn("Offline, failing fast", "operation", operationID, "error", err)
			c.clear(operationID)
			return nil, err
		}

		attempt := c.increment(operationID)
		delay := c.strategy.GetDelay(attempt)

		if c.onRetry != nil {
			c.onRetry(operationID, attempt, delay, err)
		}
		slog.Debug("Retrying operation",
			"operation", operationID,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			c.clear(operationID)
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Coordinator) increment(operationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[operationID]++
	return c.attempts[operationID]
}

func (c *Coordinator) clear(operationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, operationID)
}
