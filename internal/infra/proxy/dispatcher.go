package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/routing"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/metrics"
)

// Dispatcher forwards target fetches through the best available endpoint,
// rotating to the next one on failure. It owns no endpoint state of its
// own; every outcome is fed back into the registry.
type Dispatcher struct {
	registry     *routing.Registry
	maxBodyBytes int64
}

// NewDispatcher creates a dispatcher. maxBodyBytes caps both the declared
// and the actual response size; 0 disables the ceiling.
func NewDispatcher(registry *routing.Registry, maxBodyBytes int64) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		maxBodyBytes: maxBodyBytes,
	}
}

// NormalizeTarget validates the target scheme. Plain http is upgraded to
// https on the same host and re-validated; any other scheme fails with
// ErrUnsafeTarget.
func NormalizeTarget(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnsafeTarget, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("%w: scheme %q", domain.ErrUnsafeTarget, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", domain.ErrUnsafeTarget)
	}

	return u.String(), nil
}

// Forward fetches target through up to one full rotation of the endpoint
// set. Every attempt, success or failure, consumes the chosen endpoint's
// window budget and updates its circuit counters. The returned body is
// capped at the configured ceiling; reading past it yields ErrBodyTooLarge.
func (d *Dispatcher) Forward(ctx context.Context, target string) (*endpoint.Response, error) {
	normalized, err := NormalizeTarget(target)
	if err != nil {
		return nil, err
	}

	attempts := d.registry.Len()
	var lastErr error

	for i := 0; i < attempts; i++ {
		e, err := d.registry.Select()
		if err != nil {
			return nil, err
		}
		d.registry.MarkAttempt(e.Name())

		resp, err := e.Fetch(ctx, normalized)
		if err != nil {
			lastErr = err
			d.registry.RecordFailure(e.Name(), err)
			metrics.ForwardAttemptsTotal.WithLabelValues(e.Name(), "failure").Inc()
			slog.Debug("Endpoint attempt failed",
				"endpoint", e.Name(),
				"attempt", i+1,
				"error", err)
			continue
		}

		d.registry.RecordSuccess(e.Name())
		metrics.ForwardAttemptsTotal.WithLabelValues(e.Name(), "success").Inc()

		if d.maxBodyBytes > 0 && resp.ContentLength > d.maxBodyBytes {
			resp.Body.Close()
			return nil, fmt.Errorf("declared %d bytes: %w", resp.ContentLength, domain.ErrBodyTooLarge)
		}
		if d.maxBodyBytes > 0 {
			resp.Body = newLimitedBody(resp.Body, d.maxBodyBytes)
		}
		return resp, nil
	}

	if lastErr == nil {
		return nil, domain.ErrNoEndpoints
	}
	return nil, &domain.AllEndpointsFailedError{Attempts: attempts, Last: lastErr}
}

// limitedBody caps how many bytes can be read from the upstream stream.
// A body of exactly the limit still terminates with io.EOF; only actual
// overflow turns into ErrBodyTooLarge.
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func newLimitedBody(rc io.ReadCloser, limit int64) io.ReadCloser {
	return &limitedBody{rc: rc, remaining: limit}
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var probe [1]byte
		n, err := b.rc.Read(probe[:])
		if n > 0 {
			return 0, domain.ErrBodyTooLarge
		}
		return 0, err
	}

	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
