// Package proxy provides resilient forwarding of target fetches through
// interchangeable relay endpoints.
//
// This package offers:
//   - Multiple endpoint support with URL templating
//   - Circuit breaking and automatic rotation on failure
//   - Fixed-window per-endpoint rate budgets
//   - Error classification into a stable retry taxonomy
//   - Background canary probing so circuits recover without user traffic
//
// # Quick Start
//
//	import "github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy"
//
//	// Setup
//	limiter := proxy.NewWindowLimiter(time.Minute)
//	registry := proxy.NewRegistry(limiter, 3, 5*time.Minute)
//	e := proxy.NewEndpoint("allorigins", "https://api.allorigins.win/raw?url={target}", 15*time.Second, 60)
//	registry.Add(e)
//	limiter.SetLimit(e.Name(), e.RateLimitPerMinute())
//
//	// Forward a fetch
//	dispatcher := proxy.NewDispatcher(registry, 50<<20)
//	resp, err := dispatcher.Forward(ctx, "https://example.org/file.bin")
//
// # Package Structure
//
//   - endpoint/ - Endpoint templating and the HTTP relay transport
//   - routing/  - Registry selection, circuit breaking, window limits
//
// Most types are re-exported at the root level for convenience.
package proxy

import (
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/routing"
)

// =============================================================================
// Re-exported types from endpoint package
// =============================================================================

// Endpoint is one forwarding relay.
type Endpoint = endpoint.Endpoint

// Response is the outcome of a successfully forwarded request.
type Response = endpoint.Response

// StatusError is a non-2xx reply relayed from upstream.
type StatusError = endpoint.StatusError

// NewEndpoint creates an endpoint for a URL template.
func NewEndpoint(name, template string, timeout time.Duration, rateLimitPerMinute int) *Endpoint {
	return endpoint.New(name, template, timeout, rateLimitPerMinute)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Registry owns the endpoint set and its live circuit state.
type Registry = routing.Registry

// EndpointStats is a point-in-time snapshot of one endpoint's health.
type EndpointStats = routing.EndpointStats

// WindowLimiter caps per-endpoint requests inside a fixed window.
type WindowLimiter = routing.WindowLimiter

// NewRegistry creates an empty registry.
func NewRegistry(limiter routing.RateChecker, failureThreshold int, cooldown time.Duration) *Registry {
	return routing.NewRegistry(limiter, failureThreshold, cooldown)
}

// NewWindowLimiter creates a limiter with the given reset window.
func NewWindowLimiter(window time.Duration) *WindowLimiter {
	return routing.NewWindowLimiter(window)
}
