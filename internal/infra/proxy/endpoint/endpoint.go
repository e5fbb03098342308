package endpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// placeholder marks where the target address goes in a URL template.
const placeholder = "{target}"

const userAgent = "web-browser-downloader/1.0"

// Endpoint is one forwarding relay. The struct itself is immutable after
// construction; live counters (window usage, last-used, circuit state) are
// owned by the routing registry.
type Endpoint struct {
	name               string
	template           string
	timeout            time.Duration
	rateLimitPerMinute int
	httpClient         *http.Client
}

// New creates an endpoint for a URL template. Templates embed the target
// either as a query parameter or as a path suffix; a template without the
// {target} placeholder gets the raw target appended.
func New(name, template string, timeout time.Duration, rateLimitPerMinute int) *Endpoint {
	return &Endpoint{
		name:               name,
		template:           template,
		timeout:            timeout,
		rateLimitPerMinute: rateLimitPerMinute,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the endpoint's identity.
func (e *Endpoint) Name() string {
	return e.name
}

// Timeout returns the per-request timeout.
func (e *Endpoint) Timeout() time.Duration {
	return e.timeout
}

// RateLimitPerMinute returns the window request budget.
func (e *Endpoint) RateLimitPerMinute() int {
	return e.rateLimitPerMinute
}

// BuildURL renders the forwarded address for a target. A placeholder inside
// the query string receives the query-escaped target; a path-position
// placeholder takes it raw.
func (e *Endpoint) BuildURL(target string) string {
	idx := strings.Index(e.template, placeholder)
	if idx < 0 {
		return e.template + target
	}
	if q := strings.Index(e.template, "?"); q >= 0 && q < idx {
		return strings.Replace(e.template, placeholder, url.QueryEscape(target), 1)
	}
	return strings.Replace(e.template, placeholder, target, 1)
}

// Response is the outcome of a successfully forwarded request. Body is the
// live upstream stream; the caller owns closing it.
type Response struct {
	Endpoint      string
	StatusCode    int
	ContentType   string
	ContentLength int64 // -1 when the relay did not declare one
	Body          io.ReadCloser
}

// StatusError is a non-2xx reply relayed from upstream.
type StatusError struct {
	Endpoint string
	Code     int
	Snippet  string
}

func (e *StatusError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("endpoint %s: http %d: %s", e.Endpoint, e.Code, e.Snippet)
	}
	return fmt.Sprintf("endpoint %s: http %d", e.Endpoint, e.Code)
}

// Fetch forwards a GET for target through this endpoint. Non-2xx replies
// come back as *StatusError with a short body snippet for classification.
func (e *Endpoint) Fetch(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BuildURL(target), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward through %s: %w", e.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := readSnippet(resp.Body, 256)
		resp.Body.Close()
		return nil, &StatusError{Endpoint: e.name, Code: resp.StatusCode, Snippet: snippet}
	}

	return &Response{
		Endpoint:      e.name,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

// Close releases idle connections.
func (e *Endpoint) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

func readSnippet(r io.Reader, n int64) string {
	b, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
