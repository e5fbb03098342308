package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      domain.ErrorKind
		wantRetryable bool
		wantSeverity  domain.Severity
	}{
		{
			name:          "deadline exceeded",
			err:           context.DeadlineExceeded,
			wantKind:      domain.ErrorKindTimeout,
			wantRetryable: true,
			wantSeverity:  domain.SeverityMedium,
		},
		{
			name:          "wrapped deadline",
			err:           fmt.Errorf("forward through relay: %w", context.DeadlineExceeded),
			wantKind:      domain.ErrorKindTimeout,
			wantRetryable: true,
			wantSeverity:  domain.SeverityMedium,
		},
		{
			name:          "status 404",
			err:           &endpoint.StatusError{Endpoint: "relay", Code: 404},
			wantKind:      domain.ErrorKindNotFound,
			wantRetryable: false,
			wantSeverity:  domain.SeverityLow,
		},
		{
			name:          "status 403",
			err:           &endpoint.StatusError{Endpoint: "relay", Code: 403},
			wantKind:      domain.ErrorKindAuth,
			wantRetryable: false,
			wantSeverity:  domain.SeverityMedium,
		},
		{
			name:          "status 503",
			err:           &endpoint.StatusError{Endpoint: "relay", Code: 503},
			wantKind:      domain.ErrorKindServer,
			wantRetryable: true,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "status 400 with cors snippet",
			err:           &endpoint.StatusError{Endpoint: "relay", Code: 400, Snippet: "CORS policy blocked the request"},
			wantKind:      domain.ErrorKindCORS,
			wantRetryable: false,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "connection refused",
			err:           errors.New("dial tcp 10.0.0.1:443: connection refused"),
			wantKind:      domain.ErrorKindNetwork,
			wantRetryable: true,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "certificate failure",
			err:           errors.New("x509: certificate signed by unknown authority"),
			wantKind:      domain.ErrorKindSSL,
			wantRetryable: false,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "unsafe target",
			err:           fmt.Errorf("%w: scheme \"ftp\"", domain.ErrUnsafeTarget),
			wantKind:      domain.ErrorKindUnknown,
			wantRetryable: false,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "no endpoints",
			err:           domain.ErrNoEndpoints,
			wantKind:      domain.ErrorKindNetwork,
			wantRetryable: true,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "oversized body",
			err:           domain.ErrBodyTooLarge,
			wantKind:      domain.ErrorKindUnknown,
			wantRetryable: false,
			wantSeverity:  domain.SeverityMedium,
		},
		{
			name: "all endpoints failed takes last attempt verdict",
			err: &domain.AllEndpointsFailedError{
				Attempts: 3,
				Last:     &endpoint.StatusError{Endpoint: "relay", Code: 502},
			},
			wantKind:      domain.ErrorKindServer,
			wantRetryable: true,
			wantSeverity:  domain.SeverityHigh,
		},
		{
			name:          "anything else",
			err:           errors.New("mysterious failure"),
			wantKind:      domain.ErrorKindUnknown,
			wantRetryable: false,
			wantSeverity:  domain.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			if c.Kind != tt.wantKind {
				t.Errorf("kind: expected %s, got %s", tt.wantKind, c.Kind)
			}
			if c.Retryable != tt.wantRetryable {
				t.Errorf("retryable: expected %v, got %v", tt.wantRetryable, c.Retryable)
			}
			if c.Severity != tt.wantSeverity {
				t.Errorf("severity: expected %s, got %s", tt.wantSeverity, c.Severity)
			}
		})
	}
}

func TestFlagSensitive(t *testing.T) {
	body := []byte(`<html><body><a href="/login?token=abc123">link</a> Bearer XYZ</body></html>`)

	hits := FlagSensitive("text/html; charset=utf-8", body)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %v", len(hits), hits)
	}

	// Non-markup content is never scanned.
	if hits := FlagSensitive("application/octet-stream", body); hits != nil {
		t.Errorf("expected no hits for binary content, got %v", hits)
	}
}
