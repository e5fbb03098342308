package domain

import (
	"errors"
	"fmt"
)

// ErrorKind buckets a raw transfer failure for retry decisions and display.
type ErrorKind string

const (
	ErrorKindNetwork  ErrorKind = "network"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindCORS     ErrorKind = "cors"
	ErrorKindSSL      ErrorKind = "ssl"
	ErrorKindNotFound ErrorKind = "notfound"
	ErrorKindAuth     ErrorKind = "auth"
	ErrorKindServer   ErrorKind = "server"
	ErrorKindUnknown  ErrorKind = "unknown"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Classification is the derived verdict on a failure. It is computed on
// demand and never persisted.
type Classification struct {
	Kind      ErrorKind `json:"kind"`
	Retryable bool      `json:"retryable"`
	Severity  Severity  `json:"severity"`
}

var (
	// ErrUnsafeTarget means the target URL is not https and could not be
	// upgraded to it.
	ErrUnsafeTarget = errors.New("target does not use secure transport")

	// ErrNoEndpoints means every configured endpoint is circuit-open or
	// over its rate budget.
	ErrNoEndpoints = errors.New("no endpoints available")

	// ErrBodyTooLarge means a response body exceeded the configured ceiling.
	ErrBodyTooLarge = errors.New("response body exceeds size ceiling")
)

// AllEndpointsFailedError reports that the dispatcher rotated through every
// candidate endpoint without a success. Last carries the final underlying
// failure for classification.
type AllEndpointsFailedError struct {
	Attempts int
	Last     error
}

func (e *AllEndpointsFailedError) Error() string {
	return fmt.Sprintf("all endpoints failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *AllEndpointsFailedError) Unwrap() error {
	return e.Last
}
