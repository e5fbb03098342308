package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/infra/proxy/endpoint"
)

// Classify maps a raw transfer failure onto the error taxonomy. The verdict
// drives both retry decisions and user-facing display; raw transport errors
// never cross the package boundary unclassified.
func Classify(err error) domain.Classification {
	if err == nil {
		return domain.Classification{Kind: domain.ErrorKindUnknown, Retryable: false, Severity: domain.SeverityMedium}
	}

	// Sentinels carry their own retry semantics.
	if errors.Is(err, domain.ErrUnsafeTarget) {
		return domain.Classification{Kind: domain.ErrorKindUnknown, Retryable: false, Severity: domain.SeverityHigh}
	}
	if errors.Is(err, domain.ErrNoEndpoints) {
		// Recoverable once a circuit closes or a window resets; the
		// caller-level retry backoff is what waits that out.
		return domain.Classification{Kind: domain.ErrorKindNetwork, Retryable: true, Severity: domain.SeverityHigh}
	}
	if errors.Is(err, domain.ErrBodyTooLarge) {
		return domain.Classification{Kind: domain.ErrorKindUnknown, Retryable: false, Severity: domain.SeverityMedium}
	}

	// A full rotation failure takes the verdict of its last attempt.
	var allFailed *domain.AllEndpointsFailedError
	if errors.As(err, &allFailed) && allFailed.Last != nil {
		return Classify(allFailed.Last)
	}

	var statusErr *endpoint.StatusError
	if errors.As(err, &statusErr) {
		if c, ok := classifyStatus(statusErr.Code); ok {
			return c
		}
		// Unmapped codes fall through to message inspection; relays
		// often explain the real failure in the body snippet.
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Classification{Kind: domain.ErrorKindTimeout, Retryable: true, Severity: domain.SeverityMedium}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Classification{Kind: domain.ErrorKindTimeout, Retryable: true, Severity: domain.SeverityMedium}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.Classification{Kind: domain.ErrorKindNetwork, Retryable: true, Severity: domain.SeverityHigh}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.Classification{Kind: domain.ErrorKindNetwork, Retryable: true, Severity: domain.SeverityHigh}
	}

	return classifyMessage(err.Error())
}

func classifyStatus(code int) (domain.Classification, bool) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.Classification{Kind: domain.ErrorKindAuth, Retryable: false, Severity: domain.SeverityMedium}, true
	case code == http.StatusNotFound || code == http.StatusGone:
		return domain.Classification{Kind: domain.ErrorKindNotFound, Retryable: false, Severity: domain.SeverityLow}, true
	case code == http.StatusRequestTimeout:
		return domain.Classification{Kind: domain.ErrorKindTimeout, Retryable: true, Severity: domain.SeverityMedium}, true
	case code == http.StatusTooManyRequests:
		return domain.Classification{Kind: domain.ErrorKindServer, Retryable: true, Severity: domain.SeverityMedium}, true
	case code >= 500:
		return domain.Classification{Kind: domain.ErrorKindServer, Retryable: true, Severity: domain.SeverityHigh}, true
	}
	return domain.Classification{}, false
}

func classifyMessage(msg string) domain.Classification {
	s := strings.ToLower(msg)

	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "timed out") ||
		strings.Contains(s, "deadline exceeded"):
		return domain.Classification{Kind: domain.ErrorKindTimeout, Retryable: true, Severity: domain.SeverityMedium}

	case strings.Contains(s, "cors") || strings.Contains(s, "cross-origin") ||
		strings.Contains(s, "access-control-allow-origin"):
		return domain.Classification{Kind: domain.ErrorKindCORS, Retryable: false, Severity: domain.SeverityHigh}

	case strings.Contains(s, "certificate") || strings.Contains(s, "x509") ||
		strings.Contains(s, "tls") || strings.Contains(s, "ssl"):
		return domain.Classification{Kind: domain.ErrorKindSSL, Retryable: false, Severity: domain.SeverityHigh}

	case strings.Contains(s, "401") || strings.Contains(s, "403") ||
		strings.Contains(s, "unauthorized") || strings.Contains(s, "forbidden") ||
		strings.Contains(s, "access denied"):
		return domain.Classification{Kind: domain.ErrorKindAuth, Retryable: false, Severity: domain.SeverityMedium}

	case strings.Contains(s, "404") || strings.Contains(s, "not found"):
		return domain.Classification{Kind: domain.ErrorKindNotFound, Retryable: false, Severity: domain.SeverityLow}

	case strings.Contains(s, "500") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "504") ||
		strings.Contains(s, "bad gateway") || strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "internal server error"):
		return domain.Classification{Kind: domain.ErrorKindServer, Retryable: true, Severity: domain.SeverityHigh}

	case strings.Contains(s, "connection refused") || strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host") || strings.Contains(s, "network is unreachable") ||
		strings.Contains(s, "broken pipe") || strings.Contains(s, "unexpected eof"):
		return domain.Classification{Kind: domain.ErrorKindNetwork, Retryable: true, Severity: domain.SeverityHigh}
	}

	return domain.Classification{Kind: domain.ErrorKindUnknown, Retryable: false, Severity: domain.SeverityMedium}
}
