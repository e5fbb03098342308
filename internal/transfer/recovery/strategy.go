package recovery

import (
	"math"
	"time"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

// Classifier maps a raw failure onto the retry taxonomy.
type Classifier func(err error) domain.Classification

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the wait before retry attempt n (1-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if the error warrants another attempt given how
	// many retries the operation has already consumed.
	ShouldRetry(err error, attemptsSoFar int) bool
}

// ExponentialBackoff implements base * 2^(attempt-1) backoff with a cap.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Classifier Classifier
}

// DefaultBackoff returns the standard transfer backoff: 1s, 2s, 4s.
func DefaultBackoff(classifier Classifier) *ExponentialBackoff {
	if classifier == nil {
		// Safe default: treat everything as retryable
		classifier = func(err error) domain.Classification {
			return domain.Classification{
				Kind:      domain.ErrorKindUnknown,
				Retryable: true,
				Severity:  domain.SeverityMedium,
			}
		}
	}
	return &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		MaxRetries: 3,
		Classifier: classifier,
	}
}

// GetDelay calculates the wait before retry attempt n: BaseDelay * 2^(n-1).
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(s.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks the classification and the per-operation budget.
func (s *ExponentialBackoff) ShouldRetry(err error, attemptsSoFar int) bool {
	if attemptsSoFar >= s.MaxRetries {
		return false
	}
	return s.Classifier(err).Retryable
}
