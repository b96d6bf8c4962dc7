package recovery

import (
	"math"
	"time"
)

// RetryStrategy decides when a parked document may be retried again.
type RetryStrategy interface {
	// Delay returns the wait after the last attempt for the given retry count (0-indexed).
	Delay(retryCount int) time.Duration

	// Exhausted reports whether a document has used up its requeue attempts.
	Exhausted(retryCount int) bool
}

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff returns sensible defaults for requeueing.
// 2s, 4s, 8s, 16s, 32s (Max 60s)
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  5,
	}
}

// Delay calculates delay: InitialDelay * 2^retryCount
func (s *ExponentialBackoff) Delay(retryCount int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(retryCount))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// Exhausted checks the retry count against MaxAttempts. 0 means unlimited.
func (s *ExponentialBackoff) Exhausted(retryCount int) bool {
	return s.MaxAttempts > 0 && retryCount >= s.MaxAttempts
}
