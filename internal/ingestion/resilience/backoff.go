package resilience

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
)

// BackoffConfig defines retry delays per error category.
type BackoffConfig struct {
	// Generic transient errors: exponential with multiplicative jitter.
	Base time.Duration
	Max  time.Duration

	// Rate limiting without server guidance: exponential, no jitter.
	RateLimitBase time.Duration
	RateLimitMax  time.Duration

	// Transient auth (token refresh race): linear, low cap.
	AuthStep       time.Duration
	AuthMax        time.Duration
	AuthMaxRetries int
}

// DefaultBackoffConfig provides sensible defaults.
// Rate limit: 1s, 2s, 4s, 8s, 10s. Transient: 100ms..5s with jitter.
var DefaultBackoffConfig = BackoffConfig{
	Base:           100 * time.Millisecond,
	Max:            5 * time.Second,
	RateLimitBase:  1 * time.Second,
	RateLimitMax:   10 * time.Second,
	AuthStep:       200 * time.Millisecond,
	AuthMax:        1 * time.Second,
	AuthMaxRetries: 2,
}

// BackoffPolicy computes the delay before a retry.
type BackoffPolicy struct {
	config BackoffConfig
	jitter func() float64 // returns a value in [0, 1)
}

// NewBackoffPolicy creates a policy. Zero fields fall back to DefaultBackoffConfig.
func NewBackoffPolicy(config BackoffConfig) *BackoffPolicy {
	d := DefaultBackoffConfig
	if config.Base <= 0 {
		config.Base = d.Base
	}
	if config.Max <= 0 {
		config.Max = d.Max
	}
	if config.Max < config.Base {
		config.Max = config.Base
	}
	if config.RateLimitBase <= 0 {
		config.RateLimitBase = d.RateLimitBase
	}
	if config.RateLimitMax <= 0 {
		config.RateLimitMax = 10 * config.RateLimitBase
	}
	if config.AuthStep <= 0 {
		config.AuthStep = d.AuthStep
	}
	if config.AuthMax <= 0 {
		config.AuthMax = d.AuthMax
	}
	if config.AuthMaxRetries <= 0 {
		config.AuthMaxRetries = d.AuthMaxRetries
	}
	return &BackoffPolicy{config: config, jitter: rand.Float64}
}

// WithJitter replaces the jitter source. Used by tests for deterministic delays.
func (p *BackoffPolicy) WithJitter(fn func() float64) *BackoffPolicy {
	p.jitter = fn
	return p
}

// Config returns the effective configuration.
func (p *BackoffPolicy) Config() BackoffConfig {
	return p.config
}

// Delay returns the wait before retry number attempt (1 = first retry).
func (p *BackoffPolicy) Delay(attempt int, details domain.ErrorDetails) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	if details.RetryAfter > 0 {
		return details.RetryAfter
	}

	switch details.Category {
	case domain.CategoryRateLimited:
		return exponential(p.config.RateLimitBase, p.config.RateLimitMax, attempt)

	case domain.CategoryTransientAuth:
		delay := p.config.AuthStep * time.Duration(attempt)
		if delay > p.config.AuthMax {
			delay = p.config.AuthMax
		}
		return delay

	default:
		delay := exponential(p.config.Base, p.config.Max, attempt)
		factor := 0.5 + 0.5*p.jitter()
		return time.Duration(float64(delay) * factor)
	}
}

// MaxRetries returns how many custom retries an error may get given the run's cap.
func (p *BackoffPolicy) MaxRetries(details domain.ErrorDetails, configured int) int {
	if !details.Retryable {
		return 0
	}
	if details.Category == domain.CategoryTransientAuth && configured > p.config.AuthMaxRetries {
		return p.config.AuthMaxRetries
	}
	return configured
}

// exponential: base * 2^(attempt-1), capped at max.
func exponential(base, ceiling time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(ceiling) {
		return ceiling
	}
	return time.Duration(delay)
}
