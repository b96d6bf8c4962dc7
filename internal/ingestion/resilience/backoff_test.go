package resilience

import (
	"testing"
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
)

func TestBackoff_RetryAfterWins(t *testing.T) {
	policy := NewBackoffPolicy(DefaultBackoffConfig)
	d := domain.ErrorDetails{
		Code:       domain.CodeTooManyRequests,
		Category:   domain.CategoryRateLimited,
		Retryable:  true,
		RetryAfter: 750 * time.Millisecond,
	}

	for attempt := 1; attempt <= 5; attempt++ {
		if delay := policy.Delay(attempt, d); delay != 750*time.Millisecond {
			t.Errorf("attempt %d: expected 750ms, got %v", attempt, delay)
		}
	}
}

func TestBackoff_RateLimited(t *testing.T) {
	policy := NewBackoffPolicy(BackoffConfig{RateLimitBase: time.Second})
	d := domain.ErrorDetails{Code: domain.CodeTooManyRequests, Category: domain.CategoryRateLimited}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // capped at 10x base
		10 * time.Second,
	}
	for i, want := range expected {
		if got := policy.Delay(i+1, d); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoff_TransientAuthLinear(t *testing.T) {
	policy := NewBackoffPolicy(BackoffConfig{AuthStep: 100 * time.Millisecond, AuthMax: 250 * time.Millisecond})
	d := domain.ErrorDetails{Code: domain.CodeForbidden, Category: domain.CategoryTransientAuth, Retryable: true}

	if got := policy.Delay(1, d); got != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", got)
	}
	if got := policy.Delay(2, d); got != 200*time.Millisecond {
		t.Errorf("expected 200ms, got %v", got)
	}
	if got := policy.Delay(3, d); got != 250*time.Millisecond {
		t.Errorf("expected cap 250ms, got %v", got)
	}
}

func TestBackoff_TransientJitterBounds(t *testing.T) {
	d := domain.ErrorDetails{Code: domain.CodeServiceUnavailable, Category: domain.CategoryTransient, Retryable: true}
	cfg := BackoffConfig{Base: 100 * time.Millisecond, Max: 2 * time.Second}

	low := NewBackoffPolicy(cfg).WithJitter(func() float64 { return 0 })
	high := NewBackoffPolicy(cfg).WithJitter(func() float64 { return 0.999999 })

	for attempt := 1; attempt <= 10; attempt++ {
		lo := low.Delay(attempt, d)
		hi := high.Delay(attempt, d)
		if lo < 0 || hi < 0 {
			t.Fatalf("attempt %d: negative delay", attempt)
		}
		if hi > cfg.Max {
			t.Errorf("attempt %d: %v exceeds ceiling %v", attempt, hi, cfg.Max)
		}
		if lo > hi {
			t.Errorf("attempt %d: jitter range inverted (%v > %v)", attempt, lo, hi)
		}
	}

	// Attempt 1 at minimum jitter is half the base
	if got := low.Delay(1, d); got != 50*time.Millisecond {
		t.Errorf("expected 50ms, got %v", got)
	}
}

func TestBackoff_TransientMonotonicInExpectation(t *testing.T) {
	d := domain.ErrorDetails{Code: domain.CodeRequestTimeout, Category: domain.CategoryTransient, Retryable: true}
	// Fixed mid-range jitter equals the expected factor of 0.75
	policy := NewBackoffPolicy(BackoffConfig{Base: 100 * time.Millisecond, Max: time.Second}).
		WithJitter(func() float64 { return 0.5 })

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		delay := policy.Delay(attempt, d)
		if delay < prev {
			t.Errorf("attempt %d: %v < previous %v", attempt, delay, prev)
		}
		if delay > time.Second {
			t.Errorf("attempt %d: %v exceeds ceiling", attempt, delay)
		}
		prev = delay
	}
	if prev != 750*time.Millisecond {
		t.Errorf("expected capped expectation 750ms, got %v", prev)
	}
}

func TestBackoff_MaxRetries(t *testing.T) {
	policy := NewBackoffPolicy(BackoffConfig{AuthMaxRetries: 2})

	auth := domain.ErrorDetails{Category: domain.CategoryTransientAuth, Retryable: true}
	if got := policy.MaxRetries(auth, 5); got != 2 {
		t.Errorf("expected auth cap 2, got %d", got)
	}
	if got := policy.MaxRetries(auth, 1); got != 1 {
		t.Errorf("expected configured 1, got %d", got)
	}

	rate := domain.ErrorDetails{Category: domain.CategoryRateLimited, Retryable: true}
	if got := policy.MaxRetries(rate, 5); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}

	permanent := domain.ErrorDetails{Category: domain.CategoryPermanent}
	if got := policy.MaxRetries(permanent, 5); got != 0 {
		t.Errorf("expected 0 for permanent, got %d", got)
	}
}
