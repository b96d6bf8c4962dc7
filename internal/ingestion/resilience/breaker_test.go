package resilience

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		WindowSize:       5,
		FailureThreshold: 3,
		ResetTimeout:     10 * time.Second,
	}).WithClock(clock.Now)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	if cb.State() != StateClosed {
		t.Fatalf("expected initial state closed, got %v", cb.State())
	}

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.IsOpen() {
		t.Fatal("should stay closed with 2 failures")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures in window, got %v", cb.State())
	}
	if !cb.IsOpen() {
		t.Error("IsOpen should be true before reset timeout")
	}
}

func TestBreaker_WindowEvictsOldFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	cb.RecordFailure()
	cb.RecordFailure()
	for range 5 {
		cb.RecordSuccess()
	}
	if cb.Failures() != 0 {
		t.Errorf("expected old failures evicted, got %d", cb.Failures())
	}

	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
}

func TestBreaker_HalfOpenThenClose(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(10 * time.Second)

	if cb.IsOpen() {
		t.Fatal("should allow a trial request after reset timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after half-open success, got %v", cb.State())
	}

	// Window cleared on close: one failure must not reopen
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
}

func TestBreaker_HalfOpenThenReopen(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(11 * time.Second)
	cb.IsOpen()

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected reopen after half-open failure, got %v", cb.State())
	}

	// Cooldown restarts from the new failure
	clock.Advance(5 * time.Second)
	if !cb.IsOpen() {
		t.Error("expected open during new cooldown")
	}
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(clock)

	var transitions []Transition
	cb.SetStateChangeCallback(func(tr Transition) {
		transitions = append(transitions, tr)
	})

	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(10 * time.Second)
	cb.IsOpen()
	cb.RecordSuccess()

	want := []struct{ from, to CircuitState }{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i, w := range want {
		if transitions[i].From != w.from || transitions[i].To != w.to {
			t.Errorf("transition %d = %v->%v, want %v->%v",
				i, transitions[i].From, transitions[i].To, w.from, w.to)
		}
	}
}

func TestBreaker_Concurrency(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{WindowSize: 1000, FailureThreshold: 1000, ResetTimeout: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			cb.IsOpen()
		}(i)
	}
	wg.Wait()

	if got := cb.Failures(); got != 100 {
		t.Errorf("expected 100 failures, got %d", got)
	}
}
