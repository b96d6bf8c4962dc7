package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/docloader/internal/infra/storage"
	"github.com/vietddude/docloader/internal/ingestion/metrics"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

// BreakerState reports the circuit breaker state.
type BreakerState interface {
	State() resilience.CircuitState
	Failures() int
}

// Pinger is a dependency that can be health-checked.
type Pinger interface {
	Health(ctx context.Context) error
}

// Thresholds for the dead-letter queue depth.
const (
	deadLettersDegraded = 1
	deadLettersCritical = 1000
)

// Monitor aggregates health status from the breaker, the dead-letter queue and dependencies.
type Monitor struct {
	breaker     BreakerState
	deadLetters storage.DeadLetterRepository
	collection  string
	deps        map[string]Pinger
	exporter    *metrics.Exporter
	cacheFor    time.Duration
	lastCheck   time.Time
	lastReport  *HealthReport
	mu          sync.Mutex
}

// NewMonitor creates a new health monitor. deadLetters and exporter may be nil.
func NewMonitor(
	breaker BreakerState,
	deadLetters storage.DeadLetterRepository,
	collection string,
	exporter *metrics.Exporter,
) *Monitor {
	return &Monitor{
		breaker:     breaker,
		deadLetters: deadLetters,
		collection:  collection,
		deps:        make(map[string]Pinger),
		exporter:    exporter,
		cacheFor:    10 * time.Second,
	}
}

// AddDependency registers a named dependency (database, redis).
func (m *Monitor) AddDependency(name string, p Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[name] = p
	m.lastReport = nil
}

// SetCacheInterval sets how long a report is reused. 0 disables caching.
func (m *Monitor) SetCacheInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheFor = d
}

// CheckHealth builds a health report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Avoid hammering dependencies when /health is polled frequently
	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	// 1. Circuit breaker
	if m.breaker != nil {
		state := m.breaker.State()
		report.Circuit = state.String()
		report.CircuitFailures = m.breaker.Failures()
		switch state {
		case resilience.StateOpen:
			report.worsen(StatusCritical)
		case resilience.StateHalfOpen:
			report.worsen(StatusDegraded)
		}
	}

	// 2. Dead letters
	if m.deadLetters != nil {
		count, err := m.deadLetters.Count(ctx, m.collection)
		if err != nil {
			report.worsen(StatusDegraded)
		} else {
			report.DeadLetters = count
			m.exporter.SetDeadLetterDepth(m.collection, count)
			switch {
			case count >= deadLettersCritical:
				report.worsen(StatusCritical)
			case count >= deadLettersDegraded:
				report.worsen(StatusDegraded)
			}
		}
	}

	// 3. Dependencies
	for name, dep := range m.deps {
		c := ComponentHealth{Status: StatusHealthy}
		if err := dep.Health(ctx); err != nil {
			c = ComponentHealth{Status: StatusCritical, Error: err.Error()}
		}
		report.Components[name] = c
		report.worsen(c.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func (r *HealthReport) worsen(s SystemStatus) {
	if s.rank() > r.SystemStatus.rank() {
		r.SystemStatus = s
	}
}
