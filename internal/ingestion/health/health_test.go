package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/ingestion/metrics"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

// =============================================================================
// Mocks
// =============================================================================

type stubBreaker struct {
	state    resilience.CircuitState
	failures int
}

func (s *stubBreaker) State() resilience.CircuitState { return s.state }
func (s *stubBreaker) Failures() int                  { return s.failures }

type stubDeadLetters struct {
	count int
	err   error
}

func (s *stubDeadLetters) Count(ctx context.Context, c string) (int, error)    { return s.count, s.err }
func (s *stubDeadLetters) Add(ctx context.Context, v *domain.DeadLetter) error { return nil }
func (s *stubDeadLetters) GetNext(ctx context.Context, c string) (*domain.DeadLetter, error) {
	return nil, nil
}
func (s *stubDeadLetters) IncrementRetry(ctx context.Context, c, id string) error { return nil }
func (s *stubDeadLetters) MarkResolved(ctx context.Context, c, id string) error   { return nil }
func (s *stubDeadLetters) GetAll(ctx context.Context, c string) ([]*domain.DeadLetter, error) {
	return nil, nil
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Status(t *testing.T) {
	tests := []struct {
		name    string
		state   resilience.CircuitState
		dlq     *stubDeadLetters
		dep     error
		want    SystemStatus
		circuit string
	}{
		{"healthy", resilience.StateClosed, &stubDeadLetters{}, nil, StatusHealthy, "closed"},
		{"half open", resilience.StateHalfOpen, &stubDeadLetters{}, nil, StatusDegraded, "half_open"},
		{"open", resilience.StateOpen, &stubDeadLetters{}, nil, StatusCritical, "open"},
		{"some dead letters", resilience.StateClosed, &stubDeadLetters{count: 3}, nil, StatusDegraded, "closed"},
		{"dead letter flood", resilience.StateClosed, &stubDeadLetters{count: 5000}, nil, StatusCritical, "closed"},
		{"dead letter count fails", resilience.StateClosed, &stubDeadLetters{err: errors.New("down")}, nil, StatusDegraded, "closed"},
		{"dependency down", resilience.StateClosed, &stubDeadLetters{}, errors.New("refused"), StatusCritical, "closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor(&stubBreaker{state: tt.state}, tt.dlq, "docs", nil)
			monitor.SetCacheInterval(0)
			monitor.AddDependency("database", &stubPinger{err: tt.dep})

			report := monitor.CheckHealth(context.Background())
			if report.SystemStatus != tt.want {
				t.Errorf("expected %s, got %s", tt.want, report.SystemStatus)
			}
			if report.Circuit != tt.circuit {
				t.Errorf("expected circuit %s, got %s", tt.circuit, report.Circuit)
			}
			if tt.dep != nil && report.Components["database"].Error == "" {
				t.Error("expected dependency error in report")
			}
		})
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	breaker := &stubBreaker{state: resilience.StateClosed}
	monitor := NewMonitor(breaker, nil, "docs", nil)

	first := monitor.CheckHealth(context.Background())
	breaker.state = resilience.StateOpen
	second := monitor.CheckHealth(context.Background())

	if first.SystemStatus != StatusHealthy || second.SystemStatus != StatusHealthy {
		t.Errorf("expected cached healthy report, got %s then %s", first.SystemStatus, second.SystemStatus)
	}
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := metrics.NewExporter(reg)
	exporter.AddDocuments("inserted", 3)

	breaker := &stubBreaker{state: resilience.StateOpen, failures: 7}
	monitor := NewMonitor(breaker, &stubDeadLetters{count: 2}, "docs", exporter)
	monitor.SetCacheInterval(0)

	srv := httptest.NewServer(NewServer(monitor, 0, reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with open circuit, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "critical" || body["circuit"] != "open" {
		t.Errorf("unexpected body: %v", body)
	}

	detailed, err := http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer detailed.Body.Close()
	var report HealthReport
	if err := json.NewDecoder(detailed.Body).Decode(&report); err != nil {
		t.Fatalf("invalid report: %v", err)
	}
	if report.CircuitFailures != 7 || report.DeadLetters != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	breaker.state = resilience.StateClosed
	ok, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Errorf("expected 200 once the circuit closes, got %d", ok.StatusCode)
	}

	m, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer m.Body.Close()
	raw, _ := io.ReadAll(m.Body)
	for _, want := range []string{
		`docloader_documents_total{outcome="inserted"} 3`,
		`docloader_dead_letters_pending{collection="docs"} 2`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}
