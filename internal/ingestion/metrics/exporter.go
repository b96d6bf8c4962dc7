package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter mirrors ingestion metrics into Prometheus. A nil *Exporter is a no-op.
type Exporter struct {
	// DocumentsTotal tracks documents by final outcome (inserted, failed)
	DocumentsTotal *prometheus.CounterVec

	// BatchesTotal tracks processed batches
	BatchesTotal prometheus.Counter

	// RequestUnitsTotal tracks consumed cost units
	RequestUnitsTotal prometheus.Counter

	// RequestUnits tracks cost units per store operation
	RequestUnits prometheus.Histogram

	// StoreLatency tracks store call latency
	StoreLatency prometheus.Histogram

	// ErrorsTotal tracks store and validation errors by code
	ErrorsTotal *prometheus.CounterVec

	// RetriesTotal tracks custom retries by error category
	RetriesTotal *prometheus.CounterVec

	// CircuitState tracks the breaker state (0 closed, 1 open, 2 half-open)
	CircuitState prometheus.Gauge

	// DBConnectionPoolUsage tracks the database pool usage percentage
	DBConnectionPoolUsage prometheus.Gauge

	// DeadLetterDepth tracks pending dead letters per collection
	DeadLetterDepth *prometheus.GaugeVec
}

// NewExporter registers all ingestion metrics against reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)

	return &Exporter{
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docloader_documents_total",
				Help: "Total number of documents processed, by outcome",
			},
			[]string{"outcome"},
		),
		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docloader_batches_total",
				Help: "Total number of batches started",
			},
		),
		RequestUnitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docloader_request_units_total",
				Help: "Total cost units consumed by store operations",
			},
		),
		RequestUnits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docloader_request_units",
				Help:    "Cost units per store operation",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
			},
		),
		StoreLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docloader_store_latency_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docloader_errors_total",
				Help: "Total number of errors, by code",
			},
			[]string{"code"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docloader_retries_total",
				Help: "Total number of custom retries, by error category",
			},
			[]string{"category"},
		),
		CircuitState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docloader_circuit_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
		),
		DBConnectionPoolUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docloader_db_connection_pool_usage_percent",
				Help: "Database connection pool usage percentage",
			},
		),
		DeadLetterDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "docloader_dead_letters_pending",
				Help: "Number of documents waiting in the dead-letter queue",
			},
			[]string{"collection"},
		),
	}
}

// AddDocuments adds n documents with the given outcome.
func (e *Exporter) AddDocuments(outcome string, n int) {
	if e == nil || n <= 0 {
		return
	}
	e.DocumentsTotal.WithLabelValues(outcome).Add(float64(n))
}

// IncBatch counts a started batch.
func (e *Exporter) IncBatch() {
	if e == nil {
		return
	}
	e.BatchesTotal.Inc()
}

// IncRetry counts a retry of the given error category.
func (e *Exporter) IncRetry(category string) {
	if e == nil {
		return
	}
	e.RetriesTotal.WithLabelValues(category).Inc()
}

// SetCircuitState records the breaker state.
func (e *Exporter) SetCircuitState(state int) {
	if e == nil {
		return
	}
	e.CircuitState.Set(float64(state))
}

// SetDeadLetterDepth records the dead-letter queue depth of a collection.
func (e *Exporter) SetDeadLetterDepth(collection string, depth int) {
	if e == nil {
		return
	}
	e.DeadLetterDepth.WithLabelValues(collection).Set(float64(depth))
}

func (e *Exporter) observeCost(units float64) {
	if e == nil {
		return
	}
	e.RequestUnitsTotal.Add(units)
	e.RequestUnits.Observe(units)
}

func (e *Exporter) observeLatency(latency time.Duration) {
	if e == nil {
		return
	}
	e.StoreLatency.Observe(latency.Seconds())
}

func (e *Exporter) incError(code string) {
	if e == nil {
		return
	}
	e.ErrorsTotal.WithLabelValues(code).Inc()
}
