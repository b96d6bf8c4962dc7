package engine

import (
	"log/slog"
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
)

// Observer receives progress events. Implementations must not block for long;
// they are called from the batch loop and from document goroutines.
type Observer interface {
	BatchStarted(batch, total, size int)
	Retrying(id string, retry int, delay time.Duration, details domain.ErrorDetails)
	RateLimited(id string, retry int, delay time.Duration)
	Recovered(id string, attempts int)
	Completed(result *domain.InsertResult)
}

// LogObserver writes progress events to a slog.Logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates an observer logging to logger (slog.Default() if nil).
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) BatchStarted(batch, total, size int) {
	o.logger.Info("Processing batch", "batch", batch, "total", total, "documents", size)
}

func (o *LogObserver) Retrying(id string, retry int, delay time.Duration, details domain.ErrorDetails) {
	o.logger.Warn("Retrying insert",
		"id", id,
		"retry", retry,
		"delay", delay,
		"code", details.Code,
		"category", details.Category.String(),
		"error", details.Message,
	)
}

func (o *LogObserver) RateLimited(id string, retry int, delay time.Duration) {
	o.logger.Warn("Rate limited, backing off", "id", id, "retry", retry, "delay", delay)
}

func (o *LogObserver) Recovered(id string, attempts int) {
	o.logger.Info("Insert recovered after retry", "id", id, "attempts", attempts)
}

func (o *LogObserver) Completed(result *domain.InsertResult) {
	m := result.Metrics
	o.logger.Info("Ingestion completed",
		"total", result.Total,
		"inserted", result.Inserted,
		"failed", result.Failed,
		"retried", result.Retried,
		"cost_units", m.TotalCost,
		"avg_latency", m.AverageLatency,
		"duration", m.Duration,
		"scaling", string(result.Recommendation.Level),
	)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) BatchStarted(int, int, int)                               {}
func (NopObserver) Retrying(string, int, time.Duration, domain.ErrorDetails) {}
func (NopObserver) RateLimited(string, int, time.Duration)                   {}
func (NopObserver) Recovered(string, int)                                    {}
func (NopObserver) Completed(*domain.InsertResult)                           {}
