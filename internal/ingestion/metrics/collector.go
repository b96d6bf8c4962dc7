package metrics

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
)

// ScalingPolicy holds the consumption thresholds (cost units per second)
// used to derive a capacity recommendation.
type ScalingPolicy struct {
	HighCostPerSecond float64
	LowCostPerSecond  float64
}

// DefaultScalingPolicy matches a 400 RU/s container at 80% target utilization.
var DefaultScalingPolicy = ScalingPolicy{
	HighCostPerSecond: 320,
	LowCostPerSecond:  80,
}

// DerivePolicy builds thresholds from provisioned throughput and target utilization:
// high = provisioned * target, low = a quarter of that.
func DerivePolicy(provisioned, targetUtilization float64) ScalingPolicy {
	if provisioned <= 0 || targetUtilization <= 0 {
		return DefaultScalingPolicy
	}
	high := provisioned * targetUtilization
	return ScalingPolicy{
		HighCostPerSecond: high,
		LowCostPerSecond:  high / 4,
	}
}

// Collector accumulates cost, latency and error samples for one ingestion run.
type Collector struct {
	mu sync.Mutex

	costCount int
	costSum   float64
	costMax   float64

	latencyCount int
	latencySum   time.Duration
	latencyMax   time.Duration

	errors map[string]int

	start time.Time
	end   time.Time
	now   func() time.Time

	exporter *Exporter
}

// NewCollector creates a collector started now. exporter may be nil.
func NewCollector(exporter *Exporter) *Collector {
	return newCollector(exporter, time.Now)
}

func newCollector(exporter *Exporter, now func() time.Time) *Collector {
	return &Collector{
		errors:   make(map[string]int),
		start:    now(),
		now:      now,
		exporter: exporter,
	}
}

// RecordCost records the cost units of one operation.
func (c *Collector) RecordCost(units float64) {
	if units < 0 {
		units = 0
	}
	c.mu.Lock()
	c.costCount++
	c.costSum += units
	if units > c.costMax {
		c.costMax = units
	}
	c.mu.Unlock()

	c.exporter.observeCost(units)
}

// RecordLatency records the latency of one operation.
func (c *Collector) RecordLatency(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	c.mu.Lock()
	c.latencyCount++
	c.latencySum += latency
	if latency > c.latencyMax {
		c.latencyMax = latency
	}
	c.mu.Unlock()

	c.exporter.observeLatency(latency)
}

// RecordError counts an error by code.
func (c *Collector) RecordError(code string) {
	c.mu.Lock()
	c.errors[code]++
	c.mu.Unlock()

	c.exporter.incError(code)
}

// Finish freezes the elapsed duration. Later samples are still counted.
func (c *Collector) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.end.IsZero() {
		c.end = c.now()
	}
}

// Summary returns an immutable snapshot of the recorded samples.
func (c *Collector) Summary() domain.OperationMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.elapsedLocked()
	m := domain.OperationMetrics{
		Operations:  c.costCount,
		TotalCost:   c.costSum,
		MaxCost:     c.costMax,
		MaxLatency:  c.latencyMax,
		ErrorCounts: maps.Clone(c.errors),
		Duration:    elapsed,
	}
	if c.costCount > 0 {
		m.AverageCost = c.costSum / float64(c.costCount)
	}
	if c.latencyCount > 0 {
		m.AverageLatency = c.latencySum / time.Duration(c.latencyCount)
	}
	m.CostPerSecond = rate(c.costSum, elapsed.Seconds())
	m.CostPerMinute = rate(c.costSum, elapsed.Minutes())
	return m
}

// CostPerSecond returns total cost divided by elapsed seconds.
func (c *Collector) CostPerSecond() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rate(c.costSum, c.elapsedLocked().Seconds())
}

// CostPerMinute returns total cost divided by elapsed minutes.
func (c *Collector) CostPerMinute() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rate(c.costSum, c.elapsedLocked().Minutes())
}

// Recommend maps the consumption rate onto the policy's bands.
func (c *Collector) Recommend(policy ScalingPolicy) domain.Recommendation {
	return Recommend(c.CostPerSecond(), policy)
}

// Recommend maps a consumption rate onto the policy's bands.
func Recommend(costPerSecond float64, policy ScalingPolicy) domain.Recommendation {
	switch {
	case costPerSecond > policy.HighCostPerSecond:
		return domain.Recommendation{
			Level: domain.ScalingHigh,
			Message: fmt.Sprintf("high consumption (%.1f RU/s > %.1f): provision more capacity",
				costPerSecond, policy.HighCostPerSecond),
		}
	case costPerSecond < policy.LowCostPerSecond:
		return domain.Recommendation{
			Level: domain.ScalingLow,
			Message: fmt.Sprintf("low consumption (%.1f RU/s < %.1f): current provisioning sufficient",
				costPerSecond, policy.LowCostPerSecond),
		}
	default:
		return domain.Recommendation{
			Level:   domain.ScalingNormal,
			Message: fmt.Sprintf("normal consumption (%.1f RU/s)", costPerSecond),
		}
	}
}

func (c *Collector) elapsedLocked() time.Duration {
	end := c.end
	if end.IsZero() {
		end = c.now()
	}
	return end.Sub(c.start)
}

func rate(total, denom float64) float64 {
	if denom <= 0 {
		return 0
	}
	return total / denom
}
