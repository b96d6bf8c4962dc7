package domain

import (
	"errors"
	"fmt"
	"time"
)

// AutoParallelism lets the engine run every document of a batch at once.
const AutoParallelism = -1

// ErrInvalidConfig is returned for malformed ingestion configuration.
var ErrInvalidConfig = errors.New("invalid insert config")

// FieldType is the expected primitive type of a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldArray  FieldType = "array"
	FieldObject FieldType = "object"
)

// Matches reports whether v has this field type.
func (t FieldType) Matches(v Value) bool {
	switch t {
	case FieldString:
		return v.Kind() == KindString
	case FieldNumber:
		return v.Kind() == KindNumber
	case FieldBool:
		return v.Kind() == KindBool
	case FieldArray:
		return v.Kind() == KindArray
	case FieldObject:
		return v.Kind() == KindObject
	default:
		return false
	}
}

// InsertConfig configures one ingestion run. Treat as immutable once passed to the engine.
type InsertConfig struct {
	BatchSize   int
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// TargetUtilization is the fraction of provisioned throughput the run may consume.
	TargetUtilization float64

	// MaxParallelism bounds concurrent inserts within a batch; AutoParallelism = no bound.
	MaxParallelism int

	IdempotencyEnabled bool
	IDField            string
	PartitionKeyField  string
	Schema             map[string]FieldType

	GenerateIDs     bool
	RequestTimeout  time.Duration // per attempt, 0 = none
	CollectFailures bool
	MaxOpsPerSecond float64       // 0 = unlimited
	BatchPause      time.Duration // pause between batches
}

// DefaultInsertConfig returns the defaults used by the loader.
func DefaultInsertConfig() InsertConfig {
	return InsertConfig{
		BatchSize:         100,
		MaxRetries:        3,
		BaseBackoff:       100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		TargetUtilization: 0.8,
		MaxParallelism:    AutoParallelism,
		IDField:           "id",
		PartitionKeyField: "id",
		GenerateIDs:       true,
		RequestTimeout:    30 * time.Second,
		CollectFailures:   true,
	}
}

// Validate checks the configuration for programmer errors.
func (c InsertConfig) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.BaseBackoff < 0:
		return fmt.Errorf("%w: base backoff must not be negative", ErrInvalidConfig)
	case c.MaxBackoff < c.BaseBackoff:
		return fmt.Errorf("%w: max backoff %v below base backoff %v", ErrInvalidConfig, c.MaxBackoff, c.BaseBackoff)
	case c.TargetUtilization <= 0 || c.TargetUtilization > 1:
		return fmt.Errorf("%w: target utilization must be in (0,1], got %v", ErrInvalidConfig, c.TargetUtilization)
	case c.MaxParallelism == 0 || c.MaxParallelism < AutoParallelism:
		return fmt.Errorf("%w: max parallelism must be positive or %d (auto), got %d",
			ErrInvalidConfig, AutoParallelism, c.MaxParallelism)
	case c.IDField == "":
		return fmt.Errorf("%w: id field is required", ErrInvalidConfig)
	case c.PartitionKeyField == "":
		return fmt.Errorf("%w: partition key field is required", ErrInvalidConfig)
	case c.RequestTimeout < 0:
		return fmt.Errorf("%w: request timeout must not be negative", ErrInvalidConfig)
	case c.MaxOpsPerSecond < 0:
		return fmt.Errorf("%w: max ops per second must not be negative", ErrInvalidConfig)
	}
	for field, t := range c.Schema {
		switch t {
		case FieldString, FieldNumber, FieldBool, FieldArray, FieldObject:
		default:
			return fmt.Errorf("%w: unknown type %q for schema field %s", ErrInvalidConfig, t, field)
		}
	}
	return nil
}

// FailedDocument is a document that exhausted retries or failed validation.
type FailedDocument struct {
	Document Document     `json:"document"`
	Error    ErrorDetails `json:"error"`
	Attempts int          `json:"attempts"`
}

// OperationMetrics is the aggregate snapshot of one ingestion run.
type OperationMetrics struct {
	Operations     int            `json:"operations"`
	TotalCost      float64        `json:"total_cost"`
	AverageCost    float64        `json:"average_cost"`
	MaxCost        float64        `json:"max_cost"`
	AverageLatency time.Duration  `json:"average_latency"`
	MaxLatency     time.Duration  `json:"max_latency"`
	ErrorCounts    map[string]int `json:"error_counts"`
	Duration       time.Duration  `json:"duration"`
	CostPerSecond  float64        `json:"cost_per_second"`
	CostPerMinute  float64        `json:"cost_per_minute"`
}

// ScalingLevel is the qualitative consumption band of a run.
type ScalingLevel string

const (
	ScalingHigh   ScalingLevel = "high"
	ScalingNormal ScalingLevel = "normal"
	ScalingLow    ScalingLevel = "low"
)

// Recommendation is the capacity advice derived from consumption rate.
type Recommendation struct {
	Level   ScalingLevel `json:"level"`
	Message string       `json:"message"`
}

// InsertResult is the outcome of one ingestion call.
type InsertResult struct {
	Total           int              `json:"total"`
	Inserted        int              `json:"inserted"`
	Failed          int              `json:"failed"`
	Retried         int              `json:"retried"`
	FailedDocuments []FailedDocument `json:"failed_documents,omitempty"`
	Metrics         OperationMetrics `json:"metrics"`
	Recommendation  Recommendation   `json:"recommendation"`
}
