package config

import (
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
	redisclient "github.com/vietddude/docloader/internal/infra/redis"
	"github.com/vietddude/docloader/internal/infra/storage/postgres"
	"github.com/vietddude/docloader/internal/ingestion/cost"
	"github.com/vietddude/docloader/internal/ingestion/metrics"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

// Backend names accepted by ingest.store and ingest.dead_letters.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server         ServerConfig       `yaml:"server"`
	Logging        LoggingConfig      `yaml:"logging"`
	Database       postgres.Config    `yaml:"database"`
	Redis          redisclient.Config `yaml:"redis"`
	Ingest         IngestConfig       `yaml:"ingest"`
	CircuitBreaker BreakerConfig      `yaml:"circuit_breaker"`
	Backoff        BackoffConfig      `yaml:"backoff"`
	Scaling        ScalingConfig      `yaml:"scaling"`
	Pricing        PricingConfig      `yaml:"pricing"`
	Requeue        RequeueConfig      `yaml:"requeue"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// IngestConfig holds the settings of an ingestion run.
type IngestConfig struct {
	Store       string `yaml:"store"`        // memory, postgres
	DeadLetters string `yaml:"dead_letters"` // redis, postgres, memory, none
	Collection  string `yaml:"collection"`

	BatchSize         int                         `yaml:"batch_size"`
	MaxRetries        *int                        `yaml:"max_retries"`
	BaseBackoff       time.Duration               `yaml:"base_backoff"`
	MaxBackoff        time.Duration               `yaml:"max_backoff"`
	TargetUtilization float64                     `yaml:"target_utilization"`
	MaxParallelism    int                         `yaml:"max_parallelism"` // 0 = auto
	Idempotency       bool                        `yaml:"idempotency"`
	IDField           string                      `yaml:"id_field"`
	PartitionKeyField string                      `yaml:"partition_key_field"`
	Schema            map[string]domain.FieldType `yaml:"schema"`
	GenerateIDs       *bool                       `yaml:"generate_ids"`
	RequestTimeout    time.Duration               `yaml:"request_timeout"`
	CollectFailures   *bool                       `yaml:"collect_failures"`
	MaxOpsPerSecond   float64                     `yaml:"max_ops_per_second"`
	BatchPause        time.Duration               `yaml:"batch_pause"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	WindowSize       int           `yaml:"window_size"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// BackoffConfig holds the per-category retry delays not covered by ingest.
type BackoffConfig struct {
	RateLimitBase  time.Duration `yaml:"rate_limit_base"`
	RateLimitMax   time.Duration `yaml:"rate_limit_max"`
	AuthStep       time.Duration `yaml:"auth_step"`
	AuthMax        time.Duration `yaml:"auth_max"`
	AuthMaxRetries int           `yaml:"auth_max_retries"`
}

// ScalingConfig sets the consumption thresholds. Explicit thresholds win over
// ones derived from provisioned throughput.
type ScalingConfig struct {
	ProvisionedThroughput float64 `yaml:"provisioned_throughput"`
	HighCostPerSecond     float64 `yaml:"high_cost_per_second"`
	LowCostPerSecond      float64 `yaml:"low_cost_per_second"`
}

// PricingConfig holds cost estimator inputs. Zero fields use list prices.
type PricingConfig struct {
	PricePerMillion    float64       `yaml:"price_per_million"`
	PricePer100PerHour float64       `yaml:"price_per_100_per_hour"`
	Throughput         float64       `yaml:"throughput"`
	AutoscaleMax       float64       `yaml:"autoscale_max"`
	AutoscaleMultiple  float64       `yaml:"autoscale_multiple"`
	Utilization        float64       `yaml:"utilization"`
	Period             time.Duration `yaml:"period"`
	Regions            int           `yaml:"regions"`
}

// RequeueConfig holds dead-letter recovery settings.
type RequeueConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Interval     time.Duration `yaml:"interval"`
}

// InsertConfig builds the engine configuration for one run.
func (c *AppConfig) InsertConfig() domain.InsertConfig {
	in := c.Ingest
	out := domain.InsertConfig{
		BatchSize:          in.BatchSize,
		BaseBackoff:        in.BaseBackoff,
		MaxBackoff:         in.MaxBackoff,
		TargetUtilization:  in.TargetUtilization,
		MaxParallelism:     in.MaxParallelism,
		IdempotencyEnabled: in.Idempotency,
		IDField:            in.IDField,
		PartitionKeyField:  in.PartitionKeyField,
		Schema:             in.Schema,
		RequestTimeout:     in.RequestTimeout,
		MaxOpsPerSecond:    in.MaxOpsPerSecond,
		BatchPause:         in.BatchPause,
	}
	if in.MaxRetries != nil {
		out.MaxRetries = *in.MaxRetries
	}
	if in.GenerateIDs != nil {
		out.GenerateIDs = *in.GenerateIDs
	}
	if in.CollectFailures != nil {
		out.CollectFailures = *in.CollectFailures
	}
	if out.MaxParallelism == 0 {
		out.MaxParallelism = domain.AutoParallelism
	}
	return out
}

// BreakerConfig converts the circuit breaker section.
func (c *AppConfig) BreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		WindowSize:       c.CircuitBreaker.WindowSize,
		FailureThreshold: c.CircuitBreaker.FailureThreshold,
		ResetTimeout:     c.CircuitBreaker.ResetTimeout,
	}
}

// BackoffConfig converts the backoff section. Base and Max come from ingest.
func (c *AppConfig) BackoffConfig() resilience.BackoffConfig {
	return resilience.BackoffConfig{
		Base:           c.Ingest.BaseBackoff,
		Max:            c.Ingest.MaxBackoff,
		RateLimitBase:  c.Backoff.RateLimitBase,
		RateLimitMax:   c.Backoff.RateLimitMax,
		AuthStep:       c.Backoff.AuthStep,
		AuthMax:        c.Backoff.AuthMax,
		AuthMaxRetries: c.Backoff.AuthMaxRetries,
	}
}

func (s ScalingConfig) explicit() bool {
	return s.HighCostPerSecond > 0 && s.LowCostPerSecond > 0
}

// ScalingPolicy returns the recommendation thresholds.
func (c *AppConfig) ScalingPolicy() metrics.ScalingPolicy {
	s := c.Scaling
	if s.explicit() {
		return metrics.ScalingPolicy{
			HighCostPerSecond: s.HighCostPerSecond,
			LowCostPerSecond:  s.LowCostPerSecond,
		}
	}
	return metrics.DerivePolicy(s.ProvisionedThroughput, c.Ingest.TargetUtilization)
}

// ProvisionedThroughput returns the throughput each run derives its thresholds
// from, or 0 when explicit thresholds are configured.
func (c *AppConfig) ProvisionedThroughput() float64 {
	if c.Scaling.explicit() {
		return 0
	}
	return c.Scaling.ProvisionedThroughput
}

// PricingParams returns the cost estimator inputs.
func (c *AppConfig) PricingParams() cost.Params {
	p := c.Pricing
	d := cost.DefaultParams()
	if p.PricePerMillion > 0 {
		d.PricePerMillion = p.PricePerMillion
	}
	if p.PricePer100PerHour > 0 {
		d.PricePer100PerHour = p.PricePer100PerHour
	}
	if p.Throughput > 0 {
		d.Throughput = p.Throughput
	}
	if p.AutoscaleMax > 0 {
		d.AutoscaleMax = p.AutoscaleMax
	}
	if p.AutoscaleMultiple > 0 {
		d.AutoscaleMultiple = p.AutoscaleMultiple
	}
	if p.Utilization > 0 {
		d.Utilization = p.Utilization
	}
	if p.Period > 0 {
		d.Period = p.Period
	}
	if p.Regions > 0 {
		d.Regions = p.Regions
	}
	return d
}
