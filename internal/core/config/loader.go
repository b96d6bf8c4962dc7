package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/docloader/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expands environment variables and fills defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.setDefaults()
	return &cfg
}

func (c *AppConfig) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	d := domain.DefaultInsertConfig()
	in := &c.Ingest
	if in.Store == "" {
		in.Store = BackendMemory
	}
	if in.DeadLetters == "" {
		in.DeadLetters = BackendNone
	}
	if in.Collection == "" {
		in.Collection = "documents"
	}
	if in.BatchSize == 0 {
		in.BatchSize = d.BatchSize
	}
	if in.MaxRetries == nil {
		in.MaxRetries = &d.MaxRetries
	}
	if in.BaseBackoff == 0 {
		in.BaseBackoff = d.BaseBackoff
	}
	if in.MaxBackoff == 0 {
		in.MaxBackoff = d.MaxBackoff
	}
	if in.TargetUtilization == 0 {
		in.TargetUtilization = d.TargetUtilization
	}
	if in.IDField == "" {
		in.IDField = d.IDField
	}
	if in.PartitionKeyField == "" {
		in.PartitionKeyField = in.IDField
	}
	if in.GenerateIDs == nil {
		in.GenerateIDs = &d.GenerateIDs
	}
	if in.RequestTimeout == 0 {
		in.RequestTimeout = d.RequestTimeout
	}
	if in.CollectFailures == nil {
		in.CollectFailures = &d.CollectFailures
	}

	if c.Requeue.Interval == 0 {
		c.Requeue.Interval = 30 * time.Second
	}
}

func (c *AppConfig) validate() error {
	switch c.Ingest.Store {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown ingest store %q", c.Ingest.Store)
	}
	switch c.Ingest.DeadLetters {
	case BackendMemory, BackendPostgres, BackendRedis, BackendNone:
	default:
		return fmt.Errorf("unknown dead-letter backend %q", c.Ingest.DeadLetters)
	}
	if err := c.InsertConfig().Validate(); err != nil {
		return err
	}
	if err := c.PricingParams().Validate(); err != nil {
		return fmt.Errorf("invalid pricing: %w", err)
	}
	return nil
}
