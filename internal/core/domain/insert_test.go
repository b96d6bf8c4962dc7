package domain

import (
	"errors"
	"testing"
	"time"
)

func TestInsertConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *InsertConfig)
		wantErr bool
	}{
		{"defaults", func(c *InsertConfig) {}, false},
		{"zero batch size", func(c *InsertConfig) { c.BatchSize = 0 }, true},
		{"negative retries", func(c *InsertConfig) { c.MaxRetries = -1 }, true},
		{"zero retries", func(c *InsertConfig) { c.MaxRetries = 0 }, false},
		{"max below base", func(c *InsertConfig) { c.MaxBackoff = c.BaseBackoff / 2 }, true},
		{"utilization zero", func(c *InsertConfig) { c.TargetUtilization = 0 }, true},
		{"utilization above one", func(c *InsertConfig) { c.TargetUtilization = 1.5 }, true},
		{"parallelism zero", func(c *InsertConfig) { c.MaxParallelism = 0 }, true},
		{"parallelism below auto", func(c *InsertConfig) { c.MaxParallelism = -2 }, true},
		{"parallelism bounded", func(c *InsertConfig) { c.MaxParallelism = 8 }, false},
		{"empty id field", func(c *InsertConfig) { c.IDField = "" }, true},
		{"empty partition field", func(c *InsertConfig) { c.PartitionKeyField = "" }, true},
		{"negative timeout", func(c *InsertConfig) { c.RequestTimeout = -time.Second }, true},
		{"negative ops", func(c *InsertConfig) { c.MaxOpsPerSecond = -1 }, true},
		{"unknown schema type", func(c *InsertConfig) { c.Schema = map[string]FieldType{"x": "date"} }, true},
		{"known schema type", func(c *InsertConfig) { c.Schema = map[string]FieldType{"x": FieldNumber} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultInsertConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestFieldType_Matches(t *testing.T) {
	tests := []struct {
		typ   FieldType
		value Value
		want  bool
	}{
		{FieldString, String("a"), true},
		{FieldString, Number(1), false},
		{FieldNumber, Number(1), true},
		{FieldBool, Bool(true), true},
		{FieldArray, Array(), true},
		{FieldObject, Object(nil), true},
		{FieldObject, Null, false},
	}

	for _, tt := range tests {
		if got := tt.typ.Matches(tt.value); got != tt.want {
			t.Errorf("%s.Matches(%s): expected %v, got %v", tt.typ, tt.value.Kind(), tt.want, got)
		}
	}
}
