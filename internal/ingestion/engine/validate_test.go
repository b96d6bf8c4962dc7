package engine

import (
	"testing"

	"github.com/vietddude/docloader/internal/core/domain"
)

func TestPrepare(t *testing.T) {
	base := func() domain.InsertConfig {
		cfg := domain.DefaultInsertConfig()
		cfg.GenerateIDs = false
		cfg.PartitionKeyField = "tenant"
		cfg.Schema = map[string]domain.FieldType{
			"age":  domain.FieldNumber,
			"tags": domain.FieldArray,
		}
		return cfg
	}

	tests := []struct {
		name    string
		doc     domain.Document
		mutate  func(cfg *domain.InsertConfig)
		wantErr bool
		wantPK  string
	}{
		{
			name:   "valid",
			doc:    domain.Document{"id": domain.String("a"), "tenant": domain.String("t1"), "age": domain.Number(3)},
			wantPK: "t1",
		},
		{
			name:    "missing id",
			doc:     domain.Document{"tenant": domain.String("t1")},
			wantErr: true,
		},
		{
			name:    "null id",
			doc:     domain.Document{"id": domain.Null, "tenant": domain.String("t1")},
			wantErr: true,
		},
		{
			name:    "missing partition key",
			doc:     domain.Document{"id": domain.String("a")},
			wantErr: true,
		},
		{
			name:   "numeric partition key",
			doc:    domain.Document{"id": domain.String("a"), "tenant": domain.Number(7)},
			wantPK: "7",
		},
		{
			name:    "schema mismatch",
			doc:     domain.Document{"id": domain.String("a"), "tenant": domain.String("t1"), "age": domain.String("x")},
			wantErr: true,
		},
		{
			name:   "absent schema field is allowed",
			doc:    domain.Document{"id": domain.String("a"), "tenant": domain.String("t1")},
			wantPK: "t1",
		},
		{
			name:   "generated id",
			doc:    domain.Document{"tenant": domain.String("t1")},
			mutate: func(cfg *domain.InsertConfig) { cfg.GenerateIDs = true },
			wantPK: "t1",
		},
		{
			name: "generated id doubles as partition key",
			doc:  domain.Document{"name": domain.String("n")},
			mutate: func(cfg *domain.InsertConfig) {
				cfg.GenerateIDs = true
				cfg.PartitionKeyField = "id"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			before := len(tt.doc)

			doc, pk, details := prepare(tt.doc, cfg)
			if tt.wantErr {
				if details == nil {
					t.Fatal("expected validation error, got nil")
				}
				if details.Code != domain.CodeValidation || details.Retryable {
					t.Errorf("expected non-retryable VALIDATION_ERROR, got %+v", *details)
				}
				return
			}
			if details != nil {
				t.Fatalf("unexpected validation error: %s", details.Message)
			}
			if _, ok := doc.Key("id"); !ok {
				t.Error("expected document to carry an id")
			}
			if tt.wantPK != "" && pk != tt.wantPK {
				t.Errorf("expected partition key %q, got %q", tt.wantPK, pk)
			}
			if pk == "" {
				t.Error("expected non-empty partition key")
			}
			if len(tt.doc) != before {
				t.Error("expected caller's document to be left untouched")
			}
		})
	}
}

func TestPrepare_IdempotencyToken(t *testing.T) {
	cfg := domain.DefaultInsertConfig()
	cfg.IdempotencyEnabled = true

	doc, _, details := prepare(domain.Document{"id": domain.String("a")}, cfg)
	if details != nil {
		t.Fatalf("unexpected error: %s", details.Message)
	}
	token, ok := doc.Key(domain.IdempotencyField)
	if !ok || token == "" {
		t.Fatal("expected idempotency token to be added")
	}

	again, _, _ := prepare(doc, cfg)
	if got, _ := again.Key(domain.IdempotencyField); got != token {
		t.Errorf("expected existing token %q to be kept, got %q", token, got)
	}
}
