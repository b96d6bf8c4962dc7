package engine

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/vietddude/docloader/internal/core/domain"
)

// prepare validates raw and returns the copy to insert together with its partition key.
// Generated ids and idempotency tokens are added to the copy, never to raw.
func prepare(raw domain.Document, cfg domain.InsertConfig) (domain.Document, string, *domain.ErrorDetails) {
	doc := raw.Clone()

	if _, ok := doc.Key(cfg.IDField); !ok {
		if !cfg.GenerateIDs {
			return raw, "", invalid("missing required field %q", cfg.IDField)
		}
		doc[cfg.IDField] = domain.String(uuid.NewString())
	}

	partitionKey, ok := doc.Key(cfg.PartitionKeyField)
	if !ok {
		return raw, "", invalid("missing partition key field %q", cfg.PartitionKeyField)
	}

	fields := make([]string, 0, len(cfg.Schema))
	for field := range cfg.Schema {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	for _, field := range fields {
		v, ok := doc.Get(field)
		if !ok {
			continue
		}
		if want := cfg.Schema[field]; !want.Matches(v) {
			return raw, "", invalid("field %q: expected %s, got %s", field, want, v.Kind())
		}
	}

	if cfg.IdempotencyEnabled {
		if _, ok := doc.Key(domain.IdempotencyField); !ok {
			doc[domain.IdempotencyField] = domain.String(uuid.NewString())
		}
	}

	return doc, partitionKey, nil
}

func invalid(format string, args ...any) *domain.ErrorDetails {
	d := domain.ValidationError(fmt.Sprintf(format, args...))
	return &d
}
