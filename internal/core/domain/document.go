package domain

import (
	"encoding/json"
	"fmt"
)

// IdempotencyField is the field the engine stamps with a per-document token.
const IdempotencyField = "_idempotencyKey"

// Document is one record to persist, keyed by field name.
type Document map[string]Value

// Get returns the value of a field and whether it is present and non-null.
func (d Document) Get(field string) (Value, bool) {
	v, ok := d[field]
	if !ok || v.IsNull() {
		return Null, false
	}
	return v, true
}

// Key returns a scalar field rendered as a string (used for id and partition key lookups).
func (d Document) Key(field string) (string, bool) {
	v, ok := d.Get(field)
	if !ok {
		return "", false
	}
	s, ok := v.Scalar()
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Clone returns a shallow copy; nested arrays and objects are shared.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the document with sorted keys.
func (d Document) MarshalJSON() ([]byte, error) {
	return Object(map[string]Value(d)).MarshalJSON()
}

// UnmarshalJSON decodes a JSON object into the document.
func (d *Document) UnmarshalJSON(data []byte) error {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Kind() != KindObject {
		return fmt.Errorf("document must be a JSON object, got %s", v.Kind())
	}
	*d = Document(v.Fields())
	return nil
}

// ParseDocuments decodes a JSON array of objects.
func ParseDocuments(data []byte) ([]Document, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse documents: %w", err)
	}
	return docs, nil
}
