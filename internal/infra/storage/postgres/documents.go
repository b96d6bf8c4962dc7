package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
)

// DocumentRepo implements storage.DocumentStore on a JSONB table.
type DocumentRepo struct {
	db         *DB
	collection string
	idField    string
}

// NewDocumentRepo creates a document store for one collection.
func NewDocumentRepo(db *DB, collection, idField string) *DocumentRepo {
	if idField == "" {
		idField = "id"
	}
	return &DocumentRepo{db: db, collection: collection, idField: idField}
}

// Create inserts doc. Duplicate ids within a partition surface as 409 unless
// the stored row carries the same idempotency token.
func (r *DocumentRepo) Create(
	ctx context.Context,
	doc domain.Document,
	partitionKey string,
) (storage.CreateResult, error) {
	id, ok := doc.Key(r.idField)
	if !ok {
		return storage.CreateResult{}, &storage.StoreError{
			StatusCode: 400,
			Message:    fmt.Sprintf("document is missing %q", r.idField),
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return storage.CreateResult{}, &storage.StoreError{StatusCode: 400, Message: err.Error(), Err: err}
	}

	query := `
		INSERT INTO documents (collection, partition_key, id, body, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, partition_key, id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, r.collection, partitionKey, id, string(body), len(body))
	if err != nil {
		return storage.CreateResult{}, mapError(err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return storage.CreateResult{}, mapError(err)
	}
	if inserted > 0 {
		return storage.CreateResult{CostUnits: storage.WriteCost(len(body)), Body: body}, nil
	}

	var token string
	err = r.db.GetContext(ctx, &token, `
		SELECT COALESCE(body->>'_idempotencyKey', '')
		FROM documents
		WHERE collection = $1 AND partition_key = $2 AND id = $3
	`, r.collection, partitionKey, id)
	if err != nil {
		return storage.CreateResult{}, mapError(err)
	}
	if storage.Replays(token, doc) {
		return storage.CreateResult{CostUnits: storage.ReplayCost, Body: body}, nil
	}

	return storage.CreateResult{}, &storage.StoreError{
		StatusCode: 409,
		Headers:    map[string]string{storage.HeaderSubStatus: uniqueViolation},
		Message:    fmt.Sprintf("document %s already exists in partition %s", id, partitionKey),
	}
}

// Count returns the number of documents in the collection.
func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM documents WHERE collection = $1`, r.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
