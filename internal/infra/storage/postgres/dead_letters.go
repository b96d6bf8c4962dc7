package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
)

// DeadLetterRepo implements storage.DeadLetterRepository using PostgreSQL.
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a new PostgreSQL dead-letter repository.
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

type deadLetterRow struct {
	Collection   string    `db:"collection"`
	ID           string    `db:"id"`
	PartitionKey string    `db:"partition_key"`
	Document     []byte    `db:"document"`
	Error        []byte    `db:"error"`
	Attempts     int       `db:"attempts"`
	RetryCount   int       `db:"retry_count"`
	Status       string    `db:"status"`
	LastAttempt  time.Time `db:"last_attempt"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row deadLetterRow) toDomain() (*domain.DeadLetter, error) {
	dl := &domain.DeadLetter{
		ID:           row.ID,
		Collection:   row.Collection,
		PartitionKey: row.PartitionKey,
		Attempts:     row.Attempts,
		RetryCount:   row.RetryCount,
		Status:       domain.DeadLetterStatus(row.Status),
		LastAttempt:  row.LastAttempt,
		CreatedAt:    row.CreatedAt,
	}
	if err := json.Unmarshal(row.Document, &dl.Document); err != nil {
		return nil, fmt.Errorf("failed to decode dead letter %s: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Error, &dl.Error); err != nil {
		return nil, fmt.Errorf("failed to decode dead letter %s error: %w", row.ID, err)
	}
	return dl, nil
}

const deadLetterColumns = `collection, id, partition_key, document, error, attempts, retry_count, status, last_attempt, created_at`

// Add parks a failed document. Re-adding the same id refreshes the entry.
func (r *DeadLetterRepo) Add(ctx context.Context, dl *domain.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	status := string(dl.Status)
	if status == "" {
		status = string(domain.DeadLetterStatusPending)
	}

	doc, err := json.Marshal(dl.Document)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	details, err := json.Marshal(dl.Error)
	if err != nil {
		return fmt.Errorf("failed to marshal error: %w", err)
	}

	query := `
		INSERT INTO dead_letters (collection, id, partition_key, document, error, attempts, retry_count, status, last_attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET document = EXCLUDED.document,
		    error = EXCLUDED.error,
		    attempts = EXCLUDED.attempts,
		    status = EXCLUDED.status,
		    last_attempt = NOW()
	`
	_, err = r.db.ExecContext(
		ctx,
		query,
		dl.Collection,
		dl.ID,
		dl.PartitionKey,
		string(doc),
		string(details),
		dl.Attempts,
		dl.RetryCount,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to add dead letter: %w", err)
	}
	return nil
}

// GetNext returns the next pending dead letter to retry.
func (r *DeadLetterRepo) GetNext(ctx context.Context, collection string) (*domain.DeadLetter, error) {
	query := `
		SELECT ` + deadLetterColumns + `
		FROM dead_letters
		WHERE collection = $1 AND status = 'pending'
		ORDER BY retry_count ASC, last_attempt ASC
		LIMIT 1
	`

	var row deadLetterRow
	err := r.db.GetContext(ctx, &row, query, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No pending dead letters
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return row.toDomain()
}

// IncrementRetry increments retry count and updates timestamp.
func (r *DeadLetterRepo) IncrementRetry(ctx context.Context, collection, id string) error {
	query := `
		UPDATE dead_letters
		SET retry_count = retry_count + 1, last_attempt = NOW()
		WHERE collection = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkResolved marks a dead letter as resolved.
func (r *DeadLetterRepo) MarkResolved(ctx context.Context, collection, id string) error {
	query := `
		UPDATE dead_letters
		SET status = 'resolved'
		WHERE collection = $1 AND id = $2
	`
	_, err := r.db.ExecContext(ctx, query, collection, id)
	return err
}

// GetAll returns all pending dead letters.
func (r *DeadLetterRepo) GetAll(ctx context.Context, collection string) ([]*domain.DeadLetter, error) {
	query := `
		SELECT ` + deadLetterColumns + `
		FROM dead_letters
		WHERE collection = $1 AND status = 'pending'
		ORDER BY retry_count ASC, last_attempt ASC
	`

	var rows []deadLetterRow
	if err := r.db.SelectContext(ctx, &rows, query, collection); err != nil {
		return nil, fmt.Errorf("failed to get all dead letters: %w", err)
	}

	letters := make([]*domain.DeadLetter, 0, len(rows))
	for _, row := range rows {
		dl, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

// Count returns the number of pending dead letters.
func (r *DeadLetterRepo) Count(ctx context.Context, collection string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM dead_letters
		WHERE collection = $1 AND status = 'pending'
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, collection); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}
