package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
)

const defaultDeadLetterTTL = 7 * 24 * time.Hour

// DeadLetterRepo implements storage.DeadLetterRepository using Redis.
// Each collection has a sorted set of ids (score = retry count) and one key per entry.
type DeadLetterRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeadLetterRepo creates a new Redis-backed dead-letter repository.
func NewDeadLetterRepo(client *Client, ttl time.Duration) *DeadLetterRepo {
	if ttl <= 0 {
		ttl = defaultDeadLetterTTL
	}
	return &DeadLetterRepo{rdb: client.rdb, ttl: ttl}
}

// Key helpers
func queueKey(collection string) string {
	return fmt.Sprintf("dead_letters:%s", collection)
}

func entryKey(collection, id string) string {
	return fmt.Sprintf("dead_letter:%s:%s", collection, id)
}

// Add adds a failed document to the queue.
func (r *DeadLetterRepo) Add(ctx context.Context, dl *domain.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.Status == "" {
		dl.Status = domain.DeadLetterStatusPending
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	return r.save(ctx, dl)
}

func (r *DeadLetterRepo) save(ctx context.Context, dl *domain.DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey(dl.Collection, dl.ID), data, r.ttl)
		// Lower retry count = retried first
		pipe.ZAdd(ctx, queueKey(dl.Collection), redis.Z{
			Score:  float64(dl.RetryCount),
			Member: dl.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) load(ctx context.Context, collection, id string) (*domain.DeadLetter, error) {
	data, err := r.rdb.Get(ctx, entryKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}

	var dl domain.DeadLetter
	if err := json.Unmarshal(data, &dl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	return &dl, nil
}

// GetNext retrieves the next dead letter to retry.
func (r *DeadLetterRepo) GetNext(ctx context.Context, collection string) (*domain.DeadLetter, error) {
	for {
		// Get the first member (lowest retry count)
		ids, err := r.rdb.ZRange(ctx, queueKey(collection), 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange failed: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}

		dl, err := r.load(ctx, collection, ids[0])
		if errors.Is(err, storage.ErrNotFound) {
			// Data expired but ID still in queue, remove it
			if err := r.rdb.ZRem(ctx, queueKey(collection), ids[0]).Err(); err != nil {
				return nil, fmt.Errorf("zrem failed: %w", err)
			}
			continue
		}
		return dl, err
	}
}

// IncrementRetry increments retry count and updates last attempt.
func (r *DeadLetterRepo) IncrementRetry(ctx context.Context, collection, id string) error {
	dl, err := r.load(ctx, collection, id)
	if err != nil {
		return err
	}

	dl.RetryCount++
	dl.LastAttempt = time.Now()
	return r.save(ctx, dl)
}

// MarkResolved removes a dead letter (successfully retried).
func (r *DeadLetterRepo) MarkResolved(ctx context.Context, collection, id string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, queueKey(collection), id)
		pipe.Del(ctx, entryKey(collection, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}
	return nil
}

// GetAll retrieves all dead letters in retry order.
func (r *DeadLetterRepo) GetAll(ctx context.Context, collection string) ([]*domain.DeadLetter, error) {
	ids, err := r.rdb.ZRange(ctx, queueKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	letters := make([]*domain.DeadLetter, 0, len(ids))
	for _, id := range ids {
		dl, err := r.load(ctx, collection, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

// Count returns the count of dead letters.
func (r *DeadLetterRepo) Count(ctx context.Context, collection string) (int, error) {
	count, err := r.rdb.ZCard(ctx, queueKey(collection)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
