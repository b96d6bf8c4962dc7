package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
)

type MemoryStorage struct {
	docs        map[string]domain.Document // partitionKey + "/" + id
	deadLetters map[string]map[string]*domain.DeadLetter
	idField     string
	mu          sync.RWMutex
}

// NewMemoryStorage creates an empty store keyed by idField.
func NewMemoryStorage(idField string) *MemoryStorage {
	if idField == "" {
		idField = "id"
	}
	return &MemoryStorage{
		docs:        make(map[string]domain.Document),
		deadLetters: make(map[string]map[string]*domain.DeadLetter),
		idField:     idField,
	}
}

// -----------------------------------------------------------------------------
// Document Store
// -----------------------------------------------------------------------------

// Create stores doc. A second document with the same id and partition key is a
// 409 unless it carries the stored copy's idempotency token.
func (s *MemoryStorage) Create(
	ctx context.Context,
	doc domain.Document,
	partitionKey string,
) (storage.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.CreateResult{}, err
	}

	id, ok := doc.Key(s.idField)
	if !ok {
		return storage.CreateResult{}, &storage.StoreError{
			StatusCode: 400,
			Message:    fmt.Sprintf("document is missing %q", s.idField),
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return storage.CreateResult{}, &storage.StoreError{StatusCode: 400, Message: err.Error(), Err: err}
	}

	key := partitionKey + "/" + id

	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, exists := s.docs[key]; exists {
		token, _ := stored.Key(domain.IdempotencyField)
		if storage.Replays(token, doc) {
			return storage.CreateResult{CostUnits: storage.ReplayCost, Body: body}, nil
		}
		return storage.CreateResult{}, &storage.StoreError{
			StatusCode: 409,
			Message:    fmt.Sprintf("document %s already exists in partition %s", id, partitionKey),
		}
	}
	s.docs[key] = doc.Clone()

	return storage.CreateResult{CostUnits: storage.WriteCost(len(body)), Body: body}, nil
}

// Get returns a stored document.
func (s *MemoryStorage) Get(partitionKey, id string) (domain.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[partitionKey+"/"+id]
	return doc, ok
}

// Count returns the number of stored documents.
func (s *MemoryStorage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// -----------------------------------------------------------------------------
// Dead Letter Repository
// -----------------------------------------------------------------------------

type DeadLetterRepo struct {
	store *MemoryStorage
}

func NewDeadLetterRepo(store *MemoryStorage) *DeadLetterRepo {
	return &DeadLetterRepo{store: store}
}

func (r *DeadLetterRepo) Add(ctx context.Context, dl *domain.DeadLetter) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	entry := *dl
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = domain.DeadLetterStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	byID, ok := r.store.deadLetters[dl.Collection]
	if !ok {
		byID = make(map[string]*domain.DeadLetter)
		r.store.deadLetters[dl.Collection] = byID
	}
	byID[entry.ID] = &entry
	dl.ID = entry.ID
	return nil
}

// GetNext returns the pending entry with the fewest retries, oldest attempt first.
func (r *DeadLetterRepo) GetNext(ctx context.Context, collection string) (*domain.DeadLetter, error) {
	pending, err := r.GetAll(ctx, collection)
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	return pending[0], nil
}

func (r *DeadLetterRepo) IncrementRetry(ctx context.Context, collection, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	dl, ok := r.store.deadLetters[collection][id]
	if !ok {
		return storage.ErrNotFound
	}
	dl.RetryCount++
	dl.LastAttempt = time.Now()
	return nil
}

func (r *DeadLetterRepo) MarkResolved(ctx context.Context, collection, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.deadLetters[collection], id)
	return nil
}

func (r *DeadLetterRepo) GetAll(ctx context.Context, collection string) ([]*domain.DeadLetter, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.DeadLetter, 0, len(r.store.deadLetters[collection]))
	for _, dl := range r.store.deadLetters[collection] {
		copied := *dl
		out = append(out, &copied)
	}
	slices.SortFunc(out, func(a, b *domain.DeadLetter) int {
		if a.RetryCount != b.RetryCount {
			return a.RetryCount - b.RetryCount
		}
		return a.LastAttempt.Compare(b.LastAttempt)
	})
	return out, nil
}

func (r *DeadLetterRepo) Count(ctx context.Context, collection string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.deadLetters[collection]), nil
}
