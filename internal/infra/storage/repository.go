package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vietddude/docloader/internal/core/domain"
)

// Provider headers carried on store errors.
const (
	HeaderSubStatus    = "x-ms-substatus"
	HeaderRetryAfterMs = "x-ms-retry-after-ms"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("not found")
)

// CreateResult is returned by a successful create.
type CreateResult struct {
	CostUnits float64
	Body      []byte
}

// DocumentStore persists documents. Any non-2xx condition is returned as an error,
// preferably a *StoreError.
type DocumentStore interface {
	// Create inserts a new document under the given partition key
	Create(ctx context.Context, doc domain.Document, partitionKey string) (CreateResult, error)
}

// Counter is implemented by stores that can report how many documents they hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// DeadLetterRepository handles the failed documents queue
type DeadLetterRepository interface {
	// Add adds a failed document
	Add(ctx context.Context, dl *domain.DeadLetter) error

	// GetNext retrieves the next dead letter to retry
	GetNext(ctx context.Context, collection string) (*domain.DeadLetter, error)

	// IncrementRetry increments retry count
	IncrementRetry(ctx context.Context, collection, id string) error

	// MarkResolved removes a dead letter (successfully retried)
	MarkResolved(ctx context.Context, collection, id string) error

	// GetAll retrieves all dead letters
	GetAll(ctx context.Context, collection string) ([]*domain.DeadLetter, error)

	// Count returns the count of dead letters
	Count(ctx context.Context, collection string) (int, error)
}

// StoreError is the provider error returned by store adapters.
type StoreError struct {
	Code       string // explicit provider code, may be empty
	StatusCode int
	Headers    map[string]string
	Message    string

	// TokenExpired marks a 403 caused by an expiring credential rather than a permanent denial.
	TokenExpired bool

	Err error
}

func (e *StoreError) Error() string {
	code := e.Code
	if code == "" && e.StatusCode != 0 {
		code = fmt.Sprintf("%d", e.StatusCode)
	}
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("store error %s: %v", code, e.Err)
	}
	return fmt.Sprintf("store error %s: %s", code, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Header returns a header value or "".
func (e *StoreError) Header(name string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[name]
}

const (
	writeUnitsFirstKB    = 5.0
	writeUnitsPerExtraKB = 2.0
)

// WriteCost approximates the cost units of writing a payload of size bytes.
func WriteCost(size int) float64 {
	kb := math.Max(1, math.Ceil(float64(size)/1024))
	return writeUnitsFirstKB + (kb-1)*writeUnitsPerExtraKB
}

// ReplayCost is charged when a create resolves to the copy an earlier attempt wrote.
const ReplayCost = 1.0

// Replays reports whether a create of incoming over a stored document whose
// idempotency token is storedToken repeats the same write. Documents without
// a token never replay.
func Replays(storedToken string, incoming domain.Document) bool {
	token, ok := incoming.Key(domain.IdempotencyField)
	return ok && storedToken != "" && token == storedToken
}
