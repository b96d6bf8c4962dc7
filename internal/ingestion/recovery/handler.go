// Package recovery drains the dead-letter queue by re-inserting parked documents.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
	"github.com/vietddude/docloader/internal/ingestion/engine"
)

// Reinsert is a callback that retries one parked document.
type Reinsert func(ctx context.Context, doc domain.Document) error

// Outcome is the result of one ProcessNext call.
type Outcome int

const (
	OutcomeIdle      Outcome = iota // queue empty
	OutcomeWaiting                  // nothing due, some entry still in backoff
	OutcomeExhausted                // nothing due, every entry used up its attempts
	OutcomeResolved
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeResolved:
		return "resolved"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats summarizes a Drain call.
type Stats struct {
	Resolved  int
	Failed    int
	Remaining int
}

// Handler processes the dead-letter queue of one collection.
type Handler struct {
	repo       storage.DeadLetterRepository
	reinsert   Reinsert
	strategy   RetryStrategy
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates a new dead-letter handler.
func NewHandler(
	repo storage.DeadLetterRepository,
	reinsert Reinsert,
	strategy RetryStrategy,
	collection string,
) *Handler {
	if strategy == nil {
		strategy = DefaultBackoff()
	}
	return &Handler{
		repo:       repo,
		reinsert:   reinsert,
		strategy:   strategy,
		collection: collection,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// WithLogger sets the handler logger.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithClock replaces the time source.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// ProcessNext retries the first dead letter whose backoff has elapsed. Entries
// still in backoff or out of attempts are passed over.
func (h *Handler) ProcessNext(ctx context.Context) (Outcome, error) {
	return h.processNext(ctx, nil)
}

func (h *Handler) processNext(ctx context.Context, skip map[string]bool) (Outcome, error) {
	dl, outcome, err := h.nextDue(ctx, skip)
	if dl == nil || err != nil {
		return outcome, err
	}
	if skip != nil {
		skip[dl.ID] = true
	}

	err = h.reinsert(ctx, dl.Document)
	if err == nil {
		if err := h.repo.MarkResolved(ctx, h.collection, dl.ID); err != nil {
			return OutcomeResolved, fmt.Errorf("failed to resolve dead letter %s: %w", dl.ID, err)
		}
		h.logger.Info("dead letter resolved", "id", dl.ID, "retries", dl.RetryCount+1)
		return OutcomeResolved, nil
	}

	// Nothing was attempted; leave the entry untouched for the next pass.
	if errors.Is(err, engine.ErrCircuitOpen) {
		return OutcomeWaiting, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return OutcomeFailed, ctxErr
	}

	if err := h.repo.IncrementRetry(ctx, h.collection, dl.ID); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to increment retry: %w", err)
	}
	h.logger.Warn("dead letter retry failed", "id", dl.ID, "retries", dl.RetryCount+1, "error", err)
	return OutcomeFailed, nil
}

// nextDue returns the first entry in retry order that is due. With none due it
// reports why: idle for an empty queue, waiting if any entry is in backoff.
func (h *Handler) nextDue(ctx context.Context, skip map[string]bool) (*domain.DeadLetter, Outcome, error) {
	letters, err := h.repo.GetAll(ctx, h.collection)
	if err != nil {
		return nil, OutcomeIdle, fmt.Errorf("failed to list dead letters: %w", err)
	}

	outcome := OutcomeIdle
	now := h.now()
	for _, dl := range letters {
		if skip[dl.ID] {
			continue
		}
		if h.strategy.Exhausted(dl.RetryCount) {
			if outcome == OutcomeIdle {
				outcome = OutcomeExhausted
			}
			continue
		}
		if now.Before(dl.LastAttempt.Add(h.strategy.Delay(dl.RetryCount))) {
			outcome = OutcomeWaiting
			continue
		}
		return dl, OutcomeIdle, nil
	}
	return nil, outcome, nil
}

// Drain retries every due entry once, stopping early after limit entries
// (0 = no limit) or when a retry could not be attempted.
func (h *Handler) Drain(ctx context.Context, limit int) (Stats, error) {
	var stats Stats
	seen := make(map[string]bool)
	for processed := 0; limit <= 0 || processed < limit; processed++ {
		outcome, err := h.processNext(ctx, seen)
		if err != nil {
			return stats, err
		}
		if outcome == OutcomeResolved {
			stats.Resolved++
			continue
		}
		if outcome == OutcomeFailed {
			stats.Failed++
			continue
		}
		break
	}

	remaining, err := h.repo.Count(ctx, h.collection)
	if err != nil {
		return stats, fmt.Errorf("failed to count dead letters: %w", err)
	}
	stats.Remaining = remaining
	return stats, nil
}

// Run drains the queue every interval until ctx is done.
func (h *Handler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := h.Drain(ctx, 0)
		if err != nil && ctx.Err() == nil {
			h.logger.Error("dead letter drain failed", "error", err)
		} else if stats.Resolved+stats.Failed > 0 {
			h.logger.Info("dead letter pass complete",
				"resolved", stats.Resolved,
				"failed", stats.Failed,
				"remaining", stats.Remaining,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// EngineReinsert re-inserts a parked document through eng using cfg.
// eng should not park failures itself, otherwise a failed retry is parked twice.
func EngineReinsert(eng *engine.Engine, cfg domain.InsertConfig) Reinsert {
	return func(ctx context.Context, doc domain.Document) error {
		result, err := eng.Ingest(ctx, []domain.Document{doc}, cfg)
		if err != nil {
			return err
		}
		if result.Failed == 0 {
			return nil
		}
		if len(result.FailedDocuments) > 0 {
			d := result.FailedDocuments[0].Error
			return fmt.Errorf("insert failed with %s: %s", d.Code, d.Message)
		}
		return errors.New("insert failed")
	}
}
