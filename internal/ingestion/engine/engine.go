// Package engine drives documents through a DocumentStore in sequential
// batches, retrying transient failures and stopping when the circuit stays open.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
	"github.com/vietddude/docloader/internal/ingestion/metrics"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

var (
	// ErrCircuitOpen is returned when the breaker is still open after one reset-timeout wait.
	ErrCircuitOpen = errors.New("circuit breaker open: service degraded")

	// ErrNoStore is returned when the engine has no document store.
	ErrNoStore = errors.New("no document store configured")
)

// Breaker gates batch starts and records per-attempt outcomes.
type Breaker interface {
	IsOpen() bool
	RecordSuccess()
	RecordFailure()
	ResetTimeout() time.Duration
}

// Config wires the engine's collaborators.
type Config struct {
	Store       storage.DocumentStore
	Breaker     Breaker                      // default: resilience.DefaultBreakerConfig
	Backoff     resilience.BackoffConfig     // Base and Max come from each run's InsertConfig
	DeadLetters storage.DeadLetterRepository // optional
	Collection  string                       // dead-letter namespace
	Exporter    *metrics.Exporter            // optional
	Observer    Observer                     // default: LogObserver
	Scaling     metrics.ScalingPolicy        // zero value: metrics.DefaultScalingPolicy
	Logger      *slog.Logger

	// ProvisionedThroughput, when set, replaces Scaling with thresholds
	// derived from each run's TargetUtilization.
	ProvisionedThroughput float64
}

// Engine is safe to reuse across runs; each Ingest call gets its own collector.
// The breaker is shared so sustained failures carry over between runs.
type Engine struct {
	cfg        Config
	classifier *resilience.Classifier
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() float64
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NewLogObserver(cfg.Logger)
	}
	if cfg.Scaling == (metrics.ScalingPolicy{}) {
		cfg.Scaling = metrics.DefaultScalingPolicy
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	return &Engine{
		cfg:        cfg,
		classifier: resilience.NewClassifier(),
		sleep:      sleepContext,
	}
}

// WithSleep replaces the wait used for backoff and circuit cooldown.
func (e *Engine) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Engine {
	e.sleep = fn
	return e
}

// WithJitter replaces the backoff jitter source.
func (e *Engine) WithJitter(fn func() float64) *Engine {
	e.jitter = fn
	return e
}

// Breaker returns the engine's circuit breaker.
func (e *Engine) Breaker() Breaker {
	return e.cfg.Breaker
}

// Ingest inserts docs in batches of cfg.BatchSize.
//
// Per-document failures are collected in the result. The returned error is
// non-nil only for invalid configuration, ErrCircuitOpen, cancellation or a
// rate limit the deadline cannot accommodate. In the latter cases the result
// is still returned with every unattempted document counted as failed.
func (e *Engine) Ingest(
	ctx context.Context,
	docs []domain.Document,
	cfg domain.InsertConfig,
) (*domain.InsertResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.Store == nil {
		return nil, ErrNoStore
	}

	r := e.newRun(cfg, len(docs))
	total := (len(docs) + cfg.BatchSize - 1) / cfg.BatchSize

	var runErr error
	for i := 0; i < total; i++ {
		start := i * cfg.BatchSize
		end := min(start+cfg.BatchSize, len(docs))

		if err := ctx.Err(); err != nil {
			runErr = err
			r.abort(ctx, docs[start:], abortCode(err), err)
			break
		}
		if err := r.awaitCircuit(ctx); err != nil {
			runErr = err
			code := domain.CodeCircuitOpen
			if !errors.Is(err, ErrCircuitOpen) {
				code = abortCode(err)
			}
			r.abort(ctx, docs[start:], code, err)
			break
		}

		e.cfg.Observer.BatchStarted(i+1, total, end-start)
		e.cfg.Exporter.IncBatch()
		r.processBatch(ctx, docs[start:end])

		if r.deadlineHit() {
			runErr = errRateDeadline
			r.abort(ctx, docs[end:], domain.CodeRequestTimeout, runErr)
			break
		}

		if cfg.BatchPause > 0 && end < len(docs) {
			if err := e.sleep(ctx, cfg.BatchPause); err != nil {
				runErr = err
				r.abort(ctx, docs[end:], abortCode(err), err)
				break
			}
		}
	}

	result := r.finish()
	e.cfg.Observer.Completed(result)
	if runErr != nil {
		return result, fmt.Errorf("ingestion aborted: %w", runErr)
	}
	return result, nil
}

// errRateDeadline reports a run the rate limit cannot finish before ctx expires.
var errRateDeadline = fmt.Errorf("%w: rate limit cannot admit remaining documents", context.DeadlineExceeded)

// abortCode maps a run-level context error to a failure code.
func abortCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CodeRequestTimeout
	}
	return domain.CodeCanceled
}

// run holds the mutable state of one Ingest call.
type run struct {
	engine    *Engine
	cfg       domain.InsertConfig
	policy    *resilience.BackoffPolicy
	scaling   metrics.ScalingPolicy
	collector *metrics.Collector
	limiter   *rate.Limiter

	mu        sync.Mutex
	result    domain.InsertResult
	outOfTime bool
}

func (e *Engine) newRun(cfg domain.InsertConfig, total int) *run {
	backoff := e.cfg.Backoff
	backoff.Base = cfg.BaseBackoff
	backoff.Max = cfg.MaxBackoff

	policy := resilience.NewBackoffPolicy(backoff)
	if e.jitter != nil {
		policy.WithJitter(e.jitter)
	}

	var limiter *rate.Limiter
	if cfg.MaxOpsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxOpsPerSecond), max(1, int(cfg.MaxOpsPerSecond)))
	}

	scaling := e.cfg.Scaling
	if e.cfg.ProvisionedThroughput > 0 {
		scaling = metrics.DerivePolicy(e.cfg.ProvisionedThroughput, cfg.TargetUtilization)
	}

	return &run{
		engine:    e,
		cfg:       cfg,
		policy:    policy,
		scaling:   scaling,
		collector: metrics.NewCollector(e.cfg.Exporter),
		limiter:   limiter,
		result:    domain.InsertResult{Total: total},
	}
}

// awaitCircuit waits out one reset timeout if the breaker is open.
func (r *run) awaitCircuit(ctx context.Context) error {
	breaker := r.engine.cfg.Breaker
	if !breaker.IsOpen() {
		return nil
	}

	wait := breaker.ResetTimeout()
	r.engine.cfg.Logger.Warn("circuit breaker open, waiting before next batch", "wait", wait)
	if err := r.engine.sleep(ctx, wait); err != nil {
		return err
	}
	if breaker.IsOpen() {
		return ErrCircuitOpen
	}
	r.engine.cfg.Logger.Info("circuit breaker half-open, trying next batch")
	return nil
}

func (r *run) processBatch(ctx context.Context, batch []domain.Document) {
	g := new(errgroup.Group)
	if r.cfg.MaxParallelism > 0 {
		g.SetLimit(r.cfg.MaxParallelism)
	}

	for _, raw := range batch {
		doc, partitionKey, details := prepare(raw, r.cfg)
		if details != nil {
			r.collector.RecordError(details.Code)
			r.recordFailure(ctx, doc, *details, 0, false)
			continue
		}
		g.Go(func() error {
			r.insert(ctx, doc, partitionKey)
			return nil
		})
	}

	// Document errors are recorded in the result, never returned.
	_ = g.Wait()
}

// insert runs one document's retry loop.
func (r *run) insert(ctx context.Context, doc domain.Document, partitionKey string) {
	e := r.engine
	id, _ := doc.Key(r.cfg.IDField)
	attempts := 0

	for {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				details := r.limiterFailure(ctx, err)
				r.collector.RecordError(details.Code)
				r.recordFailure(ctx, doc, details, attempts, attempts > 1)
				return
			}
		}

		attempts++
		start := time.Now()
		res, err := r.create(ctx, doc, partitionKey)
		latency := time.Since(start)

		if err == nil {
			r.collector.RecordCost(res.CostUnits)
			r.collector.RecordLatency(latency)
			e.cfg.Breaker.RecordSuccess()
			r.recordSuccess(id, attempts)
			return
		}

		details := e.classifier.Classify(err)
		e.cfg.Breaker.RecordFailure()
		r.collector.RecordError(details.Code)

		retry := attempts // 1 = first retry
		if retry > r.policy.MaxRetries(details, r.cfg.MaxRetries) {
			r.recordFailure(ctx, doc, details, attempts, attempts > 1)
			return
		}

		delay := r.policy.Delay(retry, details)
		if details.Category == domain.CategoryRateLimited {
			e.cfg.Observer.RateLimited(id, retry, delay)
		} else {
			e.cfg.Observer.Retrying(id, retry, delay, details)
		}
		e.cfg.Exporter.IncRetry(details.Category.String())

		if err := e.sleep(ctx, delay); err != nil {
			r.recordFailure(ctx, doc, details, attempts, attempts > 1)
			return
		}
	}
}

// limiterFailure classifies a limiter refusal. Wait fails before ctx is done
// when the next token would only arrive after the deadline.
func (r *run) limiterFailure(ctx context.Context, err error) domain.ErrorDetails {
	cause := context.DeadlineExceeded
	if errors.Is(ctx.Err(), context.Canceled) {
		cause = context.Canceled
	} else {
		r.mu.Lock()
		r.outOfTime = true
		r.mu.Unlock()
	}
	details := r.engine.classifier.Classify(cause)
	details.Message = err.Error()
	return details
}

func (r *run) deadlineHit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outOfTime
}

// create races the store call against the per-attempt timeout.
func (r *run) create(ctx context.Context, doc domain.Document, partitionKey string) (storage.CreateResult, error) {
	if r.cfg.RequestTimeout <= 0 {
		return r.engine.cfg.Store.Create(ctx, doc, partitionKey)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	type outcome struct {
		res storage.CreateResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.engine.cfg.Store.Create(attemptCtx, doc, partitionKey)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return storage.CreateResult{}, ctx.Err()
		}
		return storage.CreateResult{}, &storage.StoreError{
			StatusCode: 408,
			Message:    fmt.Sprintf("insert timed out after %v", r.cfg.RequestTimeout),
			Err:        attemptCtx.Err(),
		}
	}
}

func (r *run) recordSuccess(id string, attempts int) {
	r.mu.Lock()
	r.result.Inserted++
	if attempts > 1 {
		r.result.Retried++
	}
	r.mu.Unlock()

	r.engine.cfg.Exporter.AddDocuments("inserted", 1)
	if attempts > 1 {
		r.engine.cfg.Observer.Recovered(id, attempts)
	}
}

func (r *run) recordFailure(
	ctx context.Context,
	doc domain.Document,
	details domain.ErrorDetails,
	attempts int,
	retried bool,
) {
	r.mu.Lock()
	r.result.Failed++
	if retried {
		r.result.Retried++
	}
	if r.cfg.CollectFailures {
		r.result.FailedDocuments = append(r.result.FailedDocuments, domain.FailedDocument{
			Document: doc,
			Error:    details,
			Attempts: attempts,
		})
	}
	r.mu.Unlock()

	r.engine.cfg.Exporter.AddDocuments("failed", 1)
	if details.Category != domain.CategoryValidation {
		r.deadLetter(ctx, doc, details, attempts)
	}
}

// abort counts every remaining document as failed with code.
func (r *run) abort(ctx context.Context, remaining []domain.Document, code string, cause error) {
	details := domain.ErrorDetails{
		Code:     code,
		Message:  cause.Error(),
		Category: domain.CategoryPermanent,
	}
	for _, doc := range remaining {
		r.collector.RecordError(code)
		r.recordFailure(ctx, doc, details, 0, false)
	}
}

func (r *run) deadLetter(ctx context.Context, doc domain.Document, details domain.ErrorDetails, attempts int) {
	repo := r.engine.cfg.DeadLetters
	if repo == nil {
		return
	}

	id, _ := doc.Key(r.cfg.IDField)
	partitionKey, _ := doc.Key(r.cfg.PartitionKeyField)
	now := time.Now()

	// The run's context may already be done; parking must still succeed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := repo.Add(ctx, &domain.DeadLetter{
		ID:           id,
		Collection:   r.engine.cfg.Collection,
		PartitionKey: partitionKey,
		Document:     doc,
		Error:        details,
		Attempts:     attempts,
		Status:       domain.DeadLetterStatusPending,
		LastAttempt:  now,
		CreatedAt:    now,
	})
	if err != nil {
		r.engine.cfg.Logger.Warn("failed to park document in dead-letter queue", "id", id, "error", err)
	}
}

func (r *run) finish() *domain.InsertResult {
	r.collector.Finish()

	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.result
	result.Metrics = r.collector.Summary()
	result.Recommendation = metrics.Recommend(result.Metrics.CostPerSecond, r.scaling)
	return &result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
