// Package control wires configuration into a running loader.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vietddude/docloader/internal/core/config"
	"github.com/vietddude/docloader/internal/core/domain"
	redisclient "github.com/vietddude/docloader/internal/infra/redis"
	"github.com/vietddude/docloader/internal/infra/storage"
	"github.com/vietddude/docloader/internal/infra/storage/memory"
	"github.com/vietddude/docloader/internal/infra/storage/postgres"
	"github.com/vietddude/docloader/internal/ingestion/engine"
	"github.com/vietddude/docloader/internal/ingestion/health"
	"github.com/vietddude/docloader/internal/ingestion/metrics"
	"github.com/vietddude/docloader/internal/ingestion/recovery"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

// Loader owns the storage backends, the engine and the health server.
type Loader struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	breaker      *resilience.CircuitBreaker
	store        storage.DocumentStore
	deadLetters  storage.DeadLetterRepository
	registry     *prometheus.Registry
	exporter     *metrics.Exporter
	healthMon    *health.Monitor
	healthServer *health.Server
	memStore     *memory.MemoryStorage
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Status is a point-in-time view of the loader.
type Status struct {
	Collection  string
	Documents   int    // -1 when the store cannot count
	DeadLetters int    // -1 when no dead-letter queue is configured
	NextRetry   string // id at the head of the dead-letter queue
	Circuit     resilience.CircuitState
}

// NewLoader creates a Loader with all dependencies initialized.
func NewLoader(ctx context.Context, cfg *config.AppConfig) (*Loader, error) {
	l := &Loader{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		log:      slog.Default(),
	}
	l.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	l.exporter = metrics.NewExporter(l.registry)

	// 1. Initialize Storage
	if err := l.initStore(ctx); err != nil {
		l.closeBackends()
		return nil, err
	}
	if err := l.initDeadLetters(); err != nil {
		l.closeBackends()
		return nil, err
	}

	// 2. Circuit breaker shared by every run
	l.breaker = resilience.NewCircuitBreaker(cfg.BreakerConfig())
	l.breaker.SetStateChangeCallback(func(t resilience.Transition) {
		l.exporter.SetCircuitState(int(t.To))
		l.log.Warn("Circuit breaker state changed",
			"from", t.From.String(),
			"to", t.To.String(),
			"failures", t.Failures,
		)
	})

	// 3. Engine
	l.engine = engine.New(engine.Config{
		Store:                 l.store,
		Breaker:               l.breaker,
		Backoff:               cfg.BackoffConfig(),
		DeadLetters:           l.deadLetters,
		Collection:            cfg.Ingest.Collection,
		Exporter:              l.exporter,
		Scaling:               cfg.ScalingPolicy(),
		ProvisionedThroughput: cfg.ProvisionedThroughput(),
		Logger:                l.log,
	})

	// 4. Health
	l.healthMon = health.NewMonitor(l.breaker, l.deadLetters, cfg.Ingest.Collection, l.exporter)
	if l.db != nil {
		l.healthMon.AddDependency("database", l.db)
	}
	if l.redisClient != nil {
		l.healthMon.AddDependency("redis", l.redisClient)
	}
	l.healthServer = health.NewServer(l.healthMon, cfg.Server.Port, l.registry)

	return l, nil
}

func (l *Loader) initStore(ctx context.Context) error {
	in := l.cfg.Ingest
	switch in.Store {
	case config.BackendPostgres:
		if err := l.openDB(ctx); err != nil {
			return err
		}
		l.store = postgres.NewDocumentRepo(l.db, in.Collection, in.IDField)
		l.log.Info("Using PostgreSQL storage", "collection", in.Collection)
	default:
		l.memStore = memory.NewMemoryStorage(in.IDField)
		l.store = l.memStore
		l.log.Info("Using Memory storage")
	}
	return nil
}

func (l *Loader) initDeadLetters() error {
	switch l.cfg.Ingest.DeadLetters {
	case config.BackendRedis:
		client, err := redisclient.NewClient(l.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
		l.redisClient = client
		l.deadLetters = redisclient.NewDeadLetterRepo(client, l.cfg.Redis.TTL)
	case config.BackendPostgres:
		if err := l.openDB(context.Background()); err != nil {
			return err
		}
		l.deadLetters = postgres.NewDeadLetterRepo(l.db)
	case config.BackendMemory:
		if l.memStore == nil {
			l.memStore = memory.NewMemoryStorage(l.cfg.Ingest.IDField)
		}
		l.deadLetters = memory.NewDeadLetterRepo(l.memStore)
	default:
		return nil
	}
	l.log.Info("Dead-letter queue enabled", "backend", l.cfg.Ingest.DeadLetters)
	return nil
}

// openDB connects and migrates once, shared by the store and the dead-letter queue.
func (l *Loader) openDB(ctx context.Context) error {
	if l.db != nil {
		return nil
	}
	db, err := postgres.NewDB(ctx, l.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return err
	}
	l.db = db
	return nil
}

// Engine returns the ingestion engine.
func (l *Loader) Engine() *engine.Engine {
	return l.engine
}

// Ingest runs one ingestion with the configured insert settings.
func (l *Loader) Ingest(ctx context.Context, docs []domain.Document) (*domain.InsertResult, error) {
	return l.engine.Ingest(ctx, docs, l.cfg.InsertConfig())
}

// Requeuer returns a dead-letter handler, or nil when no queue is configured.
// Retries go through a separate engine that shares the breaker but never parks.
func (l *Loader) Requeuer() *recovery.Handler {
	if l.deadLetters == nil {
		return nil
	}
	retryEngine := engine.New(engine.Config{
		Store:                 l.store,
		Breaker:               l.breaker,
		Backoff:               l.cfg.BackoffConfig(),
		Collection:            l.cfg.Ingest.Collection,
		Exporter:              l.exporter,
		Observer:              engine.NopObserver{},
		Scaling:               l.cfg.ScalingPolicy(),
		ProvisionedThroughput: l.cfg.ProvisionedThroughput(),
		Logger:                l.log,
	})

	insertCfg := l.cfg.InsertConfig()
	insertCfg.GenerateIDs = false
	insertCfg.CollectFailures = true

	strategy := recovery.DefaultBackoff()
	rq := l.cfg.Requeue
	if rq.MaxAttempts > 0 {
		strategy.MaxAttempts = rq.MaxAttempts
	}
	if rq.InitialDelay > 0 {
		strategy.InitialDelay = rq.InitialDelay
	}
	if rq.MaxDelay > 0 {
		strategy.MaxDelay = rq.MaxDelay
	}

	return recovery.NewHandler(
		l.deadLetters,
		recovery.EngineReinsert(retryEngine, insertCfg),
		strategy,
		l.cfg.Ingest.Collection,
	).WithLogger(l.log)
}

// Status reports document count, dead-letter depth and circuit state.
func (l *Loader) Status(ctx context.Context) (Status, error) {
	st := Status{
		Collection:  l.cfg.Ingest.Collection,
		Documents:   -1,
		DeadLetters: -1,
		Circuit:     l.breaker.State(),
	}
	if counter, ok := l.store.(storage.Counter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			return st, fmt.Errorf("failed to count documents: %w", err)
		}
		st.Documents = n
	}
	if l.deadLetters != nil {
		n, err := l.deadLetters.Count(ctx, l.cfg.Ingest.Collection)
		if err != nil {
			return st, fmt.Errorf("failed to count dead letters: %w", err)
		}
		st.DeadLetters = n

		next, err := l.deadLetters.GetNext(ctx, l.cfg.Ingest.Collection)
		if err != nil {
			return st, fmt.Errorf("failed to read dead-letter queue head: %w", err)
		}
		if next != nil {
			st.NextRetry = next.ID
		}
	}
	return st, nil
}

// HealthMonitor returns the health monitor.
func (l *Loader) HealthMonitor() *health.Monitor {
	return l.healthMon
}

// Start starts the health server and background collectors.
func (l *Loader) Start(ctx context.Context) {
	go func() {
		if err := l.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("Health server failed", "error", err)
		}
	}()

	if l.db != nil {
		l.db.StartMetricsCollector(ctx, l.exporter)
	}
	l.log.Info("Health server started", "port", l.cfg.Server.Port)
}

// Stop stops the health server and closes backends.
func (l *Loader) Stop(ctx context.Context) error {
	err := l.healthServer.Stop(ctx)
	l.closeBackends()
	return err
}

// Close releases backends without touching the health server.
func (l *Loader) Close() {
	l.closeBackends()
}

func (l *Loader) closeBackends() {
	if l.redisClient != nil {
		if err := l.redisClient.Close(); err != nil {
			l.log.Warn("Failed to close Redis", "error", err)
		}
		l.redisClient = nil
	}
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			l.log.Warn("Failed to close database", "error", err)
		}
		l.db = nil
	}
}
