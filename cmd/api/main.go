package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/hive402/backend/db/migrations"
	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/cache"
	"github.com/hive402/backend/internal/config"
	"github.com/hive402/backend/internal/dashboard"
	"github.com/hive402/backend/internal/events"
	"github.com/hive402/backend/internal/gate"
	"github.com/hive402/backend/internal/handlers"
	"github.com/hive402/backend/internal/jobs"
	"github.com/hive402/backend/internal/ledger"
	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/payment"
	"github.com/hive402/backend/internal/registry"
	"github.com/hive402/backend/internal/repository"
	"github.com/hive402/backend/internal/repository/memstore"
	"github.com/hive402/backend/internal/router"
	"github.com/hive402/backend/internal/services"
	"github.com/hive402/backend/internal/sweeper"
	"github.com/hive402/backend/internal/telemetry"
	"github.com/hive402/backend/internal/version"
)

// stores groups the persistence each component reads and writes.
type stores struct {
	tasks  interface {
		jobs.Store
		dashboard.TaskLister
	}
	skills registry.Store
	agents middleware.AgentStore
	orders ledger.Store
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "hive-api")
	slog.SetDefault(logger)

	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "hive-api", cfg.OTelEndpoint)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer()
	telemetry.StartMetricsServer(ctx, cfg.MetricsAddr, logger)

	// Events
	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
		slog.Info("Publishing lifecycle events to Kafka", "brokers", cfg.KafkaBrokers)
	}
	defer func() { _ = publisher.Close() }()

	// Storage
	var (
		st   stores
		pool *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := memstore.New()
		st = stores{tasks: mem, skills: mem, agents: mem, orders: mem}
		slog.Warn("Using in-memory store; state is lost on restart")
	case config.StorePostgres:
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Unable to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running or set STORE_DRIVER=memory", "error", err)
			os.Exit(1)
		}
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			slog.Error("Schema migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Schema migrations applied", "files", applied)

		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			slog.Error("Failed to create River migrator", "error", err)
			os.Exit(1)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			slog.Error("River migrate up failed", "error", err)
			os.Exit(1)
		}
		st = stores{
			tasks:  repository.NewTaskRepo(pool),
			skills: repository.NewSkillRepo(pool),
			agents: repository.NewAgentRepo(pool),
			orders: ledger.NewRepository(pool),
		}
	default:
		slog.Error("Unknown STORE_DRIVER", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	// Queue and sweeps
	queue := jobs.NewService(st.tasks,
		jobs.WithStaleAfter(cfg.TaskStaleAfter),
		jobs.WithEvents(publisher),
		jobs.WithLogger(logger),
	)
	if pool != nil {
		workers := river.NewWorkers()
		sweeper.Register(workers, queue, logger)
		riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 2},
			},
			Workers:      workers,
			PeriodicJobs: sweeper.PeriodicJobs(cfg.SweepInterval, cfg.TaskProcessingTimeout),
			Logger:       logger,
		})
		if err != nil {
			slog.Error("Failed to create River client", "error", err)
			os.Exit(1)
		}
		if err := riverClient.Start(ctx); err != nil {
			slog.Error("River client failed to start", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = riverClient.Stop(stopCtx)
		}()
	} else {
		go sweeper.Loop(ctx, queue, cfg.SweepInterval, cfg.TaskProcessingTimeout, logger)
	}

	// Rate limiting and single-use access keys
	limiter := cache.NewMemoryRateLimiter(cfg.IngestRateLimit, cfg.IngestRateWindow)
	redeemer := cache.NewMemoryRedeemer()
	if cfg.RedisAddr != "" {
		rdb := cache.NewClient(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Cannot reach Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		limiter = cache.NewRateLimiter(rdb, cfg.IngestRateLimit, cfg.IngestRateWindow)
		redeemer = cache.NewRedeemer(rdb)
	}

	// Ingestion gate
	if cfg.AllowSimulated {
		slog.Warn("Simulated payment proofs are ACCEPTED; never enable this in production")
	}
	keys := auth.NewAccessKeys(cfg.JWTSecret, cfg.AccessKeyTTL)
	verifier := &payment.Verifier{
		Rail:           cfg.Rail,
		Lookup:         payment.NewHiroClient(cfg.HiroURL, logger),
		AllowSimulated: cfg.AllowSimulated,
	}
	g := gate.New(st.skills, verifier, ledger.NewService(st.orders), keys, cfg.Rail,
		gate.WithEvents(publisher),
		gate.WithLogger(logger),
	)

	validator, err := services.NewOutputValidator()
	if err != nil {
		slog.Error("Output schema failed to compile", "error", err)
		os.Exit(1)
	}

	handler := router.New(router.Deps{
		Tasks:       &handlers.TaskHandler{Queue: queue, Skills: st.skills, Validator: validator, Logger: logger},
		Ingest:      &handlers.IngestHandler{Gate: g, Logger: logger},
		Content:     &handlers.ContentHandler{Keys: keys, Redeemer: redeemer, Skills: st.skills, Logger: logger},
		Skills:      registry.NewHandler(registry.NewService(st.skills, logger), logger),
		Dashboard:   dashboard.NewHandler(st.tasks, logger),
		AgentAuth:   middleware.AgentAuth(st.agents),
		IngestLimit: middleware.IngestRateLimit(limiter, logger),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("Starting HTTP server", "addr", srv.Addr, "version", version.Version, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("HTTP server stopped")
}
