// Package main is the entrypoint for the sitescope API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitescope/internal/ai"
	"github.com/kiranshivaraju/sitescope/internal/api"
	"github.com/kiranshivaraju/sitescope/internal/api/handler"
	mw "github.com/kiranshivaraju/sitescope/internal/api/middleware"
	"github.com/kiranshivaraju/sitescope/internal/cache"
	"github.com/kiranshivaraju/sitescope/internal/config"
	"github.com/kiranshivaraju/sitescope/internal/logging"
	"github.com/kiranshivaraju/sitescope/internal/metrics"
	"github.com/kiranshivaraju/sitescope/internal/pricing"
	"github.com/kiranshivaraju/sitescope/internal/store"
	"github.com/kiranshivaraju/sitescope/internal/triage"
	"github.com/robfig/cron/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"label_provider", cfg.Vision.LabelProvider,
		"vision_provider", cfg.Vision.VisionProvider,
		"embedding_provider", cfg.Vision.EmbeddingProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Providers and services
	pgStore := store.NewPostgresStore(pool)
	svcs, err := buildServices(cfg, pgStore, redisCache)
	if err != nil {
		return err
	}

	// 6. Optional periodic sweep
	sweeper, err := startSweeper(cfg.Queue, svcs)
	if err != nil {
		return err
	}
	if sweeper != nil {
		defer func() { <-sweeper.Stop().Done() }()
	}

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      buildRouter(cfg, pgStore, redisCache, svcs),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * shutdownTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type services struct {
	analysis   *ai.AnalysisService
	embeddings *ai.EmbeddingService
	triage     *triage.Service
}

// buildServices wires the configured providers into the queue-driven
// services. ca may be nil.
func buildServices(cfg *config.Config, st store.Store, ca cache.Cache) (*services, error) {
	fuser, err := ai.NewFuserFromConfig(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("create vision fuser: %w", err)
	}
	embedder, err := ai.NewEmbedder(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	slog.Info("vision providers initialized", "embedding_model", embedder.Model())

	opts := ai.QueueOptions{
		WorkerID:    cfg.Queue.WorkerID,
		LockExpiry:  cfg.Queue.LockExpiry,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BatchSize:   cfg.Queue.BatchSize,
	}
	embeddings := ai.NewEmbeddingService(st, embedder, opts)

	return &services{
		analysis:   ai.NewAnalysisService(st, fuser, ca, embeddings, opts),
		embeddings: embeddings,
		triage:     triage.NewService(st, ca, pricing.FromEnv(cfg.Pricing), cfg.Redis.SummaryTTL),
	}, nil
}

// buildRouter wires handlers onto the router. ca may be nil, which disables
// rate limiting and drops redis from the health check.
func buildRouter(cfg *config.Config, st store.Store, ca cache.Cache, svcs *services) http.Handler {
	pingers := map[string]handler.Pinger{"database": st}
	var rateLimit *mw.RateLimit
	if ca != nil {
		pingers["redis"] = ca
		rateLimit = mw.NewRateLimit(ca, cfg.RateLimit.PerMinute)
	}

	return api.NewRouter(api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler:            handler.NewHealthHandler(pingers),
		MetricsHandler:           metrics.Handler(),
		CreatePhotoHandler:       handler.NewCreatePhotoHandler(st, svcs.triage),
		AdvanceAnalysisHandler:   handler.NewAdvanceAnalysisHandler(svcs.analysis, cfg.Queue.BatchSize),
		FindingsHandler:          handler.NewFindingsHandler(svcs.triage),
		PricingHandler:           handler.NewPricingHandler(svcs.triage),
		EnqueueEmbeddingsHandler: handler.NewEnqueueEmbeddingsHandler(svcs.embeddings),
		AdvanceEmbeddingsHandler: handler.NewAdvanceEmbeddingsHandler(svcs.embeddings, cfg.Queue.BatchSize),
	})
}

// startSweeper schedules a queue sweep across all jobs. An empty schedule
// returns a nil cron.
func startSweeper(cfg config.QueueConfig, svcs *services) (*cron.Cron, error) {
	if cfg.SweepSchedule == "" {
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.SweepSchedule, func() { sweep(context.Background(), cfg, svcs) }); err != nil {
		return nil, fmt.Errorf("schedule queue sweep: %w", err)
	}
	c.Start()
	slog.Info("queue sweep scheduled", "schedule", cfg.SweepSchedule)
	return c, nil
}

// sweep is one more concurrent invoker of the queues; it competes with
// request-driven advances through the same claim protocol.
func sweep(ctx context.Context, cfg config.QueueConfig, svcs *services) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	photos, err := svcs.analysis.AdvanceAnalysis(ctx, uuid.Nil, cfg.BatchSize)
	if err != nil {
		slog.Error("sweep: advancing analysis", "error", err)
	}
	tasks, err := svcs.embeddings.AdvanceEmbeddings(ctx, cfg.BatchSize)
	if err != nil {
		slog.Error("sweep: advancing embeddings", "error", err)
	}
	if photos.Processed > 0 || tasks.Processed > 0 {
		slog.Info("sweep finished", "photos", photos.Processed, "embedding_tasks", tasks.Processed)
	}
}
