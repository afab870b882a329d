// Package main is the entrypoint for the JobScout API server.
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

	"github.com/joho/godotenv"
	"github.com/jobscout/jobscout/internal/api"
	"github.com/jobscout/jobscout/internal/api/handler"
	mw "github.com/jobscout/jobscout/internal/api/middleware"
	"github.com/jobscout/jobscout/internal/cache"
	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/internal/notify"
	"github.com/jobscout/jobscout/internal/pipeline"
	"github.com/jobscout/jobscout/internal/scorer"
	"github.com/jobscout/jobscout/internal/scraper"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/internal/sweeper"
	"github.com/robfig/cron/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "scorer_provider", cfg.Scorer.Provider, "env", cfg.Server.Env)

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

	// 5. Create score provider
	provider, err := scorer.NewProvider(cfg.Scorer)
	if err != nil {
		return fmt.Errorf("create score provider: %w", err)
	}
	slog.Info("score provider initialized", "provider", provider.Name())

	// 6. Assemble the pipeline
	pgStore := store.NewPostgresStore(pool)
	scraperClient := scraper.NewHTTPClient(cfg.Scraper.UserAgent, cfg.Scraper.MaxCandidates, cfg.Scraper.Timeout)

	var notifier notify.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL)
		slog.Info("slack notifier enabled")
	} else {
		slog.Info("no slack webhook configured, digests disabled")
	}

	coordinator := pipeline.NewCoordinator(pgStore, scraperClient, provider, notifier, redisCache, cfg)
	sw := sweeper.NewSweeper(pgStore, coordinator, cfg.Sweep.ToleranceMinutes)
	defer sw.Stop()

	// 7. Drive the sweeper on a fixed tick
	ticker := cron.New()
	_, err = ticker.AddFunc(fmt.Sprintf("@every %s", cfg.Sweep.TickInterval), func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), cfg.Sweep.TickInterval)
		defer cancel()
		sw.Sweep(sweepCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule sweep tick: %w", err)
	}
	ticker.Start()
	slog.Info("sweep ticker started", "interval", cfg.Sweep.TickInterval, "tolerance_minutes", cfg.Sweep.ToleranceMinutes)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler:       handler.NewHealthHandler(pgStore, redisCache),
		SweepHandler:        handler.NewSweepHandler(sw),
		ListRunsHandler:     handler.NewListRunsHandler(pgStore),
		ListListingsHandler: handler.NewListListingsHandler(pgStore),
	}
	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	// Stop firing new sweeps before draining HTTP connections.
	tickerCtx := ticker.Stop()
	select {
	case <-tickerCtx.Done():
	case <-time.After(shutdownTimeout):
		slog.Warn("sweep tick did not finish before shutdown timeout")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
