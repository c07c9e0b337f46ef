package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/wldsell/service/config"
	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/db/migrations"
	"github.com/brojonat/wldsell/service/metrics"
	natspkg "github.com/brojonat/wldsell/service/nats"
	"github.com/brojonat/wldsell/service/price"
	"github.com/brojonat/wldsell/service/server"
	"github.com/brojonat/wldsell/service/temporal"
	"github.com/brojonat/wldsell/service/worldapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	// Amounts travel as JSON numbers on the wire, matching the sell form payloads.
	decimal.MarshalJSONWithoutQuotes = true

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	applied, err := migrations.Apply(ctx, dbPool)
	if err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database schema up to date", "applied", applied)

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	store := db.NewStore(dbPool, metricsCollector)

	// Initialize NATS publisher
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to create SSE publisher", "error", err)
		os.Exit(1)
	}

	// Temporal is only needed to keep the sweep schedule in place; the API
	// keeps serving without it.
	var scheduler temporal.Scheduler
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Warn("temporal unavailable, sweep schedule not managed", "error", err)
	} else {
		defer temporalClient.Close()
		scheduler = temporalClient
	}

	verifier := worldapp.NewVerifier(
		cfg.WorldApp.DevPortalURL,
		cfg.WorldApp.AppID,
		cfg.WorldApp.DevPortalKey,
		&http.Client{Timeout: cfg.WorldApp.RequestTimeout},
		metricsCollector,
		logger,
	)

	upstream, err := price.NewHTTPSource(cfg.Price.SourceURL, cfg.Price.JQ, nil, metricsCollector)
	if err != nil {
		logger.Error("failed to create price source", "error", err)
		os.Exit(1)
	}
	prices := price.NewCachedSource(upstream, cfg.Price.CacheTTL, logger)

	poller := price.NewPoller(prices, cfg.Price.CacheTTL, func(ctx context.Context, p price.Price) {
		if err := natsPublisher.PublishPrice(ctx, natspkg.FromPrice(p)); err != nil {
			logger.WarnContext(ctx, "failed to publish price", "error", err)
		}
	}, logger)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("price poller stopped", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, server.Deps{
		Store:        store,
		Verifier:     verifier,
		Prices:       prices,
		Scheduler:    scheduler,
		Publisher:    natsPublisher,
		SSEPublisher: ssePublisher,
		Metrics:      metricsCollector,
	}, logger)

	logger.Info("server initialized, all dependencies ready",
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
		"dev_portal_url", cfg.WorldApp.DevPortalURL,
		"price_source", cfg.Price.SourceURL,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
