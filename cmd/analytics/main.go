// Command analytics starts the standalone usage-analytics service.
//
// It consumes expansion-usage events from Kafka, aggregates them in
// memory (lookup totals, cache hit rate, latency percentiles, top
// queries, queries with no expansion), and exposes the aggregate at
// GET /api/v1/analytics for dashboards. When PostgreSQL is available
// the aggregate is snapshotted periodically and restored on restart.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/postgres"
)

// main boots the analytics service: a Kafka consumer feeding the
// in-memory aggregator, optional PostgreSQL snapshotting, and the HTTP
// API. Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The handler closure reads aggregator, which is assigned before
	// Start begins delivering events.
	var aggregator *analytics.Aggregator
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
		func(ctx context.Context, key, value []byte) error {
			return analytics.HandleEvent(aggregator)(ctx, key, value)
		})
	aggregator = analytics.NewAggregator(consumer, cfg.Analytics.LatencySampleSize, cfg.Analytics.TopQueries)

	var snapStore *analytics.Store
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
	} else {
		defer db.Close()
		snapStore = analytics.NewStore(db)
		if err := snapStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure analytics schema", "error", err)
			os.Exit(1)
		}
		prev, err := snapStore.LatestSnapshot(ctx)
		switch {
		case err != nil:
			slog.Warn("could not load analytics snapshot", "error", err)
		case prev != nil:
			aggregator.Restore(*prev)
			slog.Info("analytics state restored", "total_lookups", prev.TotalLookups)
		}
		snapStore.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(aggregator, snapStore)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("consumer lag %d", consumer.Lag()),
		}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
