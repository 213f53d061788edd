// Command feedback starts the relevance-feedback intake HTTP service.
//
// The service accepts feedback submissions via POST /api/v1/feedback,
// validates them, persists them to PostgreSQL with idempotency-key
// deduplication, and publishes them to a Kafka topic for the offline
// expansion pipeline. It provides a health endpoint at GET /health.
//
// Usage:
//
//	go run ./cmd/feedback [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/auth/apikey"
	authmw "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/auth/middleware"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback/handler"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback/publisher"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback/validator"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/postgres"
)

// main loads configuration, connects to PostgreSQL, creates the Kafka
// producers, wires up the feedback handler, and starts the HTTP server.
// Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting feedback service", "port", cfg.Feedback.Port)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer("feedback", cfg.Metrics.Port)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FeedbackEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.FeedbackEvents)

	pub := publisher.New(db, producer, m)
	if err := pub.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure feedback schema", "error", err)
		os.Exit(1)
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	batch := analytics.NewBatchCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	batch.Start(ctx)
	defer batch.Close()
	slog.Info("analytics batch collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	var apiKeys *apikey.CachedValidator
	var limiter *ratelimit.Limiter
	if cfg.Auth.Enabled {
		base := apikey.NewValidator(db)
		if err := base.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure api key schema", "error", err)
			os.Exit(1)
		}
		apiKeys = apikey.NewCachedValidator(base, cfg.Auth.KeyCacheTTL)
		limiter = ratelimit.New(cfg.Auth.RateLimitWindow)
		slog.Info("api key auth enabled",
			"key_cache_ttl", cfg.Auth.KeyCacheTTL,
			"rate_limit_window", cfg.Auth.RateLimitWindow,
		)
	}

	h := handler.New(pub, validator.New(cfg.Feedback), batch)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/feedback", h.Submit)
	mux.HandleFunc("GET /api/v1/feedback", h.Recent)
	mux.HandleFunc("GET /health", h.Health)

	var chain http.Handler = mux
	if apiKeys != nil {
		chain = authmw.RateLimit(limiter)(chain)
		chain = authmw.Auth(apiKeys)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Feedback.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("feedback service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("feedback service stopped")
}
