// Command expander starts the query-expansion service.
//
// The expander holds the sharded in-memory registry of precomputed
// expansions, consumes expansion-complete events from Kafka, and serves
// the public lookup API: term expansion, query rewriting, and registry
// administration. Redis caching, PostgreSQL persistence, and API-key
// auth are all optional and degrade gracefully when unavailable.
//
// Usage:
//
//	go run ./cmd/expander [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/consumer"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/engine"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/handler"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/rpcserver"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expander/store"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting expansion service",
		"port", cfg.Server.Port,
		"shards", cfg.Expander.Shards,
	)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer("expander", cfg.Metrics.Port)
	}

	eng, err := engine.New(cfg.Expander, m)
	if err != nil {
		slog.Error("failed to create expansion engine", "error", err)
		os.Exit(1)
	}
	if err := eng.LoadSnapshots(); err != nil {
		slog.Error("failed to load expansion snapshots", "error", err)
		os.Exit(1)
	}
	slog.Info("expansion registry loaded",
		"entries", eng.Stats().Entries,
		"snapshot_dir", cfg.Expander.SnapshotDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.StartSnapshotLoop(ctx)

	var queryCache *cache.Cache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, expansion caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("expansion cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	var db *postgres.Client
	var expStore *store.Store
	db, err = postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, durable expansion store disabled", "error", err)
	} else {
		defer db.Close()
		expStore = store.New(db)
		if err := expStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure expansion schema", "error", err)
			os.Exit(1)
		}
		slog.Info("expansion store ready",
			"host", cfg.Postgres.Host,
			"database", cfg.Postgres.Database,
		)
	}

	var apiKeys *apikey.CachedValidator
	var limiter *ratelimit.Limiter
	if cfg.Auth.Enabled {
		if db == nil {
			slog.Error("api key auth enabled but postgres is unavailable")
			os.Exit(1)
		}
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

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.ExpansionComplete,
		consumer.HandleExpansionResult(eng, expStore, queryCache, m, cfg.Kafka.Topics.ExpansionComplete),
	)
	expansionConsumer := consumer.New(kafkaConsumer)
	go func() {
		if err := expansionConsumer.Start(ctx); err != nil {
			slog.Error("expansion consumer error", "error", err)
		}
	}()
	slog.Info("expansion consumer started",
		"topic", cfg.Kafka.Topics.ExpansionComplete,
		"group", cfg.Kafka.ConsumerGroup,
	)

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	rpcServer := rpc.NewServer(cfg.RPC.RequestTimeout)
	rpcserver.Register(rpcServer, eng, queryCache, m)
	go func() {
		if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("expansion_engine", func(ctx context.Context) health.ComponentHealth {
		if !eng.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "snapshots not loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d expansions registered", eng.Stats().Entries),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: db.PoolSummary()}
	})

	h := handler.New(eng, queryCache, expStore, collector, m, cfg.Expander)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/expand", h.Expand)
	mux.HandleFunc("GET /api/v1/expand/query", h.RewriteQuery)
	mux.HandleFunc("GET /api/v1/expansions", h.ListExpansions)
	mux.HandleFunc("DELETE /api/v1/expansions", h.DeleteExpansion)
	mux.HandleFunc("GET /api/v1/expansions/stats", h.ExpansionStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if apiKeys != nil {
		chain = authmw.RateLimit(limiter)(chain)
		chain = authmw.Auth(apiKeys)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if cfg.Tracing.Enabled {
		chain = middleware.Tracing(cfg.Tracing.SampleRate)(chain)
	}
	chain = middleware.RequestID(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		rpcServer.Stop()
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("expansion service listening", "addr", server.Addr, "rpc_port", cfg.RPC.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("flushing snapshots before shutdown")
	if err := eng.Close(); err != nil {
		slog.Error("final snapshot flush failed", "error", err)
	}

	slog.Info("expansion service stopped")
}
