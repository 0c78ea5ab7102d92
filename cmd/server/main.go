// Command server starts the collection manager: the process that owns
// every collection, persists documents to the ordered KV store, recovers
// them on startup, and answers document and search requests over HTTP.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
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

	"github.com/monishk/shardsearch/internal/analytics"
	"github.com/monishk/shardsearch/internal/api"
	"github.com/monishk/shardsearch/internal/auth/apikey"
	"github.com/monishk/shardsearch/internal/auth/ratelimit"
	"github.com/monishk/shardsearch/internal/cache"
	"github.com/monishk/shardsearch/internal/manager"
	"github.com/monishk/shardsearch/internal/store"
	"github.com/monishk/shardsearch/pkg/config"
	"github.com/monishk/shardsearch/pkg/health"
	"github.com/monishk/shardsearch/pkg/kafka"
	"github.com/monishk/shardsearch/pkg/logger"
	"github.com/monishk/shardsearch/pkg/metrics"
	"github.com/monishk/shardsearch/pkg/postgres"
	pkgredis "github.com/monishk/shardsearch/pkg/redis"
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
	slog.Info("starting collection manager", "port", cfg.Server.Port)

	m := metrics.New()

	db, err := postgres.New(cfg.Store)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	kv, err := store.NewPostgresKV(db, m)
	if err != nil {
		slog.Error("failed to initialize kv store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	validator, err := apikey.NewValidator(db)
	if err != nil {
		slog.Error("failed to initialize api key validator", "error", err)
		os.Exit(1)
	}
	limiter := ratelimit.New(cfg.Auth.RateLimitWindow)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	aggregator := analytics.NewAggregator(nil)
	analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	aggregator.SetConsumer(analyticsConsumer)
	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("analytics aggregator error", "error", err)
		}
	}()
	analyticsH := analytics.NewHandler(aggregator)

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("query result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	mgr := manager.New(kv, validator, cfg.Manager.MaxMemoryRatio, cfg.Manager.BootstrapKey, m, collector)
	if queryCache != nil {
		mgr.SetCache(queryCache)
	}

	slog.Info("recovering collections", "init_batch_size", cfg.Manager.InitBatchSize)
	if err := mgr.Load(ctx, cfg.Manager.InitBatchSize); err != nil {
		slog.Error("failed to recover collections", "error", err)
		os.Exit(1)
	}
	slog.Info("recovery complete", "collections", len(mgr.Collections()))

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
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

	h := api.New(mgr)
	chain := api.NewRouter(h, limiter, cfg.Auth.DefaultRateLimit, m)

	mux := http.NewServeMux()
	mux.Handle("/", chain)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Manager.ShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("collection manager listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("collection manager stopped")
}
