// Command server runs the trip-telemetry ingestion and query HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/geotrips/internal/api"
	"github.com/onnwee/geotrips/internal/config"
	"github.com/onnwee/geotrips/internal/geohash"
	"github.com/onnwee/geotrips/internal/health"
	"github.com/onnwee/geotrips/internal/idempotency"
	"github.com/onnwee/geotrips/internal/ingest"
	"github.com/onnwee/geotrips/internal/jobs"
	"github.com/onnwee/geotrips/internal/middleware"
	"github.com/onnwee/geotrips/internal/query"
	"github.com/onnwee/geotrips/internal/store"
	"github.com/onnwee/geotrips/internal/telemetry"
)

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "print usage and exit")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	cfg, loadErrs := config.Load(*configFile)
	if cfg == nil {
		for _, e := range loadErrs {
			fmt.Fprintln(os.Stderr, e)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	for _, e := range loadErrs {
		logger.Warn("config validation issue", "error", e)
	}
	logger.Info("loaded configuration", "config", cfg.LogSummary())

	geohash.SetPrecision(cfg.GeohashPrecision)

	promRegistry := prometheus.NewRegistry()

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	tripMetrics := telemetry.NewMetrics()
	if err := tripMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register trip metrics", "error", err)
		os.Exit(1)
	}

	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(promRegistry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	var s store.Store
	var redisClient *redis.Client
	var rateLimitStore middleware.RateLimitStore
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDBNum,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		s = store.NewRedisWithMetrics(redisClient, tripMetrics)
		rateLimitStore = middleware.NewRedisRateLimitStoreWithMetrics(redisClient, httpMetrics)
		logger.Info("using redis store", "addr", cfg.RedisAddr, "db", cfg.RedisDBNum)
	} else {
		s = store.NewMemory()
		rateLimitStore = middleware.NewInMemoryRateLimitStore()
		logger.Info("using in-memory store (no REDIS_ADDR configured)")
	}

	writer := ingest.NewWriter(s, cfg.BucketTTL)
	planner := query.NewPlanner(s)
	idemRepo := idempotency.NewInMemoryRepository()

	tripsHandlers := api.NewTripsHandlers(writer, tripMetrics, idemRepo)
	queryHandlers := api.NewQueryHandlers(planner, tripMetrics)

	var storeChecker api.HealthChecker
	if redisClient != nil {
		storeChecker = health.NewRedisChecker(redisClient)
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{StoreChecker: storeChecker})

	sweepJob := jobs.NewPrefixSweepJob(jobs.SweepJobConfig{
		Interval:  cfg.PrefixSweepInterval,
		Retention: cfg.PrefixRetention,
		Logger:    logger,
		Metrics:   jobMetrics,
	}, s)

	idempotencyCleanupStop := make(chan struct{})

	ingestLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultIngestLimit, middleware.IPKeyFunc(), httpMetrics)
	queryLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultQueryLimit, middleware.IPKeyFunc(), httpMetrics)

	router := chi.NewRouter()
	router.Get("/healthz", healthHandlers.Health)
	router.Get("/readyz", healthHandlers.Ready)
	router.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	router.With(ingestLimiter).Post("/trips/", tripsHandlers.Ingest)
	router.With(queryLimiter).Get("/query/trip_count_right_now/", queryHandlers.CurrentCount)
	router.With(queryLimiter).Post("/query/trip_count_at_time_t/", queryHandlers.CountAtInstant)
	router.With(queryLimiter).Post("/query/trips_passed_through/", queryHandlers.TripsPassedThrough)
	router.With(queryLimiter).Post("/query/trips_start_stop/", queryHandlers.TripsStartStop)

	var handler http.Handler = router
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     cfg.ProfilingEnabled,
		Environment: cfg.Env,
	})(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if err := sweepJob.Start(context.Background()); err != nil {
		logger.Error("failed to start prefix sweep job", "error", err)
		os.Exit(1)
	}
	logger.Info("prefix sweep job started", "interval", cfg.PrefixSweepInterval, "retention", cfg.PrefixRetention)

	go idempotency.RunPeriodicCleanup(idemRepo, cfg.PrefixSweepInterval, idempotency.DefaultExpiry, idempotencyCleanupStop)
	logger.Info("idempotency cleanup job started", "interval", cfg.PrefixSweepInterval, "expiry", idempotency.DefaultExpiry)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	sweepJob.Stop()
	logger.Info("prefix sweep job stopped")

	close(idempotencyCleanupStop)
	logger.Info("idempotency cleanup job stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		} else {
			logger.Info("redis client closed")
		}
	}

	logger.Info("server stopped")
}
