// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command api starts the image search gateway.
//
// The gateway accepts image uploads, captions them through the tier cascade
// (cache, edge hint, local model, cloud vision), and serves hybrid
// vector+keyword search over the ingested corpus.
//
// Usage:
//
//	JWT_SECRET=... go run ./cmd/api
//	JWT_SECRET=... go run ./cmd/api -debug
//
// With a real cloud provider:
//
//	CLOUD_PROVIDER=openrouter OPENROUTER_API_KEY=... go run ./cmd/api
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/healthz
//
//	# Synchronous upload
//	curl -X POST http://localhost:8080/v1/images \
//	  -H "Authorization: Bearer $TOKEN" \
//	  -F file=@photo.jpg -F visibility=private
//
//	# Search
//	curl "http://localhost:8080/v1/search?q=dog+on+a+beach&scope=public"
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/amirhf/imageSearch/services/api"
	"github.com/amirhf/imageSearch/services/blob"
	"github.com/amirhf/imageSearch/services/caption"
	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/providers/egress"
	"github.com/amirhf/imageSearch/services/queue"
	"github.com/amirhf/imageSearch/services/routing"
	"github.com/amirhf/imageSearch/services/search"
	"github.com/amirhf/imageSearch/services/store"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := api.LoadConfig()
	if err != nil {
		logger.Error("configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so upstream trace ids flow through handlers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	embedStore, err := store.New(ctx, cfg.DatabaseURL, logger,
		store.WithTextBoost(cfg.HybridTextBoost, cfg.HybridTextWeight))
	if err != nil {
		logger.Error("postgres unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer embedStore.Close()

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("blob storage unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Routing and caption stack.
	cache := routing.NewSemanticCache(redisClient, cfg.CacheTTL, cfg.CacheKeyPrefix, logger)
	router := routing.NewRouter(routing.NewComplexityClassifier(), cache, logger)

	egressCfg := egress.LoadEgressConfig()
	limiter := egress.NewRateLimiter(egressCfg.MaxRequestsPerMinute, egressCfg.MaxRequestsPerDay, egressCfg.DailyBudgetUSD)
	breaker := egress.NewCircuitBreaker(egressCfg.BreakerThreshold, egressCfg.BreakerTimeout, egressCfg.HalfOpenMaxCalls, logger)

	host := providers.NewModelHost(providers.LoadProviderConfig(), logger)
	executor := caption.NewExecutor(host, limiter, breaker, cache, egressCfg, logger)

	planner := search.NewPlanner(host, embedStore, cfg.BaseURL, logger)
	jobs := queue.NewQueue(redisClient, queue.QueueIngestion, 0, logger)

	handlers := api.NewHandlers(api.Deps{
		Router:       router,
		Executor:     executor,
		Host:         host,
		Images:       embedStore,
		Blobs:        blobs,
		Search:       planner,
		Jobs:         jobs,
		Limiter:      limiter,
		Breaker:      breaker,
		BaseURL:      cfg.BaseURL,
		SyncBudgetMS: cfg.SyncBudgetMS,
		Ready: []api.ReadyCheck{
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
			{Name: "postgres", Check: embedStore.Ping},
		},
		Logger: logger,
	})

	auth := api.NewAuthenticator([]byte(cfg.JWTSecret), cfg.SeedingAPIKey, cfg.AdminUserID, logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("imagesearch-api"))
	engine.Use(api.MetricsMiddleware())
	if *debug {
		engine.Use(gin.Logger())
	}

	v1 := engine.Group("/v1")
	v1.Use(auth.Middleware())
	api.RegisterRoutes(v1, handlers)

	engine.GET("/healthz", handlers.HandleHealth)
	engine.GET("/readyz", handlers.HandleReady)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logger.Info("gateway starting",
			slog.String("addr", srv.Addr),
			slog.String("storage_backend", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
}

// buildBlobStore selects the configured image byte backend.
func buildBlobStore(ctx context.Context, cfg *api.Config, logger *slog.Logger) (blob.Store, error) {
	switch cfg.StorageBackend {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.GCSBucket, logger)
	default:
		return blob.NewLocalStore(cfg.StorageDir, logger)
	}
}
