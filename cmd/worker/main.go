// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command worker drains the background job queues.
//
// Three pools run side by side: ingestion (full pipeline: store bytes,
// caption, embed, index), caption-only, and embedding-only. Each pool
// writes a terminal result slot per job; the gateway serves those slots
// from GET /v1/jobs/:id.
//
// Usage:
//
//	go run ./cmd/worker
//	WORKER_CONCURRENCY=8 go run ./cmd/worker
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/amirhf/imageSearch/services/blob"
	"github.com/amirhf/imageSearch/services/caption"
	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/providers/egress"
	"github.com/amirhf/imageSearch/services/queue"
	"github.com/amirhf/imageSearch/services/routing"
	"github.com/amirhf/imageSearch/services/store"
	"github.com/amirhf/imageSearch/services/worker"
)

// workerConfig is the environment surface of the worker process.
type workerConfig struct {
	RedisURL       string
	DatabaseURL    string
	StorageBackend string
	StorageDir     string
	GCSBucket      string
	CacheKeyPrefix string
	CacheTTL       time.Duration
	Concurrency    int
	MetricsPort    string
}

func loadWorkerConfig() workerConfig {
	return workerConfig{
		RedisURL:       envStr("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:    envStr("DATABASE_URL", "postgres://localhost:5432/imagesearch"),
		StorageBackend: envStr("IMAGE_STORAGE_BACKEND", "local"),
		StorageDir:     envStr("IMAGE_STORAGE_DIR", "./data/images"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		CacheKeyPrefix: envStr("CACHE_KEY_PREFIX", ""),
		CacheTTL:       time.Duration(envInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		Concurrency:    envInt("WORKER_CONCURRENCY", 4),
		MetricsPort:    envStr("WORKER_METRICS_PORT", "9091"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := loadWorkerConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	embedStore, err := store.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("postgres unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer embedStore.Close()

	var blobs blob.Store
	switch cfg.StorageBackend {
	case "gcs":
		blobs, err = blob.NewGCSStore(ctx, cfg.GCSBucket, logger)
	default:
		blobs, err = blob.NewLocalStore(cfg.StorageDir, logger)
	}
	if err != nil {
		logger.Error("blob storage unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cache := routing.NewSemanticCache(redisClient, cfg.CacheTTL, cfg.CacheKeyPrefix, logger)
	router := routing.NewRouter(routing.NewComplexityClassifier(), cache, logger)

	egressCfg := egress.LoadEgressConfig()
	limiter := egress.NewRateLimiter(egressCfg.MaxRequestsPerMinute, egressCfg.MaxRequestsPerDay, egressCfg.DailyBudgetUSD)
	breaker := egress.NewCircuitBreaker(egressCfg.BreakerThreshold, egressCfg.BreakerTimeout, egressCfg.HalfOpenMaxCalls, logger)

	host := providers.NewModelHost(providers.LoadProviderConfig(), logger)
	executor := caption.NewExecutor(host, limiter, breaker, cache, egressCfg, logger)

	ingestor := worker.NewIngestor(router, executor, host, embedStore, blobs, logger)
	captioner := worker.NewCaptioner(router, executor)
	embedder := worker.NewEmbedder(host)

	pools := []*queue.Pool{
		queue.NewPool(queue.NewQueue(redisClient, queue.QueueIngestion, 0, logger), ingestor.Handle, cfg.Concurrency, logger),
		queue.NewPool(queue.NewQueue(redisClient, queue.QueueCaption, 0, logger), captioner.Handle, cfg.Concurrency, logger),
		queue.NewPool(queue.NewQueue(redisClient, queue.QueueEmbedding, 0, logger), embedder.Handle, 2, logger),
	}

	// Metrics and liveness sidecar endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("worker starting",
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	g, runCtx := errgroup.WithContext(ctx)
	for _, pool := range pools {
		p := pool
		g.Go(func() error { return p.Run(runCtx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker pools exited", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}
