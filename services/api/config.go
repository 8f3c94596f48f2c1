// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the gateway.
const (
	DefaultPort          = "8080"
	DefaultSyncBudgetMS  = 600
	DefaultCacheTTL      = 3600 * time.Second
	DefaultStorageDir    = "./data/images"
	DefaultWorkerWorkers = 4
)

// Config is the gateway process configuration, loaded from the environment.
type Config struct {
	Port string
	// BaseURL is the public origin (scheme://host[:port], no path). Handlers
	// append the /v1 mount prefix when building links; empty yields relative
	// URLs that resolve against the serving host.
	BaseURL string

	JWTSecret     string
	SeedingAPIKey string
	AdminUserID   string

	RedisURL    string
	DatabaseURL string

	StorageBackend string // "local" or "gcs"
	StorageDir     string
	GCSBucket      string

	SyncBudgetMS   int
	CacheKeyPrefix string
	CacheTTL       time.Duration

	WorkerConcurrency int

	HybridTextBoost  bool
	HybridTextWeight float64
}

// LoadConfig reads the gateway configuration from the environment.
//
// Outputs:
//
//	*Config - Populated configuration.
//	error   - Missing JWT_SECRET, or a GCS backend without a bucket.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:              envStr("PORT", DefaultPort),
		BaseURL:           envStr("BASE_URL", ""),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SeedingAPIKey:     os.Getenv("SEEDING_API_KEY"),
		AdminUserID:       os.Getenv("ADMIN_USER_ID"),
		RedisURL:          envStr("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:       envStr("DATABASE_URL", "postgres://localhost:5432/imagesearch"),
		StorageBackend:    envStr("IMAGE_STORAGE_BACKEND", "local"),
		StorageDir:        envStr("IMAGE_STORAGE_DIR", DefaultStorageDir),
		GCSBucket:         os.Getenv("GCS_BUCKET"),
		SyncBudgetMS:      envInt("CAPTION_LATENCY_BUDGET_MS", DefaultSyncBudgetMS),
		CacheKeyPrefix:    envStr("CACHE_KEY_PREFIX", ""),
		CacheTTL:          time.Duration(envInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		WorkerConcurrency: envInt("WORKER_CONCURRENCY", DefaultWorkerWorkers),
		HybridTextBoost:   envBool("HYBRID_TEXT_BOOST", true),
		HybridTextWeight:  envFloat("HYBRID_TEXT_WEIGHT", 0.2),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StorageBackend == "gcs" && cfg.GCSBucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required when IMAGE_STORAGE_BACKEND=gcs")
	}
	if cfg.SeedingAPIKey != "" && cfg.AdminUserID == "" {
		return nil, fmt.Errorf("ADMIN_USER_ID is required when SEEDING_API_KEY is set")
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
