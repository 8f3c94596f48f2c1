// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egress

import (
	"os"
	"strconv"
	"time"
)

// EgressConfig holds admission-control configuration for the cloud caption tier.
//
// Description:
//
//	Loaded from environment variables at startup via LoadEgressConfig().
//	All fields have safe defaults matching a small single-instance deployment.
//
// Thread Safety: EgressConfig is a value type. Safe to copy and share after loading.
type EgressConfig struct {
	// MaxRequestsPerMinute caps cloud calls over a sliding 60s window.
	// Env: CLOUD_MAX_REQUESTS_PER_MINUTE (default: 60)
	MaxRequestsPerMinute int

	// MaxRequestsPerDay caps cloud calls over a rolling 24h window.
	// Env: CLOUD_MAX_REQUESTS_PER_DAY (default: 10000)
	MaxRequestsPerDay int

	// DailyBudgetUSD caps accumulated cloud spend over the same 24h window.
	// Env: CLOUD_DAILY_BUDGET_USD (default: 10.0)
	DailyBudgetUSD float64

	// BreakerThreshold is the consecutive-failure count that opens the breaker.
	// Env: CLOUD_CIRCUIT_BREAKER_THRESHOLD (default: 5)
	BreakerThreshold int

	// BreakerTimeout is how long the breaker stays open before probing.
	// Env: CLOUD_CIRCUIT_BREAKER_TIMEOUT_SECONDS (default: 60)
	BreakerTimeout time.Duration

	// HalfOpenMaxCalls bounds concurrent probes while half-open.
	// Env: CLOUD_CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS (default: 1)
	HalfOpenMaxCalls int

	// EstimatedCostUSD is the conservative per-call estimate handed to the
	// limiter before a cloud call executes.
	// Env: CLOUD_ESTIMATED_COST_USD (default: 0.001)
	EstimatedCostUSD float64
}

// LoadEgressConfig reads limiter and breaker configuration from environment
// variables, providing safe defaults for all values.
func LoadEgressConfig() *EgressConfig {
	return &EgressConfig{
		MaxRequestsPerMinute: envInt("CLOUD_MAX_REQUESTS_PER_MINUTE", 60),
		MaxRequestsPerDay:    envInt("CLOUD_MAX_REQUESTS_PER_DAY", 10000),
		DailyBudgetUSD:       envFloat("CLOUD_DAILY_BUDGET_USD", 10.0),
		BreakerThreshold:     envInt("CLOUD_CIRCUIT_BREAKER_THRESHOLD", 5),
		BreakerTimeout:       time.Duration(envInt("CLOUD_CIRCUIT_BREAKER_TIMEOUT_SECONDS", 60)) * time.Second,
		HalfOpenMaxCalls:     envInt("CLOUD_CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS", 1),
		EstimatedCostUSD:     envFloat("CLOUD_ESTIMATED_COST_USD", 0.001),
	}
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// envFloat reads a float64 environment variable with a default value.
func envFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
