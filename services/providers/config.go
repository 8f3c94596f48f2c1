// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"os"
	"strconv"
	"time"
)

// ProviderConfig selects and configures the model adapters.
//
// Thread Safety: Value type. Safe to copy and share after loading.
type ProviderConfig struct {
	// CloudProvider selects the cloud adapter: "openrouter" or "mock".
	// Env: CLOUD_PROVIDER (default: "mock" — no real calls unless opted in)
	CloudProvider string

	// ModelHostURL is the base URL of the local caption/embedding sidecar.
	// Env: MODEL_HOST_URL (default: "http://localhost:8093")
	ModelHostURL string

	// OpenRouterAPIKey authenticates against the OpenRouter API.
	// Env: OPENROUTER_API_KEY
	OpenRouterAPIKey string

	// OpenRouterModel is the vision model identifier.
	// Env: OPENROUTER_MODEL (default: "openai/gpt-4o-mini")
	OpenRouterModel string

	// CloudTimeout is the hard per-call timeout for cloud requests.
	// Env: CLOUD_TIMEOUT_SECONDS (default: 30)
	CloudTimeout time.Duration
}

// LoadProviderConfig reads adapter configuration from environment variables.
func LoadProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		CloudProvider:    envStr("CLOUD_PROVIDER", "mock"),
		ModelHostURL:     envStr("MODEL_HOST_URL", "http://localhost:8093"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:  envStr("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		CloudTimeout:     time.Duration(envSeconds("CLOUD_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// envStr reads a string environment variable with a default value.
func envStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envSeconds reads an integer environment variable with a default value.
func envSeconds(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
