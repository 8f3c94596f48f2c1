// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing selects the cheapest caption tier capable of producing an
// acceptable result for a given image, hint, and latency budget.
package routing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Tier is one of the four caption producers.
type Tier string

const (
	TierEdge  Tier = "edge"
	TierCache Tier = "cache"
	TierLocal Tier = "local"
	TierCloud Tier = "cloud"
)

// Routing decision reasons.
const (
	ReasonCacheHit         = "cache_hit"
	ReasonEdgeAccepted     = "edge_accepted"
	ReasonHighComplexity   = "high_complexity"
	ReasonLowLatencyBudget = "low_latency_budget"
	ReasonDefaultLocal     = "default_local"
)

// CaptionRecord is the outcome of one caption execution. It is what the
// cache stores, the embed store persists, and the job result slot carries.
type CaptionRecord struct {
	Caption    string  `json:"caption"`
	Confidence float64 `json:"confidence"`
	Origin     Tier    `json:"origin"`
	LatencyMS  int     `json:"latency_ms"`
	CostUSD    float64 `json:"cost_usd"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
}

// Decision is the router's verdict for one request: the primary tier, the
// reason it was chosen, and the ordered fallback chain tried when the
// primary fails.
type Decision struct {
	Tier          Tier
	Reason        string
	FallbackChain []Tier
	BudgetMS      int

	// Cached carries the prior record when Tier == TierCache.
	Cached *CaptionRecord

	// Hint and HintConfidence carry the accepted edge caption when
	// Tier == TierEdge, and the raw request hint otherwise.
	Hint           string
	HintConfidence float64
}

// Fingerprint returns the persistent identity of an image: a 16-hex-char
// prefix of SHA-256 over the raw bytes.
func Fingerprint(imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	return hex.EncodeToString(sum[:])[:16]
}

// contentHash returns the full SHA-256 hex digest used for cache addressing.
func contentHash(imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	return hex.EncodeToString(sum[:])
}
