// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// OTel Tracer
// =============================================================================

var routerTracer = otel.Tracer("imagesearch.routing")

// Edge hints are accepted only above this client confidence.
const edgeConfidenceThreshold = 0.8

// Hints scoring above this complexity go straight to the cloud tier.
const complexityPushThreshold = 0.7

// Budgets below this many milliseconds pin the request to the local tier.
const lowBudgetFloorMS = 200

// Router selects a caption tier and fallback chain per request.
//
// Description:
//
//	Decision order, first satisfied wins: cache probe, edge acceptance,
//	complexity push, budget floor, default local. The router performs no
//	model or limiter calls itself; the single cache probe is its only I/O.
//	Deterministic for identical inputs modulo cache state.
//
// Thread Safety: Safe for concurrent use.
type Router struct {
	classifier *ComplexityClassifier
	cache      *SemanticCache
	logger     *slog.Logger
}

// NewRouter creates a router. A nil cache disables the cache tier.
func NewRouter(classifier *ComplexityClassifier, cache *SemanticCache, logger *slog.Logger) *Router {
	if classifier == nil {
		classifier = NewComplexityClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		classifier: classifier,
		cache:      cache,
		logger:     logger,
	}
}

// Route chooses the tier for one caption request.
//
// Inputs:
//
//	ctx            - Context for the cache probe.
//	imageBytes     - Raw image bytes; hashed for the cache probe.
//	budgetMS       - Latency budget carried into the decision.
//	hint           - Optional edge caption hint; empty means absent.
//	hintConfidence - Client confidence for the hint; meaningful only with a hint.
//
// Outputs:
//
//	Decision - Primary tier, reason, and fallback chain. Never errors;
//	           routing refusals do not exist, only cheaper tiers.
func (r *Router) Route(ctx context.Context, imageBytes []byte, budgetMS int, hint string, hintConfidence float64) Decision {
	ctx, span := routerTracer.Start(ctx, "routing.Router.Route",
		trace.WithAttributes(
			attribute.Int("budget_ms", budgetMS),
			attribute.Bool("hint_present", hint != ""),
		),
	)
	defer span.End()

	start := time.Now()
	dec := r.decide(ctx, imageBytes, budgetMS, hint, hintConfidence)
	routerDecisionSeconds.Observe(time.Since(start).Seconds())
	routerDecisionsTotal.WithLabelValues(string(dec.Tier), dec.Reason).Inc()

	span.SetAttributes(
		attribute.String("tier", string(dec.Tier)),
		attribute.String("reason", dec.Reason),
	)
	r.logger.Debug("routing decision",
		slog.String("tier", string(dec.Tier)),
		slog.String("reason", dec.Reason),
		slog.Int("budget_ms", budgetMS),
	)
	return dec
}

func (r *Router) decide(ctx context.Context, imageBytes []byte, budgetMS int, hint string, hintConfidence float64) Decision {
	// 1. Cache probe.
	if rec := r.cache.Lookup(ctx, imageBytes); rec != nil {
		return Decision{
			Tier:     TierCache,
			Reason:   ReasonCacheHit,
			BudgetMS: budgetMS,
			Cached:   rec,
			Hint:     hint,
		}
	}

	if hint != "" {
		cx := r.classifier.Classify(hint)

		// 2. Edge acceptance: a confident client hint for a simple scene.
		if hintConfidence > edgeConfidenceThreshold && cx.Level == ComplexitySimple {
			return Decision{
				Tier:           TierEdge,
				Reason:         ReasonEdgeAccepted,
				FallbackChain:  []Tier{TierLocal},
				BudgetMS:       budgetMS,
				Hint:           hint,
				HintConfidence: hintConfidence,
			}
		}

		// 3. Complexity push: abstract scenes overwhelm the local model.
		if cx.Score > complexityPushThreshold {
			return Decision{
				Tier:           TierCloud,
				Reason:         ReasonHighComplexity,
				FallbackChain:  []Tier{TierLocal},
				BudgetMS:       budgetMS,
				Hint:           hint,
				HintConfidence: hintConfidence,
			}
		}
	}

	// 4. Budget floor: no time for a network round trip.
	if budgetMS < lowBudgetFloorMS {
		return Decision{
			Tier:           TierLocal,
			Reason:         ReasonLowLatencyBudget,
			FallbackChain:  []Tier{TierCloud},
			BudgetMS:       budgetMS,
			Hint:           hint,
			HintConfidence: hintConfidence,
		}
	}

	// 5. Default.
	return Decision{
		Tier:           TierLocal,
		Reason:         ReasonDefaultLocal,
		FallbackChain:  []Tier{TierCloud},
		BudgetMS:       budgetMS,
		Hint:           hint,
		HintConfidence: hintConfidence,
	}
}
