// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package caption executes routing decisions against the model host,
// recording outcomes into the limiter, breaker, and cache.
package caption

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/providers/egress"
	"github.com/amirhf/imageSearch/services/routing"
)

var executorTracer = otel.Tracer("imagesearch.caption")

// ErrCaptionUnavailable is returned when every tier in the decision's chain
// has been tried and none produced a caption.
var ErrCaptionUnavailable = errors.New("caption_unavailable")

// tierOutcome is the explicit result of one tier attempt: either a record,
// or a fall-through reason for the next tier in the chain.
type tierOutcome struct {
	ok     bool
	record routing.CaptionRecord
	reason string
}

// cloudIdentifier is satisfied by hosts that can name their cloud adapter
// for metrics labels.
type cloudIdentifier interface {
	CloudName() string
	CloudModel() string
}

// Executor runs a routing decision's tier chain until a caption is produced.
//
// Description:
//
//	The primary tier is attempted first, then each fallback tier in order,
//	each at most once. Only the cloud tier consults the breaker and the
//	limiter, and only a cloud success is written through to the cache.
//	Admission refusals and upstream failures are normal fall-through
//	outcomes, not errors; the executor errors only when the whole chain is
//	exhausted.
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	host    providers.ModelHost
	limiter *egress.RateLimiter
	breaker *egress.CircuitBreaker
	cache   *routing.SemanticCache
	logger  *slog.Logger

	cloudTimeout     time.Duration
	estimatedCostUSD float64
	providerName     string
	modelName        string
}

// NewExecutor creates an executor over the given collaborators. A nil cache
// disables write-through; limiter and breaker must not be nil.
func NewExecutor(host providers.ModelHost, limiter *egress.RateLimiter, breaker *egress.CircuitBreaker,
	cache *routing.SemanticCache, cfg *egress.EgressConfig, logger *slog.Logger) *Executor {

	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		host:             host,
		limiter:          limiter,
		breaker:          breaker,
		cache:            cache,
		logger:           logger,
		cloudTimeout:     30 * time.Second,
		estimatedCostUSD: 0.001,
		providerName:     "unknown",
		modelName:        "unknown",
	}
	if cfg != nil && cfg.EstimatedCostUSD > 0 {
		e.estimatedCostUSD = cfg.EstimatedCostUSD
	}
	if id, ok := host.(cloudIdentifier); ok {
		e.providerName = id.CloudName()
		e.modelName = id.CloudModel()
	}
	return e
}

// Execute runs the decision's tier chain and returns the winning record.
//
// Outputs:
//
//	routing.CaptionRecord - Non-empty caption on success.
//	error                 - ErrCaptionUnavailable when every tier failed.
func (e *Executor) Execute(ctx context.Context, dec routing.Decision, imageBytes []byte) (routing.CaptionRecord, error) {
	ctx, span := executorTracer.Start(ctx, "caption.Executor.Execute",
		trace.WithAttributes(
			attribute.String("primary_tier", string(dec.Tier)),
			attribute.String("reason", dec.Reason),
			attribute.Int("chain_length", 1+len(dec.FallbackChain)),
		),
	)
	defer span.End()

	tiers := make([]routing.Tier, 0, 1+len(dec.FallbackChain))
	tiers = append(tiers, dec.Tier)
	tiers = append(tiers, dec.FallbackChain...)

	for i, tier := range tiers {
		out := e.attempt(ctx, tier, dec, imageBytes)
		if out.ok {
			span.SetAttributes(
				attribute.String("origin", string(out.record.Origin)),
				attribute.Bool("fell_through", i > 0),
			)
			return out.record, nil
		}
		e.logger.Info("caption tier fell through",
			slog.String("tier", string(tier)),
			slog.String("reason", out.reason),
			slog.Int("position", i),
		)
		span.AddEvent("tier_fell_through", trace.WithAttributes(
			attribute.String("tier", string(tier)),
			attribute.String("reason", out.reason),
		))
	}

	span.RecordError(ErrCaptionUnavailable)
	span.SetStatus(codes.Error, "all tiers failed")
	return routing.CaptionRecord{}, ErrCaptionUnavailable
}

// attempt runs a single tier. Refusals and upstream failures become
// fall-through outcomes.
func (e *Executor) attempt(ctx context.Context, tier routing.Tier, dec routing.Decision, imageBytes []byte) tierOutcome {
	switch tier {
	case routing.TierCache:
		return e.attemptCache(dec)
	case routing.TierEdge:
		return e.attemptEdge(dec)
	case routing.TierLocal:
		return e.attemptLocal(ctx, imageBytes)
	case routing.TierCloud:
		return e.attemptCloud(ctx, imageBytes)
	default:
		return tierOutcome{reason: "unknown_tier"}
	}
}

// attemptCache returns the decision's prior record verbatim.
func (e *Executor) attemptCache(dec routing.Decision) tierOutcome {
	if dec.Cached == nil {
		return tierOutcome{reason: "cache_empty"}
	}
	rec := *dec.Cached
	rec.Origin = routing.TierCache
	return tierOutcome{ok: true, record: rec}
}

// attemptEdge promotes the accepted client hint into the caption.
func (e *Executor) attemptEdge(dec routing.Decision) tierOutcome {
	if dec.Hint == "" {
		return tierOutcome{reason: "no_hint"}
	}
	conf := dec.HintConfidence
	if conf <= 0 {
		conf = 1.0
	}
	return tierOutcome{ok: true, record: routing.CaptionRecord{
		Caption:    dec.Hint,
		Confidence: conf,
		Origin:     routing.TierEdge,
	}}
}

func (e *Executor) attemptLocal(ctx context.Context, imageBytes []byte) tierOutcome {
	lc, err := e.host.CaptionLocal(ctx, imageBytes)
	if err != nil {
		// Local failures never touch the breaker.
		e.logger.Warn("local caption failed", slog.String("error", err.Error()))
		return tierOutcome{reason: "local_error"}
	}
	return tierOutcome{ok: true, record: routing.CaptionRecord{
		Caption:    lc.Caption,
		Confidence: lc.Confidence,
		Origin:     routing.TierLocal,
		LatencyMS:  lc.LatencyMS,
	}}
}

func (e *Executor) attemptCloud(ctx context.Context, imageBytes []byte) tierOutcome {
	if ok, reason := e.breaker.CanProceed(); !ok {
		return tierOutcome{reason: reason}
	}
	if ok, reason := e.limiter.Admit(e.estimatedCostUSD); !ok {
		// The admitted call will not execute; release any half-open probe slot.
		e.breaker.CancelProbe()
		return tierOutcome{reason: reason}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cloudTimeout)
	defer cancel()

	egress.CloudCallStarted(e.providerName)
	start := time.Now()
	cc, err := e.host.CaptionCloud(callCtx, imageBytes)
	elapsed := time.Since(start)
	egress.CloudCallFinished(e.providerName)

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			status = "timeout"
		}
		e.breaker.RecordFailure()
		egress.RecordCloudRequest(e.providerName, e.modelName, status, elapsed.Seconds(), 0)
		e.logger.Warn("cloud caption failed",
			slog.String("provider", e.providerName),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		return tierOutcome{reason: "cloud_" + status}
	}

	e.breaker.RecordSuccess()
	e.limiter.Record(cc.CostUSD)
	egress.RecordCloudRequest(e.providerName, cc.Model, "success", elapsed.Seconds(), len(cc.Caption))

	rec := routing.CaptionRecord{
		Caption:    cc.Caption,
		Confidence: 1.0,
		Origin:     routing.TierCloud,
		LatencyMS:  cc.LatencyMS,
		CostUSD:    cc.CostUSD,
		TokensIn:   cc.TokensIn,
		TokensOut:  cc.TokensOut,
	}
	// Write-through on cloud success only; edge and local results are free
	// to recompute and would pollute the namespace.
	e.cache.Store(ctx, imageBytes, rec)
	return tierOutcome{ok: true, record: rec}
}
