// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package caption

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/providers/egress"
	"github.com/amirhf/imageSearch/services/routing"
)

type fixture struct {
	host    *providers.MockHost
	limiter *egress.RateLimiter
	breaker *egress.CircuitBreaker
	cache   *routing.SemanticCache
	exec    *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	host := providers.NewMockHost()
	limiter := egress.NewRateLimiter(60, 10000, 10.0)
	breaker := egress.NewCircuitBreaker(5, time.Minute, 1, nil)
	cache := routing.NewSemanticCache(client, time.Hour, "", nil)
	return &fixture{
		host:    host,
		limiter: limiter,
		breaker: breaker,
		cache:   cache,
		exec:    NewExecutor(host, limiter, breaker, cache, nil, nil),
	}
}

func TestExecutor_CacheTierReturnsRecordVerbatim(t *testing.T) {
	f := newFixture(t)
	prior := routing.CaptionRecord{Caption: "c", Confidence: 1.0, Origin: routing.TierCloud, CostUSD: 0.001}

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:   routing.TierCache,
		Reason: routing.ReasonCacheHit,
		Cached: &prior,
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, "c", rec.Caption)
	assert.Equal(t, routing.TierCache, rec.Origin)
	assert.Equal(t, 1.0, rec.Confidence)
}

func TestExecutor_EdgeTier(t *testing.T) {
	f := newFixture(t)

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:           routing.TierEdge,
		Reason:         routing.ReasonEdgeAccepted,
		FallbackChain:  []routing.Tier{routing.TierLocal},
		Hint:           "a red shoe",
		HintConfidence: 0.95,
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, "a red shoe", rec.Caption)
	assert.Equal(t, 0.95, rec.Confidence)
	assert.Equal(t, routing.TierEdge, rec.Origin)
	assert.Zero(t, rec.CostUSD)
}

func TestExecutor_EdgeDefaultsConfidenceToOne(t *testing.T) {
	f := newFixture(t)

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier: routing.TierEdge,
		Hint: "a red shoe",
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Confidence)
}

func TestExecutor_LocalTier(t *testing.T) {
	f := newFixture(t)

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:   routing.TierLocal,
		Reason: routing.ReasonDefaultLocal,
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, routing.TierLocal, rec.Origin)
	assert.NotEmpty(t, rec.Caption)
	assert.Equal(t, providers.LocalConfidence(rec.Caption), rec.Confidence)
}

func TestExecutor_CloudSuccessRecordsAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := []byte("img")

	rec, err := f.exec.Execute(ctx, routing.Decision{
		Tier:          routing.TierCloud,
		Reason:        routing.ReasonHighComplexity,
		FallbackChain: []routing.Tier{routing.TierLocal},
	}, img)

	require.NoError(t, err)
	assert.Equal(t, routing.TierCloud, rec.Origin)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, 0.001, rec.CostUSD)

	// Cost landed on the limiter and the record landed in the cache.
	assert.Equal(t, 0.001, f.limiter.Stats().DailyCostUSD)
	cached := f.cache.Lookup(ctx, img)
	require.NotNil(t, cached)
	assert.Equal(t, rec, *cached)
}

func TestExecutor_BreakerOpenFallsThroughToLocal(t *testing.T) {
	f := newFixture(t)

	// Trip the breaker.
	for i := 0; i < 5; i++ {
		f.breaker.RecordFailure()
	}
	require.Equal(t, "open", f.breaker.Stats().State)

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:          routing.TierCloud,
		Reason:        routing.ReasonHighComplexity,
		FallbackChain: []routing.Tier{routing.TierLocal},
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, routing.TierLocal, rec.Origin)
	// The skipped cloud call must not accumulate further breaker failures.
	assert.Equal(t, 5, f.breaker.Stats().FailureCount)
	// And nothing was recorded against the limiter.
	assert.Zero(t, f.limiter.Stats().RequestsToday)
}

func TestExecutor_BudgetExhaustedFallsThroughToLocal(t *testing.T) {
	f := newFixture(t)
	f.limiter = egress.NewRateLimiter(60, 10000, 0.001)
	f.exec = NewExecutor(f.host, f.limiter, f.breaker, f.cache, nil, nil)

	// Spend the whole budget on one recorded cloud call.
	f.limiter.Record(0.001)

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:          routing.TierCloud,
		FallbackChain: []routing.Tier{routing.TierLocal},
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, routing.TierLocal, rec.Origin)
	assert.Zero(t, f.limiter.Stats().BudgetRemainingUSD)
}

func TestExecutor_CloudErrorTripsBreakerAndFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.host.CloudErr = errors.New("upstream 502")

	rec, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:          routing.TierCloud,
		FallbackChain: []routing.Tier{routing.TierLocal},
	}, []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, routing.TierLocal, rec.Origin)
	assert.Equal(t, 1, f.breaker.Stats().FailureCount)
	// Failed cloud calls consume no limiter capacity.
	assert.Zero(t, f.limiter.Stats().RequestsToday)
	// And nothing was cached.
	assert.Nil(t, f.cache.Lookup(context.Background(), []byte("img")))
}

func TestExecutor_AllTiersFail(t *testing.T) {
	f := newFixture(t)
	f.host.CloudErr = errors.New("upstream down")
	f.host.LocalErr = errors.New("model crashed")

	_, err := f.exec.Execute(context.Background(), routing.Decision{
		Tier:          routing.TierCloud,
		FallbackChain: []routing.Tier{routing.TierLocal},
	}, []byte("img"))

	assert.ErrorIs(t, err, ErrCaptionUnavailable)
}

func TestExecutor_LocalAndEdgeResultsAreNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := []byte("img")

	_, err := f.exec.Execute(ctx, routing.Decision{Tier: routing.TierLocal}, img)
	require.NoError(t, err)
	assert.Nil(t, f.cache.Lookup(ctx, img))

	_, err = f.exec.Execute(ctx, routing.Decision{Tier: routing.TierEdge, Hint: "a red shoe"}, img)
	require.NoError(t, err)
	assert.Nil(t, f.cache.Lookup(ctx, img))
}
