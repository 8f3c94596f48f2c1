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
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached caption stays valid.
const DefaultCacheTTL = 3600 * time.Second

// defaultCacheKeyPrefix namespaces caption entries in the shared store.
const defaultCacheKeyPrefix = "caption:hash:"

// SemanticCache is a content-addressed caption memo backed by a shared
// key-value store.
//
// Description:
//
//	Lookup computes SHA-256 over the raw image bytes and fetches the keyed
//	record; Store serialises the record with a TTL. Both operations are
//	fail-open: any backing-store error degrades to a miss (or a silent
//	drop) plus a warning, never a request error. The current lookup is
//	exact-match; the name leaves room for a similarity tier behind the
//	same contract.
//
// Thread Safety: Safe for concurrent use. A nil *SemanticCache is a valid
// always-miss cache.
type SemanticCache struct {
	client    redis.Cmdable
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewSemanticCache creates a cache on the given store client. A zero ttl
// uses DefaultCacheTTL; an empty prefix uses "caption:hash:".
func NewSemanticCache(client redis.Cmdable, ttl time.Duration, keyPrefix string, logger *slog.Logger) *SemanticCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if keyPrefix == "" {
		keyPrefix = defaultCacheKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// Lookup returns the cached record for these exact bytes, or nil on miss.
// Store errors are logged and counted, then reported as a miss.
func (c *SemanticCache) Lookup(ctx context.Context, imageBytes []byte) *CaptionRecord {
	if c == nil || c.client == nil {
		return nil
	}

	key := c.keyPrefix + contentHash(imageBytes)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheEventsTotal.WithLabelValues("exact", "miss").Inc()
		return nil
	}
	if err != nil {
		cacheEventsTotal.WithLabelValues("exact", "error").Inc()
		c.logger.Warn("caption cache lookup failed", slog.String("error", err.Error()))
		return nil
	}

	var rec CaptionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		cacheEventsTotal.WithLabelValues("exact", "error").Inc()
		c.logger.Warn("caption cache entry corrupt", slog.String("key", key))
		return nil
	}

	cacheEventsTotal.WithLabelValues("exact", "hit").Inc()
	return &rec
}

// Store writes the record for these exact bytes with the configured TTL.
// Failures are logged and dropped.
func (c *SemanticCache) Store(ctx context.Context, imageBytes []byte, rec CaptionRecord) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("caption cache encode failed", slog.String("error", err.Error()))
		return
	}

	key := c.keyPrefix + contentHash(imageBytes)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		cacheEventsTotal.WithLabelValues("exact", "error").Inc()
		c.logger.Warn("caption cache store failed", slog.String("error", err.Error()))
	}
}
