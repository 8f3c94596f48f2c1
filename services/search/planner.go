// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search turns a text query into a scored, scope-filtered result
// list: embed the query, run the hybrid index, attach retrieval URLs.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/store"
)

var plannerTracer = otel.Tracer("imagesearch.search")

// Result caps.
const (
	DefaultK = 10
	MaxK     = 100
)

// VectorSearcher is the slice of the embed store the planner needs.
type VectorSearcher interface {
	Search(ctx context.Context, queryVec []float32, queryText string, k int,
		scope store.Scope, callerID string) ([]store.SearchHit, error)
}

// Result is one search hit shaped for API responses.
type Result struct {
	ID           string  `json:"id"`
	Caption      string  `json:"caption"`
	Score        float64 `json:"score"`
	DownloadURL  string  `json:"download_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

// Planner runs one query end to end: embed, search, decorate.
//
// Thread Safety: Safe for concurrent use.
type Planner struct {
	host    providers.ModelHost
	index   VectorSearcher
	baseURL string
	logger  *slog.Logger
}

// NewPlanner wires the search path. baseURL is the public origin for
// download links and may be empty for relative URLs; the versioned mount
// prefix is appended here so the links resolve against the gateway routes.
func NewPlanner(host providers.ModelHost, index VectorSearcher, baseURL string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		host:    host,
		index:   index,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Search embeds the query text and runs the hybrid index under the caller's
// scope.
//
// Inputs:
//
//	query    - Free text; must be non-empty.
//	k        - Result cap; non-positive defaults to DefaultK, clamped to MaxK.
//	scope    - Tenancy filter; mine and all require a caller identity.
//	callerID - Authenticated user id, empty for anonymous.
//
// Outputs:
//
//	[]Result - Scored hits, best first.
//	error    - store.ErrUnauthenticated for identity-requiring scopes without
//	           a caller; otherwise embed or index failures.
func (p *Planner) Search(ctx context.Context, query string, k int, scope store.Scope, callerID string) ([]Result, error) {
	ctx, span := plannerTracer.Start(ctx, "search.Planner.Search",
		trace.WithAttributes(
			attribute.String("scope", string(scope)),
			attribute.Int("k", k),
		),
	)
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}

	start := time.Now()
	status := "success"
	defer func() {
		searchDurationSeconds.WithLabelValues(string(scope)).Observe(time.Since(start).Seconds())
		searchesTotal.WithLabelValues(string(scope), status).Inc()
	}()

	vec, err := p.host.EmbedText(ctx, query)
	if err != nil {
		status = "embed_error"
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := p.index.Search(ctx, vec, query, k, scope, callerID)
	if err != nil {
		status = "index_error"
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			ID:          h.ID,
			Caption:     h.Caption,
			Score:       h.Score,
			DownloadURL: p.baseURL + "/v1/images/" + h.ID + "/download",
		}
		if h.ThumbnailPath != "" {
			r.ThumbnailURL = p.baseURL + "/v1/images/" + h.ID + "/thumbnail"
		}
		results = append(results, r)
	}

	span.SetAttributes(attribute.Int("hits", len(results)))
	p.logger.Debug("search completed",
		slog.String("scope", string(scope)),
		slog.Int("hits", len(results)),
	)
	return results, nil
}
