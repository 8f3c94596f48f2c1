// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// searchDurationSeconds covers embed plus index time per query.
	// Labels: scope
	searchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "End to end query duration, embed plus index",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"scope"})

	// searchesTotal counts queries by scope and outcome.
	// Labels: scope, status (success, embed_error, index_error)
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Search queries by scope and outcome",
	}, []string{"scope", "status"})
)
