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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// routerDecisionsTotal counts routing verdicts by tier and reason.
	// Labels: tier (edge, cache, local, cloud), reason
	routerDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "router",
		Name:      "decisions_total",
		Help:      "Routing decisions by chosen tier and reason",
	}, []string{"tier", "reason"})

	// routerDecisionSeconds measures decision latency, cache probe included.
	routerDecisionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "router",
		Name:      "decision_seconds",
		Help:      "Routing decision latency including the cache probe",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// cacheEventsTotal counts cache lookups by sub-tier and outcome.
	// Labels: tier (exact), outcome (hit, miss, error)
	cacheEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "cache",
		Name:      "events_total",
		Help:      "Caption cache lookups by sub-tier and outcome",
	}, []string{"tier", "outcome"})
)
