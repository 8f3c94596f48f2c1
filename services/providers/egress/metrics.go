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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Cloud Admission Control
// =============================================================================

var (
	// cloudRequestsTotal counts cloud caption attempts by provider, model, and status.
	// Labels: provider, model, status (success, error, timeout)
	cloudRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "cloud",
		Name:      "requests_total",
		Help:      "Total cloud caption requests by provider, model, and status",
	}, []string{"provider", "model", "status"})

	// cloudRequestDuration measures cloud call latency end to end.
	// Labels: provider
	cloudRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "cloud",
		Name:      "request_duration_seconds",
		Help:      "Cloud caption call latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})

	// cloudResponseSizeBytes measures cloud caption response payload size.
	cloudResponseSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "cloud",
		Name:      "response_size_bytes",
		Help:      "Cloud caption response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
	})

	// cloudRequestsInFlight tracks currently executing cloud calls.
	// Labels: provider
	cloudRequestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "cloud",
		Name:      "requests_in_flight",
		Help:      "Cloud caption calls currently in flight",
	}, []string{"provider"})

	// limiterBlockedTotal counts refused admissions by reason.
	// Labels: reason (budget_exceeded, per_minute_exceeded, per_day_exceeded)
	limiterBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "limiter",
		Name:      "blocked_total",
		Help:      "Cloud calls refused by the rate limiter, by reason",
	}, []string{"reason"})

	limiterRequestsLastMinute = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "limiter",
		Name:      "requests_last_minute",
		Help:      "Recorded cloud calls in the sliding 60s window",
	})

	limiterRequestsToday = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "limiter",
		Name:      "requests_today",
		Help:      "Recorded cloud calls in the rolling 24h window",
	})

	limiterDailyCostUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "limiter",
		Name:      "daily_cost_usd",
		Help:      "Accumulated cloud spend in the rolling 24h window",
	})

	limiterBudgetRemainingUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "limiter",
		Name:      "budget_remaining_usd",
		Help:      "Remaining cloud budget in the rolling 24h window",
	})

	// breakerTransitionsTotal counts state transitions by destination state.
	// Labels: to (closed, open, half_open)
	breakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Circuit breaker state transitions by destination state",
	}, []string{"to"})

	breakerRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "breaker",
		Name:      "rejections_total",
		Help:      "Cloud calls refused by the circuit breaker",
	})

	// breakerStateGauge exposes the current state: 0 closed, 1 open, 2 half-open.
	breakerStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	})
)

// RecordCloudRequest records one completed (or failed) cloud caption call.
//
// Inputs:
//   - provider: The cloud adapter name.
//   - model: The model identifier used for the call.
//   - status: One of "success", "error", "timeout".
//   - durationSec: Call duration in seconds.
//   - responseBytes: Response payload size; ignored when <= 0.
func RecordCloudRequest(provider, model, status string, durationSec float64, responseBytes int) {
	cloudRequestsTotal.WithLabelValues(provider, model, status).Inc()
	cloudRequestDuration.WithLabelValues(provider).Observe(durationSec)
	if responseBytes > 0 {
		cloudResponseSizeBytes.Observe(float64(responseBytes))
	}
}

// CloudCallStarted marks a cloud call as in flight.
func CloudCallStarted(provider string) {
	cloudRequestsInFlight.WithLabelValues(provider).Inc()
}

// CloudCallFinished marks a cloud call as no longer in flight.
func CloudCallFinished(provider string) {
	cloudRequestsInFlight.WithLabelValues(provider).Dec()
}
