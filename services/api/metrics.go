// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// requestDurationSeconds measures handler latency per route.
	// Labels: method, route, status
	requestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route and status",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route", "status"})

	// imageSizeBytes tracks accepted upload sizes.
	imageSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "api",
		Name:      "image_size_bytes",
		Help:      "Accepted upload payload sizes",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// MetricsMiddleware records per-route request durations. Unmatched routes
// are collapsed under "unmatched" to keep cardinality bounded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDurationSeconds.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
