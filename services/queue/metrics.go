// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// jobsProcessedTotal counts drained jobs by queue and terminal status.
	// Labels: queue, status (completed, failed)
	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagesearch",
		Subsystem: "queue",
		Name:      "jobs_processed_total",
		Help:      "Jobs drained from each queue by terminal status",
	}, []string{"queue", "status"})

	// jobDurationSeconds measures handler time per job, dequeue excluded.
	// Labels: queue
	jobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imagesearch",
		Subsystem: "queue",
		Name:      "job_duration_seconds",
		Help:      "Job handler duration, dequeue wait excluded",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"queue"})

	// queueDepth tracks the queue length observed on enqueue.
	// Labels: queue
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "imagesearch",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Queue length observed at the last enqueue",
	}, []string{"queue"})
)
