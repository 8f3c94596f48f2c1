// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package queue provides the durable FIFO of ingestion jobs, per-job result
// slots, and the bounded-concurrency worker pool that drains them.
package queue

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue names shared between producers and workers.
const (
	QueueIngestion = "ingestion:jobs"
	QueueCaption   = "caption:jobs"
	QueueEmbedding = "embedding:jobs"
)

// Priority orders jobs in a future weighted-dequeue extension. Recorded but
// not honoured by the baseline FIFO.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a client value onto a known priority, defaulting to
// normal.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityHigh:
		return Priority(s)
	default:
		return PriorityNormal
	}
}

// Job is one unit of asynchronous work. Image bytes travel base64-encoded
// inside the JSON envelope.
type Job struct {
	JobID            string   `json:"job_id"`
	ImageB64         string   `json:"image_b64"`
	OwnerID          string   `json:"user_id"`
	Visibility       string   `json:"visibility"`
	Priority         Priority `json:"priority"`
	Filename         string   `json:"filename,omitempty"`
	ContentType      string   `json:"content_type,omitempty"`
	TextHint         string   `json:"text_hint,omitempty"`
	ClientConfidence float64  `json:"client_confidence,omitempty"`
	LatencyBudgetMS  int      `json:"latency_budget_ms,omitempty"`
	SubmittedAt      int64    `json:"submitted_at"`
}

// NewJob creates a job with a fresh id and the current submission time.
func NewJob(imageBytes []byte, ownerID, visibility string, priority Priority) *Job {
	return &Job{
		JobID:       uuid.NewString(),
		ImageB64:    base64.StdEncoding.EncodeToString(imageBytes),
		OwnerID:     ownerID,
		Visibility:  visibility,
		Priority:    priority,
		SubmittedAt: time.Now().Unix(),
	}
}

// Image decodes the job's image bytes.
func (j *Job) Image() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(j.ImageB64)
	if err != nil {
		return nil, fmt.Errorf("decode job image: %w", err)
	}
	return data, nil
}

// Job result statuses. A job is queued on enqueue, processing once a worker
// dequeues it, and exactly one terminal status after that.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Result is the terminal (or in-flight) record written to a job's result
// slot. Exactly one terminal result is written per dequeued job.
type Result struct {
	Status      string    `json:"status"`
	ImageID     string    `json:"image_id,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	LatencyMS   int       `json:"latency_ms,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt int64     `json:"completed_at,omitempty"`
}

// Failed builds a terminal failure result.
func Failed(err error) Result {
	return Result{
		Status:      StatusFailed,
		Error:       err.Error(),
		CompletedAt: time.Now().Unix(),
	}
}
