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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultResultTTL bounds how long a job result slot survives.
const DefaultResultTTL = 3600 * time.Second

// Queue is a process-external FIFO of serialised jobs with per-job result
// slots. Producers LPUSH, workers BRPOP; result slots are plain keys with a
// TTL so completed jobs age out on their own.
//
// Thread Safety: Safe for concurrent use.
type Queue struct {
	client    redis.Cmdable
	name      string
	resultTTL time.Duration
	logger    *slog.Logger
}

// NewQueue creates a handle on the named queue. A zero ttl uses
// DefaultResultTTL.
func NewQueue(client redis.Cmdable, name string, resultTTL time.Duration, logger *slog.Logger) *Queue {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client:    client,
		name:      name,
		resultTTL: resultTTL,
		logger:    logger,
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Enqueue appends a job to the tail of the queue and marks its result slot
// as queued so pollers see the job before a worker picks it up.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	depth, err := q.client.LPush(ctx, q.name, data).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", q.name, err)
	}
	queueDepth.WithLabelValues(q.name).Set(float64(depth))

	if err := q.SetResult(ctx, job.JobID, Result{Status: StatusQueued}); err != nil {
		q.logger.Warn("result slot init failed",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Dequeue blocks up to wait for the next job. A timeout returns (nil, nil)
// so supervisors can observe shutdown between polls.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	vals, err := q.client.BRPop(ctx, wait, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", q.name, err)
	}
	// BRPOP returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job from %s: %w", q.name, err)
	}
	return &job, nil
}

// SetResult writes the job's result slot with the configured TTL.
func (q *Queue) SetResult(ctx context.Context, jobID string, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	key := q.resultKey(jobID)
	if err := q.client.Set(ctx, key, data, q.resultTTL).Err(); err != nil {
		return fmt.Errorf("write result slot %s: %w", key, err)
	}
	return nil
}

// Result reads the job's result slot. A missing or expired slot returns
// (nil, nil).
func (q *Queue) Result(ctx context.Context, jobID string) (*Result, error) {
	data, err := q.client.Get(ctx, q.resultKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read result slot: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result slot: %w", err)
	}
	return &res, nil
}

func (q *Queue) resultKey(jobID string) string {
	return q.name + ":result:" + jobID
}
