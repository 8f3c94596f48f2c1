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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var poolTracer = otel.Tracer("imagesearch.queue")

// defaultDequeueWait bounds each blocking pop so workers observe shutdown.
const defaultDequeueWait = 2 * time.Second

// Handler processes one dequeued job and returns its terminal result.
// Handlers must not write the result slot themselves; the pool does.
type Handler func(ctx context.Context, job *Job) Result

// Pool runs N independent workers draining one queue.
//
// Description:
//
//	Each worker loops: bounded-wait dequeue, handle, write the terminal
//	result slot, repeat. Workers exit after their current job when the
//	context is cancelled; a job in flight always gets its terminal result
//	before the worker moves on. Handler panics are caught and surfaced as
//	failed results.
//
// Thread Safety: Run may be called once; workers share nothing but the queue.
type Pool struct {
	queue       *Queue
	handler     Handler
	concurrency int
	wait        time.Duration
	logger      *slog.Logger
}

// NewPool creates a pool. Non-positive concurrency defaults to 4.
func NewPool(queue *Queue, handler Handler, concurrency int, logger *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		wait:        defaultDequeueWait,
		logger:      logger,
	}
}

// Run blocks until the context is cancelled and every worker has drained
// its current job.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		slog.String("queue", p.queue.Name()),
		slog.Int("concurrency", p.concurrency),
	)

	g := new(errgroup.Group)
	for i := 0; i < p.concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.loop(ctx, worker)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("worker pool stopped", slog.String("queue", p.queue.Name()))
	return err
}

func (p *Pool) loop(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue failed",
				slog.String("queue", p.queue.Name()),
				slog.Int("worker", worker),
				slog.String("error", err.Error()),
			)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		// Pollers see the job leave the queue before its terminal result lands.
		if err := p.queue.SetResult(ctx, job.JobID, Result{Status: StatusProcessing}); err != nil {
			p.logger.Warn("processing status write failed",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}

		res := p.handle(ctx, job)

		// Terminal slot is written before the next dequeue, even at shutdown.
		if err := p.queue.SetResult(context.WithoutCancel(ctx), job.JobID, res); err != nil {
			p.logger.Error("terminal result write failed",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
		jobsProcessedTotal.WithLabelValues(p.queue.Name(), res.Status).Inc()
	}
}

// handle runs the handler under a span, converting panics to failures.
func (p *Pool) handle(ctx context.Context, job *Job) (res Result) {
	ctx, span := poolTracer.Start(ctx, "queue.Pool.handle",
		trace.WithAttributes(
			attribute.String("queue", p.queue.Name()),
			attribute.String("job_id", job.JobID),
			attribute.String("priority", string(job.Priority)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job handler panicked",
				slog.String("job_id", job.JobID),
				slog.Any("panic", r),
			)
			res = Failed(fmt.Errorf("handler panic: %v", r))
		}
		jobDurationSeconds.WithLabelValues(p.queue.Name()).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("status", res.Status))
	}()

	return p.handler(ctx, job)
}
