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
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, QueueIngestion, time.Hour, nil), mr
}

func TestQueue_RoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := NewJob([]byte("image bytes"), "u1", "private", PriorityHigh)
	job.TextHint = "a red shoe"
	job.ClientConfidence = 0.95
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, "a red shoe", got.TextHint)

	img, err := got.Image()
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), img)
}

func TestQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := NewJob([]byte("one"), "u1", "private", PriorityNormal)
	second := NewJob([]byte("two"), "u1", "private", PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, got.JobID)
}

func TestQueue_EnqueueMarksQueued(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := NewJob([]byte("img"), "u1", "private", PriorityNormal)
	require.NoError(t, q.Enqueue(ctx, job))

	// Before any worker touches it, a poller must see the job as queued.
	res, err := q.Result(ctx, job.JobID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StatusQueued, res.Status)
}

func TestQueue_ResultSlotExpires(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.SetResult(ctx, "job-1", Result{Status: StatusCompleted, ImageID: "abc"}))
	res, err := q.Result(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "abc", res.ImageID)

	mr.FastForward(2 * time.Hour)
	res, err = q.Result(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestQueue_UnknownResultIsNil(t *testing.T) {
	q, _ := newTestQueue(t)
	res, err := q.Result(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityNormal, ParsePriority("normal"))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("urgent"))
}

func waitForStatus(t *testing.T, q *Queue, jobID, want string) *Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("job %s never reached status %s", jobID, want)
			return nil
		case <-time.After(20 * time.Millisecond):
			res, err := q.Result(context.Background(), jobID)
			require.NoError(t, err)
			if res != nil && res.Status == want {
				return res
			}
		}
	}
}

func TestPool_WritesTerminalResult(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(q, func(_ context.Context, job *Job) Result {
		img, err := job.Image()
		if err != nil {
			return Failed(err)
		}
		return Result{
			Status:      StatusCompleted,
			ImageID:     "img-1",
			Caption:     string(img),
			CompletedAt: time.Now().Unix(),
		}
	}, 2, nil)
	pool.wait = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		_ = pool.Run(ctx)
		close(done)
	}()

	job := NewJob([]byte("a caption"), "u1", "private", PriorityNormal)
	require.NoError(t, q.Enqueue(context.Background(), job))

	res := waitForStatus(t, q, job.JobID, StatusCompleted)
	assert.Equal(t, "img-1", res.ImageID)
	assert.Equal(t, "a caption", res.Caption)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestPool_HandlerErrorIsTerminalFailure(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(q, func(context.Context, *Job) Result {
		return Failed(errors.New("embed store down"))
	}, 1, nil)
	pool.wait = 50 * time.Millisecond
	go func() { _ = pool.Run(ctx) }()

	job := NewJob([]byte("img"), "u1", "private", PriorityNormal)
	require.NoError(t, q.Enqueue(context.Background(), job))

	res := waitForStatus(t, q, job.JobID, StatusFailed)
	assert.Contains(t, res.Error, "embed store down")
}

func TestPool_PanicBecomesFailure(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(q, func(context.Context, *Job) Result {
		panic("boom")
	}, 1, nil)
	pool.wait = 50 * time.Millisecond
	go func() { _ = pool.Run(ctx) }()

	job := NewJob([]byte("img"), "u1", "private", PriorityNormal)
	require.NoError(t, q.Enqueue(context.Background(), job))

	res := waitForStatus(t, q, job.JobID, StatusFailed)
	assert.Contains(t, res.Error, "panic")
}
