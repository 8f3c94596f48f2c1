// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worker implements the job handlers that carry routing decisions
// into background processing: full ingestion, standalone captioning, and
// standalone embedding.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirhf/imageSearch/services/blob"
	"github.com/amirhf/imageSearch/services/caption"
	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/queue"
	"github.com/amirhf/imageSearch/services/routing"
	"github.com/amirhf/imageSearch/services/store"
)

// AsyncLatencyBudgetMS is the default routing budget for background jobs.
// The async path deliberately tolerates more latency than sync ingestion.
const AsyncLatencyBudgetMS = 2000

// ImageStore is the slice of the embed store the ingestion handler needs.
type ImageStore interface {
	Upsert(ctx context.Context, row *store.ImageRow, vector []float32) error
}

// Ingestor runs the full ingestion pipeline for one job: persist bytes,
// route and execute the caption, embed, and upsert the durable row.
//
// Thread Safety: Safe for concurrent use.
type Ingestor struct {
	router *routing.Router
	exec   *caption.Executor
	host   providers.ModelHost
	images ImageStore
	blobs  blob.Store
	logger *slog.Logger
}

// NewIngestor wires the ingestion handler.
func NewIngestor(router *routing.Router, exec *caption.Executor, host providers.ModelHost,
	images ImageStore, blobs blob.Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		router: router,
		exec:   exec,
		host:   host,
		images: images,
		blobs:  blobs,
		logger: logger,
	}
}

// Handle processes one ingestion job to a terminal result. Every failure is
// caught and surfaced in the result; jobs are not retried at this layer.
func (w *Ingestor) Handle(ctx context.Context, job *queue.Job) queue.Result {
	img, err := job.Image()
	if err != nil {
		return queue.Failed(err)
	}
	if len(img) == 0 {
		return queue.Failed(fmt.Errorf("job %s has no image bytes", job.JobID))
	}

	id := routing.Fingerprint(img)
	meta, err := w.blobs.Save(ctx, id, img)
	if err != nil {
		return queue.Failed(fmt.Errorf("store image bytes: %w", err))
	}

	budget := job.LatencyBudgetMS
	if budget <= 0 {
		budget = AsyncLatencyBudgetMS
	}
	dec := w.router.Route(ctx, img, budget, job.TextHint, job.ClientConfidence)
	rec, err := w.exec.Execute(ctx, dec, img)
	if err != nil {
		return queue.Failed(err)
	}

	vec, err := w.host.EmbedImage(ctx, img)
	if err != nil {
		// An accepted edge caption dies with the job here; it was never
		// cached, so nothing stale survives.
		return queue.Failed(fmt.Errorf("embed image: %w", err))
	}

	vis, verr := store.ParseVisibility(job.Visibility)
	if verr != nil {
		vis = store.VisibilityPrivate
	}
	row := &store.ImageRow{
		ID:            id,
		Caption:       rec.Caption,
		Confidence:    rec.Confidence,
		Origin:        string(rec.Origin),
		OwnerID:       job.OwnerID,
		Visibility:    vis,
		FilePath:      meta.FilePath,
		Format:        meta.Format,
		SizeBytes:     meta.SizeBytes,
		Width:         meta.Width,
		Height:        meta.Height,
		ThumbnailPath: meta.ThumbnailPath,
	}
	if err := w.images.Upsert(ctx, row, vec); err != nil {
		return queue.Failed(fmt.Errorf("persist image row: %w", err))
	}

	w.logger.Info("image ingested",
		slog.String("job_id", job.JobID),
		slog.String("image_id", id),
		slog.String("origin", string(rec.Origin)),
	)
	return queue.Result{
		Status:      queue.StatusCompleted,
		ImageID:     id,
		Caption:     rec.Caption,
		Confidence:  rec.Confidence,
		Origin:      string(rec.Origin),
		LatencyMS:   rec.LatencyMS,
		CompletedAt: time.Now().Unix(),
	}
}

// Captioner routes and executes a caption without persistence, for callers
// that only want the text back.
type Captioner struct {
	router *routing.Router
	exec   *caption.Executor
}

// NewCaptioner wires the standalone caption handler.
func NewCaptioner(router *routing.Router, exec *caption.Executor) *Captioner {
	return &Captioner{router: router, exec: exec}
}

// Handle processes one caption job to a terminal result.
func (w *Captioner) Handle(ctx context.Context, job *queue.Job) queue.Result {
	img, err := job.Image()
	if err != nil {
		return queue.Failed(err)
	}

	budget := job.LatencyBudgetMS
	if budget <= 0 {
		budget = AsyncLatencyBudgetMS
	}
	dec := w.router.Route(ctx, img, budget, job.TextHint, job.ClientConfidence)
	rec, err := w.exec.Execute(ctx, dec, img)
	if err != nil {
		return queue.Failed(err)
	}

	return queue.Result{
		Status:      queue.StatusCompleted,
		ImageID:     routing.Fingerprint(img),
		Caption:     rec.Caption,
		Confidence:  rec.Confidence,
		Origin:      string(rec.Origin),
		LatencyMS:   rec.LatencyMS,
		CompletedAt: time.Now().Unix(),
	}
}

// Embedder computes the joint embedding for one image without persistence.
type Embedder struct {
	host providers.ModelHost
}

// NewEmbedder wires the standalone embedding handler.
func NewEmbedder(host providers.ModelHost) *Embedder {
	return &Embedder{host: host}
}

// Handle processes one embedding job to a terminal result carrying the vector.
func (w *Embedder) Handle(ctx context.Context, job *queue.Job) queue.Result {
	img, err := job.Image()
	if err != nil {
		return queue.Failed(err)
	}

	vec, err := w.host.EmbedImage(ctx, img)
	if err != nil {
		return queue.Failed(fmt.Errorf("embed image: %w", err))
	}

	return queue.Result{
		Status:      queue.StatusCompleted,
		ImageID:     routing.Fingerprint(img),
		Embedding:   vec,
		CompletedAt: time.Now().Unix(),
	}
}
