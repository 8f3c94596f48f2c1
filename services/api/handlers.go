// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api is the HTTP gateway: upload, captioning, search, retrieval,
// and lifecycle endpoints over the routing, queue, and store layers.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amirhf/imageSearch/services/blob"
	"github.com/amirhf/imageSearch/services/caption"
	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/providers/egress"
	"github.com/amirhf/imageSearch/services/queue"
	"github.com/amirhf/imageSearch/services/routing"
	"github.com/amirhf/imageSearch/services/search"
	"github.com/amirhf/imageSearch/services/store"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ImageStore is the slice of the embed store the gateway needs.
type ImageStore interface {
	Upsert(ctx context.Context, row *store.ImageRow, vector []float32) error
	Fetch(ctx context.Context, id string) (*store.ImageRow, error)
	List(ctx context.Context, scope store.Scope, callerID string, limit, offset int) ([]*store.ImageRow, error)
	SetVisibility(ctx context.Context, id string, vis store.Visibility) error
	SoftDelete(ctx context.Context, id string) error
}

// Searcher runs one text query end to end.
type Searcher interface {
	Search(ctx context.Context, query string, k int, scope store.Scope, callerID string) ([]search.Result, error)
}

// JobQueue is the producer-side queue surface.
type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
	Result(ctx context.Context, jobID string) (*queue.Result, error)
}

// ReadyCheck probes one downstream dependency for the readiness endpoint.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps collects everything the gateway handlers need.
type Deps struct {
	Router   *routing.Router
	Executor *caption.Executor
	Host     providers.ModelHost
	Images   ImageStore
	Blobs    blob.Store
	Search   Searcher
	Jobs     JobQueue
	Limiter  *egress.RateLimiter
	Breaker  *egress.CircuitBreaker

	BaseURL      string
	SyncBudgetMS int
	Ready        []ReadyCheck
	Logger       *slog.Logger
}

// Handlers implements the gateway endpoints.
//
// Thread Safety: Safe for concurrent use; all state lives in the collaborators.
type Handlers struct {
	deps Deps
}

// NewHandlers creates the gateway handlers.
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SyncBudgetMS <= 0 {
		deps.SyncBudgetMS = DefaultSyncBudgetMS
	}
	deps.BaseURL = strings.TrimRight(deps.BaseURL, "/")
	return &Handlers{deps: deps}
}

// imageResponse is the row shape returned by upload, fetch, and list.
type imageResponse struct {
	ID           string  `json:"id"`
	Caption      string  `json:"caption"`
	Origin       string  `json:"origin"`
	Confidence   float64 `json:"confidence"`
	Visibility   string  `json:"visibility"`
	DownloadURL  string  `json:"download_url"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	SizeBytes    int     `json:"size_bytes"`
	Format       string  `json:"format"`
}

func (h *Handlers) imageResponseFor(row *store.ImageRow) imageResponse {
	r := imageResponse{
		ID:          row.ID,
		Caption:     row.Caption,
		Origin:      row.Origin,
		Confidence:  row.Confidence,
		Visibility:  string(row.Visibility),
		DownloadURL: h.deps.BaseURL + "/v1/images/" + row.ID + "/download",
		Width:       row.Width,
		Height:      row.Height,
		SizeBytes:   row.SizeBytes,
		Format:      row.Format,
	}
	if row.ThumbnailPath != "" {
		r.ThumbnailURL = h.deps.BaseURL + "/v1/images/" + row.ID + "/thumbnail"
	}
	return r
}

// clientHint reads the edge-tier caption hint. Headers are the primary
// channel; multipart form fields are accepted as a fallback.
func clientHint(c *gin.Context) (string, float64) {
	hint := c.GetHeader("x-client-caption")
	if hint == "" {
		hint = c.PostForm("text_hint")
	}
	raw := c.GetHeader("x-client-confidence")
	if raw == "" {
		raw = c.PostForm("client_confidence")
	}
	conf := 0.0
	if raw != "" {
		conf, _ = strconv.ParseFloat(raw, 64)
	}
	return hint, conf
}

// readUpload extracts image bytes from a multipart "file" field or, failing
// that, the raw request body.
func readUpload(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("file"); err == nil {
		if file.Size > blob.MaxUploadBytes {
			return nil, errTooLarge
		}
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, blob.MaxUploadBytes+1))
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, blob.MaxUploadBytes+1))
}

var errTooLarge = errors.New("image exceeds upload limit")

// resolveVisibility validates the requested visibility and enforces that
// only admins may publish to the curated public_admin class.
func resolveVisibility(c *gin.Context, raw string, user *CurrentUser) (store.Visibility, bool) {
	if raw == "" {
		raw = string(store.VisibilityPrivate)
	}
	vis, err := store.ParseVisibility(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_VISIBILITY"})
		return "", false
	}
	if vis == store.VisibilityPublicAdmin && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "public_admin visibility requires the admin role",
			Code:  "FORBIDDEN",
		})
		return "", false
	}
	return vis, true
}

// HandleUploadSync handles POST /v1/images.
//
// Description:
//
//	Synchronous ingestion: store the bytes, route and execute the caption
//	under the sync latency budget, embed, and upsert the durable row. The
//	client gets the finished record in one round trip.
//
// Response:
//
//	200 OK: imageResponse
//	400 Bad Request: Not an image, empty body, or invalid visibility
//	401 Unauthorized: Anonymous caller
//	403 Forbidden: public_admin requested by a non-admin
//	413 Request Entity Too Large: Payload over the upload cap
//	502 Bad Gateway: Every caption tier failed
func (h *Handlers) HandleUploadSync(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	img, err := readUpload(c)
	if errors.Is(err, errTooLarge) || len(img) > blob.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image exceeds upload limit", Code: "TOO_LARGE"})
		return
	}
	if err != nil || len(img) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing image payload", Code: "MISSING_IMAGE"})
		return
	}
	if blob.SniffFormat(img) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payload is not a supported image", Code: "UNSUPPORTED_FORMAT"})
		return
	}
	imageSizeBytes.Observe(float64(len(img)))

	vis, ok := resolveVisibility(c, c.PostForm("visibility"), user)
	if !ok {
		return
	}

	hint, hintConf := clientHint(c)

	ctx := c.Request.Context()
	id := routing.Fingerprint(img)
	meta, err := h.deps.Blobs.Save(ctx, id, img)
	if err != nil {
		h.deps.Logger.Error("image save failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "image storage failed", Code: "STORAGE_ERROR"})
		return
	}

	dec := h.deps.Router.Route(ctx, img, h.deps.SyncBudgetMS, hint, hintConf)
	rec, err := h.deps.Executor.Execute(ctx, dec, img)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "caption unavailable", Code: "CAPTION_UNAVAILABLE"})
		return
	}

	vec, err := h.deps.Host.EmbedImage(ctx, img)
	if err != nil {
		h.deps.Logger.Error("embedding failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "embedding failed", Code: "EMBED_ERROR"})
		return
	}

	row := &store.ImageRow{
		ID:            id,
		Caption:       rec.Caption,
		Confidence:    rec.Confidence,
		Origin:        string(rec.Origin),
		OwnerID:       user.ID,
		Visibility:    vis,
		FilePath:      meta.FilePath,
		Format:        meta.Format,
		SizeBytes:     meta.SizeBytes,
		Width:         meta.Width,
		Height:        meta.Height,
		ThumbnailPath: meta.ThumbnailPath,
	}
	if err := h.deps.Images.Upsert(ctx, row, vec); err != nil {
		h.deps.Logger.Error("image upsert failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "persistence failed", Code: "STORE_ERROR"})
		return
	}

	c.JSON(http.StatusOK, h.imageResponseFor(row))
}

// HandleUploadAsync handles POST /v1/images/async. Priority comes from the
// ?priority query parameter; a form field of the same name is accepted as a
// fallback.
//
// Response:
//
//	202 Accepted: {"job_id": ..., "status": "queued", "poll_url": "/v1/jobs/..."}
func (h *Handlers) HandleUploadAsync(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	img, err := readUpload(c)
	if errors.Is(err, errTooLarge) || len(img) > blob.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "image exceeds upload limit", Code: "TOO_LARGE"})
		return
	}
	if err != nil || len(img) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing image payload", Code: "MISSING_IMAGE"})
		return
	}
	if blob.SniffFormat(img) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payload is not a supported image", Code: "UNSUPPORTED_FORMAT"})
		return
	}
	imageSizeBytes.Observe(float64(len(img)))

	if _, ok := resolveVisibility(c, c.PostForm("visibility"), user); !ok {
		return
	}

	priority := c.Query("priority")
	if priority == "" {
		priority = c.PostForm("priority")
	}
	job := queue.NewJob(img, user.ID, c.DefaultPostForm("visibility", string(store.VisibilityPrivate)),
		queue.ParsePriority(priority))
	job.TextHint, job.ClientConfidence = clientHint(c)

	if err := h.deps.Jobs.Enqueue(c.Request.Context(), job); err != nil {
		h.deps.Logger.Error("enqueue failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "queue unavailable", Code: "QUEUE_ERROR"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   job.JobID,
		"status":   queue.StatusQueued,
		"poll_url": h.deps.BaseURL + "/v1/jobs/" + job.JobID,
	})
}

// jobStatusResponse wraps a job's lifecycle state for polling clients. The
// result object appears only once the job reaches a terminal status.
type jobStatusResponse struct {
	JobID  string            `json:"job_id"`
	Status string            `json:"status"`
	Result *jobResultPayload `json:"result,omitempty"`
}

type jobResultPayload struct {
	ImageID     string  `json:"image_id,omitempty"`
	Caption     string  `json:"caption,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Origin      string  `json:"origin,omitempty"`
	LatencyMS   int64   `json:"latency_ms,omitempty"`
	Error       string  `json:"error,omitempty"`
	CompletedAt string  `json:"completed_at,omitempty"`
}

// HandleJobStatus handles GET /v1/jobs/:id.
func (h *Handlers) HandleJobStatus(c *gin.Context) {
	jobID := c.Param("id")
	res, err := h.deps.Jobs.Result(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "queue unavailable", Code: "QUEUE_ERROR"})
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown or expired job", Code: "JOB_NOT_FOUND"})
		return
	}

	out := jobStatusResponse{JobID: jobID, Status: res.Status}
	if res.Status == queue.StatusCompleted || res.Status == queue.StatusFailed {
		out.Result = &jobResultPayload{
			ImageID:    res.ImageID,
			Caption:    res.Caption,
			Confidence: res.Confidence,
			Origin:     res.Origin,
			LatencyMS:  int64(res.LatencyMS),
			Error:      res.Error,
		}
		if res.CompletedAt > 0 {
			out.Result.CompletedAt = time.Unix(res.CompletedAt, 0).UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, out)
}

// HandleSearch handles GET /v1/search.
//
// Query Parameters:
//
//	q: Free text query (required)
//	k: Result cap (optional, default 10)
//	scope: public, mine, or all (optional, default public)
func (h *Handlers) HandleSearch(c *gin.Context) {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q parameter is required", Code: "MISSING_PARAMETER"})
		return
	}

	scope, err := store.ParseScope(c.DefaultQuery("scope", string(store.ScopePublic)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SCOPE"})
		return
	}

	k := 0
	if v := c.Query("k"); v != "" {
		k, _ = strconv.Atoi(v)
	}

	callerID := ""
	if user := userFrom(c); user != nil {
		callerID = user.ID
	}

	results, err := h.deps.Search.Search(c.Request.Context(), q, k, scope, callerID)
	if errors.Is(err, store.ErrUnauthenticated) {
		unauthorized(c, "scope requires authentication")
		return
	}
	if err != nil {
		h.deps.Logger.Error("search failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "search failed", Code: "SEARCH_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   q,
		"scope":   string(scope),
		"results": results,
	})
}

// HandleListImages handles GET /v1/images.
func (h *Handlers) HandleListImages(c *gin.Context) {
	scope, err := store.ParseScope(c.DefaultQuery("scope", string(store.ScopePublic)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SCOPE"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	callerID := ""
	if user := userFrom(c); user != nil {
		callerID = user.ID
	}

	rows, err := h.deps.Images.List(c.Request.Context(), scope, callerID, limit, offset)
	if errors.Is(err, store.ErrUnauthenticated) {
		unauthorized(c, "scope requires authentication")
		return
	}
	if err != nil {
		h.deps.Logger.Error("list failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "list failed", Code: "STORE_ERROR"})
		return
	}

	out := make([]imageResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.imageResponseFor(row))
	}
	c.JSON(http.StatusOK, gin.H{"images": out})
}

// fetchVisible loads a row and enforces read access: public classes are open
// to everyone, private rows only to their owner or an admin. Inaccessible
// rows read as absent.
func (h *Handlers) fetchVisible(c *gin.Context) *store.ImageRow {
	row, err := h.deps.Images.Fetch(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "image not found", Code: "NOT_FOUND"})
		return nil
	}
	if err != nil {
		h.deps.Logger.Error("fetch failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "fetch failed", Code: "STORE_ERROR"})
		return nil
	}

	if row.Visibility == store.VisibilityPrivate {
		user := userFrom(c)
		if user == nil || (user.ID != row.OwnerID && !user.IsAdmin()) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "image not found", Code: "NOT_FOUND"})
			return nil
		}
	}
	return row
}

// HandleGetImage handles GET /v1/images/:id.
func (h *Handlers) HandleGetImage(c *gin.Context) {
	row := h.fetchVisible(c)
	if row == nil {
		return
	}
	c.JSON(http.StatusOK, h.imageResponseFor(row))
}

func contentTypeFor(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// HandleDownload handles GET /v1/images/:id/download.
func (h *Handlers) HandleDownload(c *gin.Context) {
	row := h.fetchVisible(c)
	if row == nil {
		return
	}
	data, err := h.deps.Blobs.Open(c.Request.Context(), row.FilePath)
	if err != nil {
		h.deps.Logger.Error("blob open failed",
			slog.String("path", row.FilePath),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "image bytes unavailable", Code: "BLOB_MISSING"})
		return
	}
	c.Data(http.StatusOK, contentTypeFor(row.Format), data)
}

// HandleThumbnail handles GET /v1/images/:id/thumbnail.
func (h *Handlers) HandleThumbnail(c *gin.Context) {
	row := h.fetchVisible(c)
	if row == nil {
		return
	}
	if row.ThumbnailPath == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no thumbnail", Code: "BLOB_MISSING"})
		return
	}
	data, err := h.deps.Blobs.Open(c.Request.Context(), row.ThumbnailPath)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "thumbnail unavailable", Code: "BLOB_MISSING"})
		return
	}
	// Thumbnails are always re-encoded as JPEG.
	c.Data(http.StatusOK, "image/jpeg", data)
}

// requireOwnership loads the row and checks the caller may mutate it.
func (h *Handlers) requireOwnership(c *gin.Context) (*store.ImageRow, *CurrentUser) {
	user := requireUser(c)
	if user == nil {
		return nil, nil
	}
	row, err := h.deps.Images.Fetch(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "image not found", Code: "NOT_FOUND"})
		return nil, nil
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "fetch failed", Code: "STORE_ERROR"})
		return nil, nil
	}
	if row.OwnerID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not the image owner", Code: "FORBIDDEN"})
		return nil, nil
	}
	return row, user
}

// HandleSetVisibility handles PATCH /v1/images/:id.
func (h *Handlers) HandleSetVisibility(c *gin.Context) {
	row, user := h.requireOwnership(c)
	if row == nil {
		return
	}

	var body struct {
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	vis, ok := resolveVisibility(c, body.Visibility, user)
	if !ok {
		return
	}

	if err := h.deps.Images.SetVisibility(c.Request.Context(), row.ID, vis); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "update failed", Code: "STORE_ERROR"})
		return
	}
	row.Visibility = vis
	c.JSON(http.StatusOK, h.imageResponseFor(row))
}

// HandleDeleteImage handles DELETE /v1/images/:id. The row is soft-deleted;
// stored bytes are retained for later revival.
func (h *Handlers) HandleDeleteImage(c *gin.Context) {
	row, _ := h.requireOwnership(c)
	if row == nil {
		return
	}
	if err := h.deps.Images.SoftDelete(c.Request.Context(), row.ID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "delete failed", Code: "STORE_ERROR"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleLimits handles GET /v1/limits: current egress budget and breaker
// state for operators and cost dashboards.
func (h *Handlers) HandleLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rate_limiter":    h.deps.Limiter.Stats(),
		"circuit_breaker": h.deps.Breaker.Stats(),
	})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /readyz: every configured dependency probe must
// pass within a short deadline.
func (h *Handlers) HandleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for _, rc := range h.deps.Ready {
		if err := rc.Check(ctx); err != nil {
			failures[rc.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failures": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
