// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// embeddingDim is the joint image/text embedding dimensionality.
const embeddingDim = 512

// Store is the Postgres-backed hybrid vector+keyword index.
//
// Thread Safety: Safe for concurrent use; pgxpool handles pooling.
type Store struct {
	pool       *pgxpool.Pool
	textBoost  bool
	textWeight float64
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTextBoost enables the keyword-containment boost with weight w.
func WithTextBoost(enabled bool, w float64) Option {
	return func(s *Store) {
		s.textBoost = enabled
		if w > 0 {
			s.textWeight = w
		}
	}
}

// New connects to Postgres and bootstraps the schema.
func New(ctx context.Context, databaseURL string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{
		pool:       pool,
		textBoost:  true,
		textWeight: 0.2,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ensureSchema creates the images table and indexes. Extension and index
// failures degrade to a warning; vector search then falls back to a
// sequential scan until an operator intervenes.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		s.logger.Warn("pgvector extension unavailable", slog.String("error", err.Error()))
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS images (
			id             TEXT PRIMARY KEY,
			caption        TEXT NOT NULL DEFAULT '',
			confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
			origin         TEXT NOT NULL DEFAULT '',
			embed_vector   vector(%d),
			owner_id       TEXT NOT NULL DEFAULT '',
			visibility     TEXT NOT NULL DEFAULT 'private',
			file_path      TEXT NOT NULL DEFAULT '',
			format         TEXT NOT NULL DEFAULT '',
			size_bytes     BIGINT NOT NULL DEFAULT 0,
			width          INT NOT NULL DEFAULT 0,
			height         INT NOT NULL DEFAULT 0,
			thumbnail_path TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at     TIMESTAMPTZ
		)`, embeddingDim))
	if err != nil {
		return fmt.Errorf("create images table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS images_embed_hnsw
		ON images USING hnsw (embed_vector vector_cosine_ops)`); err != nil {
		s.logger.Warn("hnsw index unavailable", slog.String("error", err.Error()))
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS images_owner_idx ON images (owner_id)`); err != nil {
		s.logger.Warn("owner index unavailable", slog.String("error", err.Error()))
	}
	return nil
}

// Upsert writes (or rewrites) the durable row for an image. Re-ingesting a
// soft-deleted image revives it.
func (s *Store) Upsert(ctx context.Context, row *ImageRow, vector []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO images (
			id, caption, confidence, origin, embed_vector, owner_id, visibility,
			file_path, format, size_bytes, width, height, thumbnail_path
		) VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			caption        = EXCLUDED.caption,
			confidence     = EXCLUDED.confidence,
			origin         = EXCLUDED.origin,
			embed_vector   = EXCLUDED.embed_vector,
			owner_id       = EXCLUDED.owner_id,
			visibility     = EXCLUDED.visibility,
			file_path      = EXCLUDED.file_path,
			format         = EXCLUDED.format,
			size_bytes     = EXCLUDED.size_bytes,
			width          = EXCLUDED.width,
			height         = EXCLUDED.height,
			thumbnail_path = EXCLUDED.thumbnail_path,
			deleted_at     = NULL`,
		row.ID, row.Caption, row.Confidence, row.Origin, vectorLiteral(vector),
		row.OwnerID, string(row.Visibility), row.FilePath, row.Format,
		row.SizeBytes, row.Width, row.Height, row.ThumbnailPath)
	if err != nil {
		return fmt.Errorf("upsert image %s: %w", row.ID, err)
	}
	return nil
}

const rowColumns = `id, caption, confidence, origin, owner_id, visibility,
	file_path, format, size_bytes, width, height, thumbnail_path, created_at, deleted_at`

func scanRow(r pgx.Row) (*ImageRow, error) {
	var row ImageRow
	var vis string
	err := r.Scan(&row.ID, &row.Caption, &row.Confidence, &row.Origin,
		&row.OwnerID, &vis, &row.FilePath, &row.Format, &row.SizeBytes,
		&row.Width, &row.Height, &row.ThumbnailPath, &row.CreatedAt, &row.DeletedAt)
	if err != nil {
		return nil, err
	}
	row.Visibility = Visibility(vis)
	return &row, nil
}

// Fetch returns the row for id, excluding soft-deleted images.
func (s *Store) Fetch(ctx context.Context, id string) (*ImageRow, error) {
	row, err := scanRow(s.pool.QueryRow(ctx,
		`SELECT `+rowColumns+` FROM images WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", id, err)
	}
	return row, nil
}

// List returns tenant-visible rows, newest first.
func (s *Store) List(ctx context.Context, scope Scope, callerID string, limit, offset int) ([]*ImageRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	filter, args, err := scopeFilter(scope, callerID, 1)
	if err != nil {
		return nil, err
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM images WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, rowColumns, filter, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []*ImageRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SetVisibility updates the access class of an image.
func (s *Store) SetVisibility(ctx context.Context, id string, vis Visibility) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET visibility = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, string(vis))
	if err != nil {
		return fmt.Errorf("set visibility %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides the image from all reads without dropping the row.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search runs the hybrid query: cosine similarity against the query vector
// plus an optional case-insensitive caption-containment boost. The score is
// (1 - cosine_distance) + w * 1[match].
func (s *Store) Search(ctx context.Context, queryVec []float32, queryText string, k int, scope Scope, callerID string) ([]SearchHit, error) {
	if k <= 0 || k > 100 {
		k = 10
	}

	boost := ""
	args := []any{vectorLiteral(queryVec)}
	if s.textBoost && queryText != "" {
		boost = fmt.Sprintf(
			" + CASE WHEN caption ILIKE '%%' || $2 || '%%' THEN $3::float8 ELSE 0 END")
		args = append(args, queryText, s.textWeight)
	}

	filter, filterArgs, err := scopeFilter(scope, callerID, len(args)+1)
	if err != nil {
		return nil, err
	}
	args = append(args, filterArgs...)

	query := fmt.Sprintf(`
		SELECT id, caption, file_path, thumbnail_path,
		       (1 - (embed_vector <=> $1::vector))%s AS score
		FROM images
		WHERE embed_vector IS NOT NULL AND %s
		ORDER BY score DESC
		LIMIT $%d`, boost, filter, len(args)+1)
	args = append(args, k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.Caption, &h.FilePath, &h.ThumbnailPath, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
