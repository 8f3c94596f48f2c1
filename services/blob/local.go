// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps images and thumbnails on the local filesystem under a
// root directory: <root>/images/<id>.<ext> and <root>/thumbnails/<id>.jpg.
//
// Thread Safety: Safe for concurrent use; writes to distinct ids are
// independent and rewrites of the same id are idempotent.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates the root directories if needed.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range []string{"images", "thumbnails"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &LocalStore{root: root, logger: logger}, nil
}

// Save writes the image and its thumbnail, returning the stored metadata.
// A failed thumbnail is tolerated; the image itself must land.
func (s *LocalStore) Save(_ context.Context, id string, imageBytes []byte) (*Meta, error) {
	meta := probeMeta(imageBytes)
	meta.FilePath = filepath.ToSlash(filepath.Join("images", id+"."+extFor(meta.Format)))

	if err := os.WriteFile(filepath.Join(s.root, meta.FilePath), imageBytes, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	thumb, err := makeThumbnail(imageBytes)
	if err != nil {
		s.logger.Warn("thumbnail generation failed",
			slog.String("image_id", id),
			slog.String("error", err.Error()),
		)
		return &meta, nil
	}
	thumbPath := filepath.ToSlash(filepath.Join("thumbnails", id+".jpg"))
	if err := os.WriteFile(filepath.Join(s.root, thumbPath), thumb, 0o644); err != nil {
		s.logger.Warn("thumbnail write failed",
			slog.String("image_id", id),
			slog.String("error", err.Error()),
		)
		return &meta, nil
	}
	meta.ThumbnailPath = thumbPath
	return &meta, nil
}

// Open reads a stored object by its backend-relative path.
func (s *LocalStore) Open(_ context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes stored objects. Missing objects are not errors.
func (s *LocalStore) Delete(_ context.Context, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		full, err := s.resolve(p)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete blob: %w", err)
		}
	}
	return nil
}

// resolve joins a relative path under the root, refusing traversal.
func (s *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}
