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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
)

// GCSStore keeps images and thumbnails in a Google Cloud Storage bucket
// under the same images/ and thumbnails/ prefixes as the local backend.
//
// Thread Safety: Safe for concurrent use.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

// NewGCSStore opens the bucket using ambient credentials.
func NewGCSStore(ctx context.Context, bucketName string, logger *slog.Logger) (*GCSStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{
		bucket: client.Bucket(bucketName),
		name:   bucketName,
		logger: logger,
	}, nil
}

// Save writes the image and its thumbnail objects, returning the stored
// metadata. A failed thumbnail is tolerated; the image itself must land.
func (s *GCSStore) Save(ctx context.Context, id string, imageBytes []byte) (*Meta, error) {
	meta := probeMeta(imageBytes)
	meta.FilePath = "images/" + id + "." + extFor(meta.Format)

	if err := s.write(ctx, meta.FilePath, imageBytes, "image/"+meta.Format); err != nil {
		return nil, fmt.Errorf("gcs write image: %w", err)
	}

	thumb, err := makeThumbnail(imageBytes)
	if err != nil {
		s.logger.Warn("thumbnail generation failed",
			slog.String("image_id", id),
			slog.String("error", err.Error()),
		)
		return &meta, nil
	}
	thumbPath := "thumbnails/" + id + ".jpg"
	if err := s.write(ctx, thumbPath, thumb, "image/jpeg"); err != nil {
		s.logger.Warn("thumbnail write failed",
			slog.String("image_id", id),
			slog.String("error", err.Error()),
		)
		return &meta, nil
	}
	meta.ThumbnailPath = thumbPath
	return &meta, nil
}

// Open reads a stored object by its bucket-relative path.
func (s *GCSStore) Open(ctx context.Context, path string) ([]byte, error) {
	r, err := s.bucket.Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", path, err)
	}
	return data, nil
}

// Delete removes stored objects. Missing objects are not errors.
func (s *GCSStore) Delete(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := s.bucket.Object(p).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gcs delete %s: %w", p, err)
		}
	}
	return nil
}

func (s *GCSStore) write(ctx context.Context, path string, data []byte, contentType string) error {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
