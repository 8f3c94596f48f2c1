// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blob stores raw image bytes and thumbnails behind a backend
// interface with local-filesystem and GCS implementations.
package blob

import (
	"bytes"
	"context"
	"image"
	"net/http"

	// Register decoders for dimension probing and thumbnail generation.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// MaxUploadBytes caps accepted image payloads.
const MaxUploadBytes = 10 << 20

// Meta describes one stored image as persisted alongside the caption row.
type Meta struct {
	FilePath      string `json:"file_path"`
	Format        string `json:"format"`
	SizeBytes     int    `json:"size_bytes"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}

// Store persists image bytes and thumbnails. Save is idempotent for the
// same id and bytes; paths returned in Meta are backend-relative and are
// the handles for Open and Delete.
type Store interface {
	Save(ctx context.Context, id string, imageBytes []byte) (*Meta, error)
	Open(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, paths ...string) error
}

// SniffFormat detects the image format from magic bytes. Unknown but
// image-like content defaults to jpeg; non-image content returns "".
func SniffFormat(imageBytes []byte) string {
	switch http.DetectContentType(imageBytes) {
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		if _, _, err := image.DecodeConfig(bytes.NewReader(imageBytes)); err == nil {
			return "jpeg"
		}
		return ""
	}
}

// probeMeta fills format, size, and dimensions. Undecodable dimensions are
// tolerated as zero; the bytes are still stored.
func probeMeta(imageBytes []byte) Meta {
	m := Meta{
		Format:    SniffFormat(imageBytes),
		SizeBytes: len(imageBytes),
	}
	if m.Format == "" {
		m.Format = "jpeg"
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(imageBytes)); err == nil {
		m.Width = cfg.Width
		m.Height = cfg.Height
	}
	return m
}

// extFor maps a sniffed format to the storage file extension.
func extFor(format string) string {
	switch format {
	case "png", "gif", "webp":
		return format
	default:
		return "jpg"
	}
}
