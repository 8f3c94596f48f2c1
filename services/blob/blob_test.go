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
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

// testPNG renders a small PNG in memory.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSniffFormat(t *testing.T) {
	if got := SniffFormat(testPNG(t, 4, 4)); got != "png" {
		t.Errorf("png sniffed as %q", got)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatal(err)
	}
	if got := SniffFormat(buf.Bytes()); got != "jpeg" {
		t.Errorf("jpeg sniffed as %q", got)
	}

	if got := SniffFormat([]byte("definitely not an image")); got != "" {
		t.Errorf("text sniffed as %q, want empty", got)
	}
}

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	img := testPNG(t, 400, 300)

	meta, err := s.Save(ctx, "abc123", img)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Format != "png" {
		t.Errorf("format = %q, want png", meta.Format)
	}
	if meta.Width != 400 || meta.Height != 300 {
		t.Errorf("dimensions = %dx%d, want 400x300", meta.Width, meta.Height)
	}
	if meta.SizeBytes != len(img) {
		t.Errorf("size = %d, want %d", meta.SizeBytes, len(img))
	}
	if meta.FilePath != "images/abc123.png" {
		t.Errorf("file_path = %q", meta.FilePath)
	}
	if meta.ThumbnailPath != "thumbnails/abc123.jpg" {
		t.Errorf("thumbnail_path = %q", meta.ThumbnailPath)
	}

	got, err := s.Open(ctx, meta.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, img) {
		t.Error("stored bytes differ from input")
	}

	// Thumbnail is a JPEG bounded by the max edge.
	thumb, err := s.Open(ctx, meta.ThumbnailPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" {
		t.Errorf("thumbnail format = %q, want jpeg", format)
	}
	if cfg.Width != thumbnailMaxEdge {
		t.Errorf("thumbnail width = %d, want %d", cfg.Width, thumbnailMaxEdge)
	}
	if cfg.Height != 192 {
		t.Errorf("thumbnail height = %d, want 192", cfg.Height)
	}

	if err := s.Delete(ctx, meta.FilePath, meta.ThumbnailPath); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(ctx, meta.FilePath); err == nil {
		t.Error("open should fail after delete")
	}
	// Deleting again must stay silent.
	if err := s.Delete(ctx, meta.FilePath); err != nil {
		t.Errorf("second delete errored: %v", err)
	}
}

func TestLocalStore_SaveIsIdempotent(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	img := testPNG(t, 64, 64)

	first, err := s.Save(ctx, "same", img)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Save(ctx, "same", img)
	if err != nil {
		t.Fatal(err)
	}
	if *first != *second {
		t.Errorf("repeated save changed metadata: %+v vs %+v", first, second)
	}
}

func TestLocalStore_SmallImageThumbnailNotUpscaled(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := s.Save(context.Background(), "tiny", testPNG(t, 32, 16))
	if err != nil {
		t.Fatal(err)
	}
	thumb, err := s.Open(context.Background(), meta.ThumbnailPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 32 || cfg.Height != 16 {
		t.Errorf("thumbnail = %dx%d, want 32x16", cfg.Width, cfg.Height)
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(context.Background(), "../outside"); err == nil {
		t.Error("traversal path should be refused")
	}
	if _, err := s.Open(context.Background(), "/etc/passwd"); err == nil {
		t.Error("absolute path should be refused")
	}
}

func TestLocalStore_UndecodableBytesStillStored(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	// Caller-side validation guards the gateway; the store itself tolerates
	// anything and records zero dimensions.
	meta, err := s.Save(context.Background(), "junk", []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	if meta.Width != 0 || meta.Height != 0 {
		t.Errorf("dimensions = %dx%d, want 0x0", meta.Width, meta.Height)
	}
	if meta.ThumbnailPath != "" {
		t.Error("thumbnail should be skipped for undecodable bytes")
	}
}
