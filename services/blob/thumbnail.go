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
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// thumbnailMaxEdge bounds the longest side of generated thumbnails.
const thumbnailMaxEdge = 256

const thumbnailJPEGQuality = 85

// makeThumbnail scales the image to at most thumbnailMaxEdge on its longest
// side and re-encodes it as JPEG. Images already small enough are re-encoded
// without scaling so thumbnails are uniformly JPEG.
func makeThumbnail(imageBytes []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("degenerate image %dx%d", w, h)
	}

	tw, th := w, h
	if w > thumbnailMaxEdge || h > thumbnailMaxEdge {
		if w >= h {
			tw = thumbnailMaxEdge
			th = h * thumbnailMaxEdge / w
		} else {
			th = thumbnailMaxEdge
			tw = w * thumbnailMaxEdge / h
		}
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
