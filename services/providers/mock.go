// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// mockCaptions is the fixed pool of deterministic captions. The same image
// bytes always pick the same caption.
var mockCaptions = []string{
	"a person standing in a sunlit room",
	"a small dog on a grassy field",
	"a city street at night with neon signs",
	"a plate of food on a wooden table",
	"a mountain landscape under a clear sky",
	"a group of people at an outdoor market",
	"a cat sleeping on a windowsill",
	"a bicycle leaning against a brick wall",
}

const mockEmbeddingDim = 512

// MockHost is a deterministic, dependency-free ModelHost for tests and for
// deployments with CLOUD_PROVIDER=mock. Error fields, when set, make the
// corresponding capability fail.
//
// Thread Safety: Safe for concurrent use once configured.
type MockHost struct {
	LocalErr error
	CloudErr error
	EmbedErr error

	// CloudCostUSD is the cost reported per mock cloud call (default 0.001).
	CloudCostUSD float64
}

// NewMockHost creates a mock with no injected failures.
func NewMockHost() *MockHost {
	return &MockHost{CloudCostUSD: 0.001}
}

// CaptionLocal returns a hash-picked caption with the length-proxy confidence.
func (m *MockHost) CaptionLocal(_ context.Context, imageBytes []byte) (*LocalCaption, error) {
	if m.LocalErr != nil {
		return nil, m.LocalErr
	}
	caption := pickCaption(imageBytes)
	return &LocalCaption{
		Caption:    caption,
		Confidence: LocalConfidence(caption),
		LatencyMS:  1,
	}, nil
}

// CaptionCloud returns a hash-picked caption attributed to the mock model.
func (m *MockHost) CaptionCloud(_ context.Context, imageBytes []byte) (*CloudCaption, error) {
	if m.CloudErr != nil {
		return nil, m.CloudErr
	}
	cost := m.CloudCostUSD
	if cost == 0 {
		cost = 0.001
	}
	return &CloudCaption{
		Caption:   pickCaption(imageBytes) + " in fine detail",
		Model:     m.Model(),
		LatencyMS: 1,
		CostUSD:   cost,
		TokensIn:  850,
		TokensOut: 12,
	}, nil
}

// EmbedImage returns a deterministic unit vector derived from the bytes.
func (m *MockHost) EmbedImage(_ context.Context, imageBytes []byte) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return pseudoEmbedding(imageBytes), nil
}

// EmbedText returns a deterministic unit vector derived from the text.
func (m *MockHost) EmbedText(_ context.Context, text string) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return pseudoEmbedding([]byte(text)), nil
}

// Caption implements CloudProvider so a MockHost can stand in for the cloud
// adapter directly.
func (m *MockHost) Caption(ctx context.Context, imageBytes []byte) (*CloudCaption, error) {
	return m.CaptionCloud(ctx, imageBytes)
}

// Name returns the provider name used in metrics labels.
func (m *MockHost) Name() string { return "mock" }

// Model returns the mock model identifier.
func (m *MockHost) Model() string { return "mock/vision-v1" }

// CloudName returns the active cloud provider name.
func (m *MockHost) CloudName() string { return m.Name() }

// CloudModel returns the active cloud model identifier.
func (m *MockHost) CloudModel() string { return m.Model() }

func pickCaption(imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(len(mockCaptions))
	return mockCaptions[idx]
}

// pseudoEmbedding expands the content hash into a normalised vector. Equal
// inputs embed identically; unrelated inputs land far apart.
func pseudoEmbedding(data []byte) []float32 {
	sum := sha256.Sum256(data)
	vec := make([]float32, mockEmbeddingDim)
	var norm float64
	for i := range vec {
		seed := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		v := math.Sin(float64(seed) + float64(i))
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
