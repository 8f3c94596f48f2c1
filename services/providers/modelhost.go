// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers adapts the caption and embedding model runtimes behind a
// single capability interface. Adapters are resolved once at construction,
// never per call.
package providers

import (
	"context"
	"unicode/utf8"
)

// LocalCaption is the result of one local model caption call.
type LocalCaption struct {
	Caption    string
	Confidence float64
	LatencyMS  int
}

// CloudCaption is the result of one cloud vision API caption call.
type CloudCaption struct {
	Caption   string
	Model     string
	LatencyMS int
	CostUSD   float64
	TokensIn  int
	TokensOut int
}

// ModelHost exposes the four model capabilities the rest of the system
// consumes. Implementations must be safe for concurrent use.
type ModelHost interface {
	CaptionLocal(ctx context.Context, imageBytes []byte) (*LocalCaption, error)
	CaptionCloud(ctx context.Context, imageBytes []byte) (*CloudCaption, error)
	EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// CloudProvider is a concrete cloud vision adapter behind ModelHost.
type CloudProvider interface {
	Caption(ctx context.Context, imageBytes []byte) (*CloudCaption, error)
	Name() string
	Model() string
}

// Host combines a local model client and a cloud provider into a ModelHost.
type Host struct {
	local *LocalClient
	cloud CloudProvider
}

// NewHost creates a ModelHost from the given adapters.
func NewHost(local *LocalClient, cloud CloudProvider) *Host {
	return &Host{local: local, cloud: cloud}
}

// CaptionLocal invokes the local caption model.
func (h *Host) CaptionLocal(ctx context.Context, imageBytes []byte) (*LocalCaption, error) {
	return h.local.Caption(ctx, imageBytes)
}

// CaptionCloud invokes the configured cloud vision provider.
func (h *Host) CaptionCloud(ctx context.Context, imageBytes []byte) (*CloudCaption, error) {
	return h.cloud.Caption(ctx, imageBytes)
}

// EmbedImage computes the joint embedding for an image.
func (h *Host) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	return h.local.EmbedImage(ctx, imageBytes)
}

// EmbedText computes the joint embedding for a text query.
func (h *Host) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return h.local.EmbedText(ctx, text)
}

// CloudName returns the active cloud provider name.
func (h *Host) CloudName() string { return h.cloud.Name() }

// CloudModel returns the active cloud model identifier.
func (h *Host) CloudModel() string { return h.cloud.Model() }

// LocalConfidence is the length-penalised confidence proxy for local
// captions: 0.9 minus 0.005 per character beyond 15, clamped to [0,1].
// Any replacement must preserve the range and monotonicity.
func LocalConfidence(caption string) float64 {
	n := utf8.RuneCountInString(caption)
	over := n - 15
	if over < 0 {
		over = 0
	}
	conf := 0.9 - 0.005*float64(over)
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
