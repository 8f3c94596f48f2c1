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
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLocalConfidence(t *testing.T) {
	tests := []struct {
		caption string
		want    float64
	}{
		{"a red shoe", 0.9},       // under 15 chars, no penalty
		{"123456789012345", 0.9},  // exactly 15
		{"12345678901234567", 0.89}, // 2 over
		{"", 0.9},
	}
	for _, tt := range tests {
		got := LocalConfidence(tt.caption)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("LocalConfidence(%q) = %v, want %v", tt.caption, got, tt.want)
		}
	}

	// A pathologically long caption clamps at 0, never negative.
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	if got := LocalConfidence(string(long)); got != 0 {
		t.Errorf("LocalConfidence(long) = %v, want 0", got)
	}
}

func TestEstimateCostUSD(t *testing.T) {
	// gpt-4o-mini: 0.15 in / 0.60 out per million.
	got := EstimateCostUSD("openai/gpt-4o-mini", 1_000_000, 1_000_000)
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("cost = %v, want 0.75", got)
	}
}

func TestLookupPricing_PrefixMatch(t *testing.T) {
	dated := lookupPricing("openai/gpt-4o-mini-2024-07-18")
	base := lookupPricing("openai/gpt-4o-mini")
	if dated != base {
		t.Errorf("dated model should resolve to base pricing: %+v vs %+v", dated, base)
	}
}

func TestLookupPricing_LongestPrefixWins(t *testing.T) {
	// "openai/gpt-4o" is itself a prefix of the -mini ids, so the lookup
	// must prefer the longer key on every call, not whichever map order
	// happens to yield.
	want := defaultPricing["openai/gpt-4o-mini"]
	for i := 0; i < 1000; i++ {
		if got := lookupPricing("openai/gpt-4o-mini-2024-07-18"); got != want {
			t.Fatalf("iteration %d: pricing = %+v, want %+v", i, got, want)
		}
	}
}

func TestLookupPricing_UnknownModelIsConservative(t *testing.T) {
	p := lookupPricing("somebody/brand-new-model")
	if p != fallbackPricing {
		t.Errorf("unknown model pricing = %+v, want fallback", p)
	}
}

func TestMockHost_Deterministic(t *testing.T) {
	m := NewMockHost()
	ctx := context.Background()
	img := []byte("stable image bytes")

	first, err := m.CaptionLocal(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := m.CaptionLocal(ctx, img)
		if err != nil {
			t.Fatal(err)
		}
		if again.Caption != first.Caption {
			t.Fatalf("caption changed between calls: %q vs %q", first.Caption, again.Caption)
		}
	}

	v1, err := m.EmbedImage(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := m.EmbedImage(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	if len(v1) != mockEmbeddingDim {
		t.Fatalf("embedding dim = %d, want %d", len(v1), mockEmbeddingDim)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatal("embedding is not deterministic")
		}
	}
}

func TestMockHost_EmbeddingIsUnitNorm(t *testing.T) {
	m := NewMockHost()
	vec, err := m.EmbedText(context.Background(), "a red shoe")
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-3 {
		t.Errorf("norm = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestLocalClient_Caption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/caption" {
			t.Errorf("path = %s, want /caption", r.URL.Path)
		}
		var req captionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ImageB64 == "" {
			t.Error("image_b64 should be set")
		}
		_ = json.NewEncoder(w).Encode(captionResponse{Caption: "a wooden chair"})
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL, 5*time.Second, nil)
	got, err := c.Caption(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Caption != "a wooden chair" {
		t.Errorf("caption = %q", got.Caption)
	}
	if got.Confidence != LocalConfidence("a wooden chair") {
		t.Errorf("confidence = %v", got.Confidence)
	}
}

func TestLocalClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewLocalClient(srv.URL, 5*time.Second, nil)
	if _, err := c.Caption(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error from 503 upstream")
	}
}

func TestOpenRouterProvider_MissingKey(t *testing.T) {
	p := NewOpenRouterProvider("", "openai/gpt-4o-mini", time.Second, nil)
	if _, err := p.Caption(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestOpenRouterProvider_Caption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("unexpected payload shape: %+v", req)
		}
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"  a red shoe on gravel \n"}}],
			"usage":{"prompt_tokens":850,"completion_tokens":12}
		}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("test-key", "openai/gpt-4o-mini", 5*time.Second, nil)
	p.baseURL = srv.URL

	got, err := p.Caption(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Caption != "a red shoe on gravel" {
		t.Errorf("caption = %q", got.Caption)
	}
	if got.TokensIn != 850 || got.TokensOut != 12 {
		t.Errorf("tokens = %d/%d", got.TokensIn, got.TokensOut)
	}
	want := EstimateCostUSD("openai/gpt-4o-mini", 850, 12)
	if got.CostUSD != want {
		t.Errorf("cost = %v, want %v", got.CostUSD, want)
	}
}
