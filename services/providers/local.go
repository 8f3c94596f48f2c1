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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// LocalClient talks to the local caption/embedding model sidecar over HTTP.
//
// Description:
//
//	The sidecar hosts the in-process caption model and the joint image/text
//	embedding model. Caption confidence is computed client-side with the
//	length-penalty proxy; the sidecar only returns text.
//
// Thread Safety: Safe for concurrent use.
type LocalClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewLocalClient creates a client for the sidecar at baseURL.
func NewLocalClient(baseURL string, timeout time.Duration, logger *slog.Logger) *LocalClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type captionRequest struct {
	ImageB64 string `json:"image_b64"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

type embedImageRequest struct {
	ImageB64 string `json:"image_b64"`
}

type embedTextRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Caption asks the sidecar for a caption of the image.
func (c *LocalClient) Caption(ctx context.Context, imageBytes []byte) (*LocalCaption, error) {
	start := time.Now()
	var resp captionResponse
	err := c.post(ctx, "/caption", captionRequest{
		ImageB64: base64.StdEncoding.EncodeToString(imageBytes),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("local caption: %w", err)
	}
	if resp.Caption == "" {
		return nil, fmt.Errorf("local caption: empty caption from model host")
	}
	return &LocalCaption{
		Caption:    resp.Caption,
		Confidence: LocalConfidence(resp.Caption),
		LatencyMS:  int(time.Since(start).Milliseconds()),
	}, nil
}

// EmbedImage asks the sidecar for the image embedding.
func (c *LocalClient) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	var resp embedResponse
	err := c.post(ctx, "/embed/image", embedImageRequest{
		ImageB64: base64.StdEncoding.EncodeToString(imageBytes),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embed image: empty vector from model host")
	}
	return resp.Embedding, nil
}

// EmbedText asks the sidecar for the text embedding.
func (c *LocalClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	err := c.post(ctx, "/embed/text", embedTextRequest{Text: text}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embed text: empty vector from model host")
	}
	return resp.Embedding, nil
}

// post sends a JSON request to the sidecar and decodes the JSON response.
func (c *LocalClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("model host call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model host status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
