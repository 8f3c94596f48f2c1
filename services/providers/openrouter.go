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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var openRouterTracer = otel.Tracer("imagesearch.providers.openrouter")

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

const captionPrompt = "Describe this image in one short sentence. Respond with the caption only."

// OpenRouterProvider captions images through the OpenRouter vision chat
// completions API.
//
// Thread Safety: Safe for concurrent use.
type OpenRouterProvider struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewOpenRouterProvider creates the adapter. The timeout is the hard
// per-call cap (default 30s).
func NewOpenRouterProvider(apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenRouterProvider {
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenRouterProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultOpenRouterBaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Name returns the provider name used in metrics labels.
func (p *OpenRouterProvider) Name() string { return "openrouter" }

// Model returns the configured model identifier.
func (p *OpenRouterProvider) Model() string { return p.model }

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Caption sends the image as a base64 data URI and returns the model's
// one-sentence caption with token-derived cost.
func (p *OpenRouterProvider) Caption(ctx context.Context, imageBytes []byte) (*CloudCaption, error) {
	ctx, span := openRouterTracer.Start(ctx, "providers.OpenRouter.Caption",
		trace.WithAttributes(
			attribute.String("model", p.model),
			attribute.Int("image_bytes", len(imageBytes)),
		),
	)
	defer span.End()

	if p.apiKey == "" {
		err := fmt.Errorf("openrouter: OPENROUTER_API_KEY is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing api key")
		return nil, err
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s",
		http.DetectContentType(imageBytes),
		base64.StdEncoding.EncodeToString(imageBytes))

	payload := chatRequest{
		Model: p.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: captionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
		MaxTokens: 100,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openrouter: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openrouter: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("openrouter: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream error")
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: response has no choices")
	}
	caption := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if caption == "" {
		return nil, fmt.Errorf("openrouter: empty caption")
	}

	cc := &CloudCaption{
		Caption:   caption,
		Model:     p.model,
		LatencyMS: int(time.Since(start).Milliseconds()),
		CostUSD:   EstimateCostUSD(p.model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
	}
	span.SetAttributes(
		attribute.Int("tokens_in", cc.TokensIn),
		attribute.Int("tokens_out", cc.TokensOut),
		attribute.Float64("cost_usd", cc.CostUSD),
	)
	return cc, nil
}
