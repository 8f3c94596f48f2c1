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
	"sort"
	"strings"
)

// ModelPricing holds USD cost per million tokens for one model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultPricing covers the vision models the cloud adapter is expected to
// run against. Prices drift; treat these as estimates for budgeting, not
// billing.
var defaultPricing = map[string]ModelPricing{
	"openai/gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"openai/gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"anthropic/claude-3-5-haiku":        {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"anthropic/claude-sonnet-4":         {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"google/gemini-2.0-flash-001":       {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"meta-llama/llama-3.2-11b-vision":   {InputPerMillion: 0.055, OutputPerMillion: 0.055},
	"qwen/qwen-2.5-vl-7b-instruct":      {InputPerMillion: 0.20, OutputPerMillion: 0.20},
	"mistralai/pixtral-12b":             {InputPerMillion: 0.10, OutputPerMillion: 0.10},
}

// fallbackPricing is used for unknown models: a deliberately conservative
// (expensive) estimate so budget enforcement errs on the safe side.
var fallbackPricing = ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}

// pricingPrefixes holds the table keys longest-first, so prefix lookup is
// deterministic and "openai/gpt-4o-mini-2024-07-18" resolves to
// "openai/gpt-4o-mini" rather than "openai/gpt-4o".
var pricingPrefixes = func() []string {
	keys := make([]string, 0, len(defaultPricing))
	for k := range defaultPricing {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// lookupPricing finds pricing for a model by exact match, then by
// longest-prefix match.
func lookupPricing(model string) ModelPricing {
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	for _, prefix := range pricingPrefixes {
		if strings.HasPrefix(model, prefix) {
			return defaultPricing[prefix]
		}
	}
	return fallbackPricing
}

// EstimateCostUSD converts token usage into a USD cost for the model.
func EstimateCostUSD(model string, tokensIn, tokensOut int) float64 {
	p := lookupPricing(model)
	return float64(tokensIn)/1e6*p.InputPerMillion + float64(tokensOut)/1e6*p.OutputPerMillion
}
