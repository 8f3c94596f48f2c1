// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"strings"
	"unicode"
)

// ComplexityLevel buckets a text hint by how hard it is to caption well.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// Complexity is the classifier verdict for one hint.
type Complexity struct {
	Level ComplexityLevel
	Score float64
}

// abstractIndicators are tokens whose presence marks a hint as describing
// mood or style rather than concrete objects. Tuning parameter; closed set.
var abstractIndicators = map[string]bool{
	"atmosphere": true, "mood": true, "feeling": true, "reminiscent": true,
	"style": true, "aesthetic": true, "vibe": true, "essence": true,
	"context": true, "emotional": true, "abstract": true, "surreal": true,
}

// ComplexityClassifier classifies a text hint as simple, moderate, or
// complex. Pure and deterministic; no state.
//
// Thread Safety: Safe for concurrent use.
type ComplexityClassifier struct{}

// NewComplexityClassifier creates a classifier.
func NewComplexityClassifier() *ComplexityClassifier {
	return &ComplexityClassifier{}
}

// Classify evaluates the rules in order, first match wins:
//
//  1. Empty or whitespace-only text is simple with score 0.
//  2. Any abstract-indicator token makes the hint complex with score 0.8.
//  3. Five tokens or fewer is simple with score 0.2.
//  4. Everything else is moderate with score 0.5.
func (c *ComplexityClassifier) Classify(text string) Complexity {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Complexity{Level: ComplexitySimple, Score: 0.0}
	}
	for _, tok := range tokens {
		if abstractIndicators[tok] {
			return Complexity{Level: ComplexityComplex, Score: 0.8}
		}
	}
	if len(tokens) <= 5 {
		return Complexity{Level: ComplexitySimple, Score: 0.2}
	}
	return Complexity{Level: ComplexityModerate, Score: 0.5}
}

// tokenize lowercases and splits on whitespace, trimming punctuation from
// token edges so "mood," still matches the indicator set.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
