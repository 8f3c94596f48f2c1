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

import "testing"

func TestComplexityClassifier(t *testing.T) {
	c := NewComplexityClassifier()

	tests := []struct {
		name  string
		text  string
		level ComplexityLevel
		score float64
	}{
		{"empty", "", ComplexitySimple, 0.0},
		{"whitespace only", "   \t  ", ComplexitySimple, 0.0},
		{"short concrete", "a red shoe", ComplexitySimple, 0.2},
		{"five tokens", "a red shoe on grass", ComplexitySimple, 0.2},
		{"six tokens", "a red shoe on green grass", ComplexityModerate, 0.5},
		{"abstract indicator", "a melancholic cyberpunk atmosphere", ComplexityComplex, 0.8},
		{"abstract beats token count", "moody vibe", ComplexityComplex, 0.8},
		{"abstract with punctuation", "what a mood, honestly", ComplexityComplex, 0.8},
		{"uppercase indicator", "SURREAL landscape photo", ComplexityComplex, 0.8},
		{"long concrete", "two dogs running along the beach at sunset chasing a ball", ComplexityModerate, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			if got.Level != tt.level {
				t.Errorf("Classify(%q).Level = %s, want %s", tt.text, got.Level, tt.level)
			}
			if got.Score != tt.score {
				t.Errorf("Classify(%q).Score = %v, want %v", tt.text, got.Score, tt.score)
			}
		})
	}
}

func TestComplexityClassifier_Deterministic(t *testing.T) {
	c := NewComplexityClassifier()
	first := c.Classify("a quiet street with old houses and trees")
	for i := 0; i < 10; i++ {
		if got := c.Classify("a quiet street with old houses and trees"); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, got)
		}
	}
}
