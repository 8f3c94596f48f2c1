// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// cachedump inspects the semantic caption cache.
//
// The cache holds cloud caption results keyed by the full SHA-256 of the
// image bytes, written through on cloud-tier success only. This tool scans
// the caption keyspace read-only and prints a human-readable summary:
// hashes, TTL remaining, caption text, origin, confidence, and recorded
// cost.
//
// Usage:
//
//	cachedump [--redis redis://localhost:6379/0] [--prefix test:]
//
// If --redis is not given, reads REDIS_URL from the environment. --prefix
// must match the CACHE_KEY_PREFIX the services run with; when unset the
// default caption keyspace is scanned.
//
// Exit codes:
//
//	0 — success (including "empty cache" which prints a message and exits 0)
//	1 — error connecting to or reading redis
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amirhf/imageSearch/services/routing"
)

// captionKeyPrefix must match cache.go exactly.
const captionKeyPrefix = "caption:hash:"

func main() {
	redisFlag := flag.String("redis", "", "Redis URL (overrides REDIS_URL env var)")
	prefixFlag := flag.String("prefix", captionKeyPrefix, "Cache key prefix the services run with (CACHE_KEY_PREFIX)")
	limitFlag := flag.Int("limit", 100, "Maximum entries to print")
	flag.Parse()

	redisURL := *redisFlag
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		fatalf("parse redis url %s: %v", redisURL, err)
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		fatalf("connect to %s: %v", redisURL, err)
	}
	fmt.Printf("Cache: %s\n", redisURL)

	prefix := *prefixFlag
	if prefix == "" {
		prefix = captionKeyPrefix
	}
	pattern := prefix + "*"
	var keys []string
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= *limitFlag {
			break
		}
	}
	if err := iter.Err(); err != nil {
		fatalf("scan %s: %v", pattern, err)
	}

	if len(keys) == 0 {
		fmt.Println("\nNo cached captions found.")
		fmt.Println("The cache fills only on cloud-tier successes; edge and local")
		fmt.Println("results are never written through.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d cached caption%s:\n", len(keys), plural(len(keys), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for i, key := range keys {
		hash := strings.TrimPrefix(key, prefix)

		fmt.Printf("\n[%d] Hash: %s\n", i+1, hash)

		ttl, err := client.TTL(ctx, key).Result()
		switch {
		case err != nil:
			fmt.Printf("    TTL:        read error: %v\n", err)
		case ttl < 0:
			fmt.Printf("    TTL:        no expiry set\n")
		default:
			fmt.Printf("    TTL:        %s remaining\n", ttl.Round(time.Second))
		}

		raw, err := client.Get(ctx, key).Bytes()
		if err != nil {
			fmt.Printf("    READ ERROR: %v\n", err)
			continue
		}
		fmt.Printf("    Raw size:   %s\n", formatBytes(len(raw)))

		var rec routing.CaptionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			fmt.Printf("    DECODE ERROR: %v\n", err)
			continue
		}

		fmt.Printf("    Caption:    %s\n", truncate(rec.Caption, 70))
		fmt.Printf("    Origin:     %s\n", rec.Origin)
		fmt.Printf("    Confidence: %.2f\n", rec.Confidence)
		if rec.CostUSD > 0 {
			fmt.Printf("    Cost:       $%.6f (%d in / %d out tokens)\n",
				rec.CostUSD, rec.TokensIn, rec.TokensOut)
		}
		if rec.LatencyMS > 0 {
			fmt.Printf("    Latency:    %dms\n", rec.LatencyMS)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s shown (limit %d), pattern: %s\n",
		len(keys), plural(len(keys), "y", "ies"), *limitFlag, pattern)
}

// truncate shortens s for single-line display.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cachedump: "+format+"\n", args...)
	os.Exit(1)
}
