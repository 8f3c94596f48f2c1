// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the durable per-image row in a hybrid
// vector+keyword index backed by Postgres with pgvector.
package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Visibility is the per-image access class.
type Visibility string

const (
	VisibilityPrivate     Visibility = "private"
	VisibilityPublic      Visibility = "public"
	VisibilityPublicAdmin Visibility = "public_admin"
)

// ParseVisibility validates a client-supplied visibility value.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPrivate, VisibilityPublic, VisibilityPublicAdmin:
		return Visibility(s), nil
	default:
		return "", fmt.Errorf("invalid visibility %q", s)
	}
}

// Scope is the caller-requested tenancy filter on reads.
type Scope string

const (
	ScopePublic Scope = "public"
	ScopeMine   Scope = "mine"
	ScopeAll    Scope = "all"
)

// ParseScope validates a client-supplied scope value.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopePublic, ScopeMine, ScopeAll:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("invalid scope %q", s)
	}
}

// ErrUnauthenticated marks a scope that requires a caller identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrNotFound marks a missing or soft-deleted image row.
var ErrNotFound = errors.New("image not found")

// ImageRow is the durable record for one ingested image.
type ImageRow struct {
	ID            string     `json:"id"`
	Caption       string     `json:"caption"`
	Confidence    float64    `json:"confidence"`
	Origin        string     `json:"origin"`
	OwnerID       string     `json:"owner_id"`
	Visibility    Visibility `json:"visibility"`
	FilePath      string     `json:"file_path"`
	Format        string     `json:"format"`
	SizeBytes     int        `json:"size_bytes"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	ThumbnailPath string     `json:"thumbnail_path"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// SearchHit is one scored row from a hybrid search.
type SearchHit struct {
	ID            string
	Caption       string
	Score         float64
	FilePath      string
	ThumbnailPath string
}

// scopeFilter renders the tenancy WHERE fragment for a scope. Placeholders
// start at $argOffset; returned args line up with them.
//
// Anonymous callers (empty callerID) may only use the public scope.
func scopeFilter(scope Scope, callerID string, argOffset int) (string, []any, error) {
	const visiblePublics = "visibility IN ('public', 'public_admin')"

	switch scope {
	case ScopePublic:
		return "deleted_at IS NULL AND " + visiblePublics, nil, nil
	case ScopeMine:
		if callerID == "" {
			return "", nil, ErrUnauthenticated
		}
		return fmt.Sprintf("deleted_at IS NULL AND owner_id = $%d", argOffset),
			[]any{callerID}, nil
	case ScopeAll:
		if callerID == "" {
			return "", nil, ErrUnauthenticated
		}
		return fmt.Sprintf("deleted_at IS NULL AND (owner_id = $%d OR %s)", argOffset, visiblePublics),
			[]any{callerID}, nil
	default:
		return "", nil, fmt.Errorf("invalid scope %q", scope)
	}
}

// vectorLiteral renders a pgvector input literal: [v1,v2,...].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
