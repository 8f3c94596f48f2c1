// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeFilter_Public(t *testing.T) {
	// Anonymous callers are fine for the public scope.
	filter, args, err := scopeFilter(ScopePublic, "", 1)
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Contains(t, filter, "deleted_at IS NULL")
	assert.Contains(t, filter, "visibility IN ('public', 'public_admin')")
	assert.NotContains(t, filter, "owner_id")
}

func TestScopeFilter_Mine(t *testing.T) {
	filter, args, err := scopeFilter(ScopeMine, "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, []any{"u1"}, args)
	assert.Contains(t, filter, "owner_id = $3")
	assert.Contains(t, filter, "deleted_at IS NULL")
	assert.NotContains(t, filter, "visibility")
}

func TestScopeFilter_All(t *testing.T) {
	filter, args, err := scopeFilter(ScopeAll, "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"u1"}, args)
	assert.Contains(t, filter, "owner_id = $2")
	assert.Contains(t, filter, "visibility IN ('public', 'public_admin')")
}

func TestScopeFilter_AnonymousRestricted(t *testing.T) {
	for _, scope := range []Scope{ScopeMine, ScopeAll} {
		_, _, err := scopeFilter(scope, "", 1)
		assert.ErrorIs(t, err, ErrUnauthenticated, "scope %s", scope)
	}
}

func TestScopeFilter_InvalidScope(t *testing.T) {
	_, _, err := scopeFilter(Scope("everything"), "u1", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestParseVisibility(t *testing.T) {
	for _, ok := range []string{"private", "public", "public_admin"} {
		v, err := ParseVisibility(ok)
		require.NoError(t, err)
		assert.Equal(t, Visibility(ok), v)
	}
	_, err := ParseVisibility("shared")
	assert.Error(t, err)
	_, err = ParseVisibility("")
	assert.Error(t, err)
}

func TestParseScope(t *testing.T) {
	for _, ok := range []string{"public", "mine", "all"} {
		s, err := ParseScope(ok)
		require.NoError(t, err)
		assert.Equal(t, Scope(ok), s)
	}
	_, err := ParseScope("team")
	assert.Error(t, err)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}
