// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhf/imageSearch/services/providers"
	"github.com/amirhf/imageSearch/services/store"
)

// fakeIndex records the query it received and returns canned hits.
type fakeIndex struct {
	hits     []store.SearchHit
	err      error
	gotK     int
	gotScope store.Scope
	gotText  string
	gotUser  string
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, queryText string, k int,
	scope store.Scope, callerID string) ([]store.SearchHit, error) {
	f.gotText = queryText
	f.gotK = k
	f.gotScope = scope
	f.gotUser = callerID
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestPlanner_DecoratesHits(t *testing.T) {
	idx := &fakeIndex{hits: []store.SearchHit{
		{ID: "abc123", Caption: "a dog on a beach", Score: 0.91, ThumbnailPath: "thumbnails/abc123.jpg"},
		{ID: "def456", Caption: "city skyline at dusk", Score: 0.72},
	}}
	p := NewPlanner(providers.NewMockHost(), idx, "https://img.example.com/", nil)

	results, err := p.Search(context.Background(), "dog beach", 5, store.ScopePublic, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://img.example.com/v1/images/abc123/download", results[0].DownloadURL)
	assert.Equal(t, "https://img.example.com/v1/images/abc123/thumbnail", results[0].ThumbnailURL)
	assert.Empty(t, results[1].ThumbnailURL)
	assert.Equal(t, "dog beach", idx.gotText)
	assert.Equal(t, 5, idx.gotK)
	assert.Equal(t, store.ScopePublic, idx.gotScope)
}

func TestPlanner_EmptyBaseURLYieldsMountedPaths(t *testing.T) {
	// Without a configured origin the links must still carry the /v1 mount
	// prefix so they resolve against the serving gateway itself.
	idx := &fakeIndex{hits: []store.SearchHit{{ID: "abc123", Caption: "a dog", Score: 0.9}}}
	p := NewPlanner(providers.NewMockHost(), idx, "", nil)

	results, err := p.Search(context.Background(), "dog", 5, store.ScopePublic, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/v1/images/abc123/download", results[0].DownloadURL)
}

func TestPlanner_KDefaultsAndClamps(t *testing.T) {
	idx := &fakeIndex{}
	p := NewPlanner(providers.NewMockHost(), idx, "", nil)

	_, err := p.Search(context.Background(), "cats", 0, store.ScopePublic, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultK, idx.gotK)

	_, err = p.Search(context.Background(), "cats", 5000, store.ScopePublic, "")
	require.NoError(t, err)
	assert.Equal(t, MaxK, idx.gotK)
}

func TestPlanner_EmptyQueryRejected(t *testing.T) {
	p := NewPlanner(providers.NewMockHost(), &fakeIndex{}, "", nil)
	_, err := p.Search(context.Background(), "   ", 10, store.ScopePublic, "")
	assert.Error(t, err)
}

func TestPlanner_IndexErrorPropagates(t *testing.T) {
	idx := &fakeIndex{err: store.ErrUnauthenticated}
	p := NewPlanner(providers.NewMockHost(), idx, "", nil)

	_, err := p.Search(context.Background(), "sunset", 10, store.ScopeMine, "")
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
}

func TestPlanner_EmbedErrorPropagates(t *testing.T) {
	host := providers.NewMockHost()
	host.EmbedErr = errors.New("model not loaded")
	p := NewPlanner(host, &fakeIndex{}, "", nil)

	_, err := p.Search(context.Background(), "sunset", 10, store.ScopePublic, "")
	assert.ErrorContains(t, err, "model not loaded")
}

func TestPlanner_CallerIDForwarded(t *testing.T) {
	idx := &fakeIndex{}
	p := NewPlanner(providers.NewMockHost(), idx, "", nil)

	_, err := p.Search(context.Background(), "my photos", 10, store.ScopeMine, "user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", idx.gotUser)
}
