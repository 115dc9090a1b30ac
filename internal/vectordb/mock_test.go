// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockVectorDB_SearchRanksByCosineSimilarity(t *testing.T) {
	m := NewMockVectorDB()
	ctx := context.Background()

	require.NoError(t, m.UpsertBatch(ctx, []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]interface{}{"project_id": int64(1)}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]interface{}{"project_id": int64(1)}},
		{ID: "c", Vector: []float32{0.9, 0.1}, Payload: map[string]interface{}{"project_id": int64(1)}},
	}))

	matches, err := m.Search(ctx, []float32{1, 0}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)
}

func TestMockVectorDB_SearchFiltersByProjectAndContentType(t *testing.T) {
	m := NewMockVectorDB()
	ctx := context.Background()

	require.NoError(t, m.UpsertBatch(ctx, []Point{
		{ID: "p1-readme", Vector: []float32{1, 0}, Payload: map[string]interface{}{"project_id": int64(1), "type": "readme"}},
		{ID: "p1-issue", Vector: []float32{1, 0}, Payload: map[string]interface{}{"project_id": int64(1), "type": "issue"}},
		{ID: "p2-readme", Vector: []float32{1, 0}, Payload: map[string]interface{}{"project_id": int64(2), "type": "readme"}},
	}))

	matches, err := m.Search(ctx, []float32{1, 0}, 10, Filter{ProjectID: 1, HasProject: true, ContentTypes: []string{"readme"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p1-readme", matches[0].ID)
}

func TestMockVectorDB_DeleteByProject(t *testing.T) {
	m := NewMockVectorDB()
	ctx := context.Background()

	require.NoError(t, m.UpsertBatch(ctx, []Point{
		{ID: "a", Vector: []float32{1}, Payload: map[string]interface{}{"project_id": int64(1)}},
		{ID: "b", Vector: []float32{1}, Payload: map[string]interface{}{"project_id": int64(2)}},
	}))

	require.NoError(t, m.DeleteByProject(ctx, 1))

	count, err := m.GetPointCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMockVectorDB_DeleteByIDs(t *testing.T) {
	m := NewMockVectorDB()
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "a", []float32{1}, nil))
	require.NoError(t, m.Upsert(ctx, "b", []float32{1}, nil))

	require.NoError(t, m.DeleteByIDs(ctx, []string{"a"}))

	count, err := m.GetPointCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
