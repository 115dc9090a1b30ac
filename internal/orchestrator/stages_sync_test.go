// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitlab-rag/indexer/internal/manifest"
)

func TestMergePointIDsDeduplicates(t *testing.T) {
	current := []string{"a", "b"}
	fresh := []string{"b", "c"}
	assert.Equal(t, []string{"a", "b", "c"}, mergePointIDs(current, fresh))
}

func TestMergePointIDsEmptyCurrent(t *testing.T) {
	assert.Equal(t, []string{"x", "y"}, mergePointIDs(nil, []string{"x", "y"}))
}

func TestExistingPointIDsNil(t *testing.T) {
	assert.Nil(t, existingPointIDs(nil))
}

func TestExistingPointIDs(t *testing.T) {
	item := &manifest.IndexedItem{QdrantPointIDs: []string{"p1", "p2"}}
	assert.Equal(t, []string{"p1", "p2"}, existingPointIDs(item))
}

func TestContentHashPrefixStableAndDistinct(t *testing.T) {
	h1 := contentHashPrefix("# Readme\nhello")
	h2 := contentHashPrefix("# Readme\nhello")
	h3 := contentHashPrefix("# Readme\ngoodbye")

	assert.Len(t, h1, 8)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
