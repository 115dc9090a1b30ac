// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeKeepsHighestScore(t *testing.T) {
	results := []Result{
		{ID: "a", Score: 0.5, Metadata: map[string]interface{}{"type": "issue", "project_id": int64(1), "issue_iid": int64(7)}},
		{ID: "b", Score: 0.9, Metadata: map[string]interface{}{"type": "issue", "project_id": int64(1), "issue_iid": int64(7)}},
		{ID: "c", Score: 0.3, Metadata: map[string]interface{}{"type": "code", "project_id": int64(1), "file_path": "a.go", "start_line": 10}},
	}

	deduped := dedupe(results)
	assert.Len(t, deduped, 2)
	assert.Equal(t, "b", deduped[0].ID)
	assert.Equal(t, "c", deduped[1].ID)
}

func TestDedupeDistinctStartLinesKept(t *testing.T) {
	results := []Result{
		{ID: "a", Score: 0.5, Metadata: map[string]interface{}{"type": "code", "project_id": int64(1), "file_path": "a.go", "start_line": 10}},
		{ID: "b", Score: 0.4, Metadata: map[string]interface{}{"type": "code", "project_id": int64(1), "file_path": "a.go", "start_line": 40}},
	}
	assert.Len(t, dedupe(results), 2)
}

func TestReweightBoostsListedContentTypesInOrder(t *testing.T) {
	results := []Result{
		{Score: 1.0, Metadata: map[string]interface{}{"type": "code"}},
		{Score: 1.0, Metadata: map[string]interface{}{"type": "issue"}},
	}
	reweight(results, []string{"code", "issue"})

	assert.InDelta(t, 1.2, results[0].Score, 1e-9)
	assert.InDelta(t, 1.1, results[1].Score, 1e-9)
}

func TestReweightNoopWithoutPriority(t *testing.T) {
	results := []Result{{Score: 1.0, Metadata: map[string]interface{}{"type": "code"}}}
	reweight(results, nil)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestDedupKeyCommentUsesCommentID(t *testing.T) {
	res := Result{Metadata: map[string]interface{}{"type": "comment", "comment_id": int64(99)}}
	assert.Equal(t, "comment_99", dedupKey(res))
}
