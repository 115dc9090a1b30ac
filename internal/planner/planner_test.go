// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePlanIssueIIDIsAPIFirst(t *testing.T) {
	iid := int64(42)
	plan := resolvePlan("What is issue #42 about?", extractedFilters{IssueIID: &iid, NeedsAPIQuery: true, ContentTypes: []string{"issue"}})

	assert.Equal(t, StrategyAPIFirst, plan.Strategy)
	assert.Len(t, plan.SubQueries, 2)
	assert.Equal(t, QueryTypeAPI, plan.SubQueries[0].Type)
	assert.Equal(t, int64(42), plan.SubQueries[0].Params["issue_iid"])
	assert.Equal(t, QueryTypeVector, plan.SubQueries[1].Type)
}

func TestResolvePlanCodeKeywordTriggersCodeDeep(t *testing.T) {
	plan := resolvePlan("Code that handles authentication", extractedFilters{ContentTypes: []string{"code"}, SearchTerms: "authentication"})
	assert.Equal(t, StrategyCodeDeep, plan.Strategy)
}

func TestResolvePlanCodeContentTypeWithoutKeywordIsParallel(t *testing.T) {
	plan := resolvePlan("authentication", extractedFilters{ContentTypes: []string{"code"}})
	assert.Equal(t, StrategyParallel, plan.Strategy)
}

func TestResolvePlanDefaultIsParallelVectorOnly(t *testing.T) {
	plan := resolvePlan("what's new around here", extractedFilters{})
	assert.Equal(t, StrategyParallel, plan.Strategy)
	assert.Len(t, plan.SubQueries, 1)
	assert.Equal(t, QueryTypeVector, plan.SubQueries[0].Type)
}

func TestResolvePlanLabelsAddAPISubQuery(t *testing.T) {
	plan := resolvePlan("bugs labeled urgent", extractedFilters{
		Labels: []string{"bug"}, NeedsAPIQuery: true, ContentTypes: []string{"issue"},
	})
	assert.Equal(t, StrategyParallel, plan.Strategy)
	assert.Len(t, plan.SubQueries, 2)
	assert.Equal(t, QueryTypeAPI, plan.SubQueries[1].Type)
}

func TestHasCodeKeyword(t *testing.T) {
	assert.True(t, hasCodeKeyword("Where is the login handler implemented?"))
	assert.False(t, hasCodeKeyword("What happened last week?"))
}

func TestExtractJSONStripsFence(t *testing.T) {
	raw := "```json\n{\"state\": \"opened\"}\n```"
	assert.Equal(t, `{"state": "opened"}`, extractJSON(raw))
}

func TestExtractJSONBareFence(t *testing.T) {
	raw := "```\n{\"state\": \"opened\"}\n```"
	assert.Equal(t, `{"state": "opened"}`, extractJSON(raw))
}

func TestExtractJSONNoFence(t *testing.T) {
	raw := `{"state": "opened"}`
	assert.Equal(t, raw, extractJSON(raw))
}
