// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package planner turns a natural-language query into a SearchPlan the
// retriever can execute: an LLM extracts structured filters, which are
// then mapped onto a retrieval strategy and a list of sub-queries.
package planner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gitlab-rag/indexer/internal/ai"
)

// Strategy selects how the retriever fans out a plan's sub-queries.
type Strategy string

const (
	StrategyParallel    Strategy = "PARALLEL"
	StrategyAPIFirst    Strategy = "API_FIRST"
	StrategyVectorFirst Strategy = "VECTOR_FIRST"
	StrategyAPIOnly     Strategy = "API_ONLY"
	StrategyVectorOnly  Strategy = "VECTOR_ONLY"
	StrategyCodeDeep    Strategy = "CODE_DEEP"
)

// QueryType identifies which collaborator a SubQuery targets.
type QueryType string

const (
	QueryTypeVector       QueryType = "vector"
	QueryTypeAPI          QueryType = "api"
	QueryTypeCodeAnalysis QueryType = "code_analysis"
)

// SubQuery is one leg of a plan's fan-out.
type SubQuery struct {
	Type         QueryType
	Params       map[string]interface{}
	Priority     int
	ContentTypes []string
}

// Plan directs the retriever's execution.
type Plan struct {
	OriginalQuery   string
	Strategy        Strategy
	SubQueries      []SubQuery
	ContentPriority []string
}

// codeKeywords trigger CODE_DEEP strategy when content_types includes
// "code" and the query contains one of these lexically.
var codeKeywords = map[string]bool{
	"code": true, "function": true, "class": true, "method": true,
	"implementation": true, "file": true, "module": true, "import": true,
	"api": true, "endpoint": true, "handler": true, "component": true,
	"hook": true, "variable": true, "constant": true,
}

const filterExtractionPrompt = `You are a query analyzer for a GitLab search system. Extract structured filters from the user's natural language query.

Return a JSON object with these optional fields:
- "labels": list of label names mentioned (e.g., ["bug", "feature"])
- "state": issue/MR state ("opened", "closed", "merged", "all")
- "search_terms": key search terms for text matching
- "date_filter": object with "after" and/or "before" dates (ISO format)
- "content_types": list of content types to search ("issue", "merge_request", "code", "comment")
- "issue_iid": specific issue number if mentioned
- "mr_iid": specific MR number if mentioned
- "needs_api_query": boolean - true if query requires fresh data from GitLab API

Examples:
Query: "Issues labeled 'bug' created last month"
Output: {"labels": ["bug"], "date_filter": {"after": "2024-01-01"}, "content_types": ["issue"]}

Query: "What is issue #123 about?"
Output: {"issue_iid": 123, "content_types": ["issue"], "needs_api_query": true}

Query: "Code that handles authentication"
Output: {"search_terms": "authentication", "content_types": ["code"]}

Query: "Recent merge requests by John"
Output: {"content_types": ["merge_request"], "search_terms": "John"}

Now analyze this query and return only the JSON object:
Query: "%s"`

type dateFilter struct {
	After  string `json:"after"`
	Before string `json:"before"`
}

type extractedFilters struct {
	Labels        []string    `json:"labels"`
	State         string      `json:"state"`
	SearchTerms   string      `json:"search_terms"`
	DateFilter    *dateFilter `json:"date_filter"`
	ContentTypes  []string    `json:"content_types"`
	IssueIID      *int64      `json:"issue_iid"`
	MRIID         *int64      `json:"mr_iid"`
	NeedsAPIQuery bool        `json:"needs_api_query"`
}

// Planner extracts filters with an LLM and resolves them into a Plan.
type Planner struct {
	ai *ai.Client
}

// New builds a Planner.
func New(client *ai.Client) *Planner {
	return &Planner{ai: client}
}

// BuildPlan extracts filters from query and resolves them into a
// SearchPlan. LLM failures and unparseable output degrade to an
// unfiltered vector-only plan rather than propagating an error.
func (p *Planner) BuildPlan(ctx context.Context, query string) *Plan {
	filters := p.extractFilters(ctx, query)
	return resolvePlan(query, filters)
}

func (p *Planner) extractFilters(ctx context.Context, query string) extractedFilters {
	if p.ai == nil {
		return extractedFilters{}
	}

	result, err := p.ai.Complete(ctx, []ai.Message{
		{Role: "user", Content: promptFor(query)},
	}, ai.CompleteOptions{MaxTokens: 500, Temperature: 0})
	if err != nil {
		return extractedFilters{}
	}

	var filters extractedFilters
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &filters); err != nil {
		return extractedFilters{}
	}
	return filters
}

func promptFor(query string) string {
	return strings.Replace(filterExtractionPrompt, "%s", query, 1)
}

// extractJSON strips a ```json fenced block or a bare ``` fence around
// the model's reply, matching the loose contract LLMs tend to follow
// despite being told to return only JSON.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx != -1 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(content, "```"); idx != -1 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return content
}

// resolvePlan maps extracted filters onto a strategy and sub-queries
// per the planner's mapping rules.
func resolvePlan(query string, f extractedFilters) *Plan {
	plan := &Plan{OriginalQuery: query, ContentPriority: f.ContentTypes}

	if f.IssueIID != nil || f.MRIID != nil {
		plan.Strategy = StrategyAPIFirst
		if f.IssueIID != nil {
			plan.SubQueries = append(plan.SubQueries, SubQuery{
				Type:     QueryTypeAPI,
				Params:   map[string]interface{}{"issue_iid": *f.IssueIID},
				Priority: 0,
			})
		}
		if f.MRIID != nil {
			plan.SubQueries = append(plan.SubQueries, SubQuery{
				Type:     QueryTypeAPI,
				Params:   map[string]interface{}{"mr_iid": *f.MRIID},
				Priority: 0,
			})
		}
		plan.SubQueries = append(plan.SubQueries, vectorSubQuery(query, f, 1))
		return plan
	}

	if containsContentType(f.ContentTypes, "code") && hasCodeKeyword(query) {
		plan.Strategy = StrategyCodeDeep
		plan.SubQueries = append(plan.SubQueries, vectorSubQuery(query, f, 0))
		return plan
	}

	plan.Strategy = StrategyParallel
	plan.SubQueries = append(plan.SubQueries, vectorSubQuery(query, f, 0))
	if f.NeedsAPIQuery && (len(f.Labels) > 0 || f.State != "" || f.SearchTerms != "" || f.DateFilter != nil) {
		plan.SubQueries = append(plan.SubQueries, SubQuery{
			Type: QueryTypeAPI,
			Params: map[string]interface{}{
				"labels": f.Labels,
				"state":  defaultState(f.State),
			},
			Priority:     1,
			ContentTypes: f.ContentTypes,
		})
	}
	return plan
}

func vectorSubQuery(query string, f extractedFilters, priority int) SubQuery {
	return SubQuery{
		Type: QueryTypeVector,
		Params: map[string]interface{}{
			"query":        query,
			"search_terms": f.SearchTerms,
		},
		Priority:     priority,
		ContentTypes: f.ContentTypes,
	}
}

func defaultState(state string) string {
	if state == "" {
		return "all"
	}
	return state
}

func containsContentType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func hasCodeKeyword(query string) bool {
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:'\"()[]{}")
		if codeKeywords[word] {
			return true
		}
	}
	return false
}
