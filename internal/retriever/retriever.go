// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package retriever executes a planner.Plan against the vector store
// and the live GitLab API, then merges, re-weights, deduplicates and
// ranks the combined results.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/gitlab-rag/indexer/internal/embeddings"
	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/logger"
	"github.com/gitlab-rag/indexer/internal/planner"
	"github.com/gitlab-rag/indexer/internal/vectordb"
)

// maxAPIProjects bounds how many project ids an API sub-query fans out
// across, matching the pacing budget of a single chat turn.
const maxAPIProjects = 3

// Result is one retrieved record, source-agnostic.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]interface{}
}

// Retriever combines vector search and GitLab API lookups.
type Retriever struct {
	vdb          vectordb.VectorDB
	embedder     embeddings.Embedder
	gitlabClient *gitlab.Client
	log          *logger.Logger
	topK         int
}

// New builds a Retriever. topK is the default result count when a
// caller doesn't override it.
func New(vdb vectordb.VectorDB, embedder embeddings.Embedder, client *gitlab.Client, log *logger.Logger, topK int) *Retriever {
	if topK <= 0 {
		topK = 10
	}
	return &Retriever{vdb: vdb, embedder: embedder, gitlabClient: client, log: log, topK: topK}
}

// Retrieve executes plan against projectIDs (gitlab ids in scope) and
// returns the deduplicated, ranked result set truncated to topK (0
// meaning use the retriever's default).
func (r *Retriever) Retrieve(ctx context.Context, plan *planner.Plan, projectIDs []int64, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = r.topK
	}

	var results []Result
	switch plan.Strategy {
	case planner.StrategyAPIFirst:
		results = r.runAPI(ctx, plan, projectIDs)
		if len(results) < topK {
			results = append(results, r.runVector(ctx, plan, projectIDs)...)
		}
	case planner.StrategyVectorFirst:
		results = r.runVector(ctx, plan, projectIDs)
		if len(results) < topK/2 {
			results = append(results, r.runAPI(ctx, plan, projectIDs)...)
		}
	case planner.StrategyAPIOnly:
		results = r.runAPI(ctx, plan, projectIDs)
	case planner.StrategyVectorOnly:
		results = r.runVector(ctx, plan, projectIDs)
	case planner.StrategyParallel, planner.StrategyCodeDeep:
		results = r.runParallel(ctx, plan, projectIDs)
	default:
		results = r.runVector(ctx, plan, projectIDs)
	}

	reweight(results, plan.ContentPriority)
	ranked := dedupe(results)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// runParallel fans every non-code_analysis sub-query out concurrently
// and gathers with failure isolation: one sub-query erroring never
// drops the others.
func (r *Retriever) runParallel(ctx context.Context, plan *planner.Plan, projectIDs []int64) []Result {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []Result

	for _, sq := range plan.SubQueries {
		if sq.Type == planner.QueryTypeCodeAnalysis {
			continue
		}
		sq := sq
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.runSubQuery(ctx, sq, projectIDs)
			mu.Lock()
			all = append(all, res...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return all
}

func (r *Retriever) runVector(ctx context.Context, plan *planner.Plan, projectIDs []int64) []Result {
	var all []Result
	for _, sq := range plan.SubQueries {
		if sq.Type != planner.QueryTypeVector {
			continue
		}
		all = append(all, r.runSubQuery(ctx, sq, projectIDs)...)
	}
	return all
}

func (r *Retriever) runAPI(ctx context.Context, plan *planner.Plan, projectIDs []int64) []Result {
	var all []Result
	for _, sq := range plan.SubQueries {
		if sq.Type != planner.QueryTypeAPI {
			continue
		}
		all = append(all, r.runSubQuery(ctx, sq, projectIDs)...)
	}
	return all
}

func (r *Retriever) runSubQuery(ctx context.Context, sq planner.SubQuery, projectIDs []int64) []Result {
	switch sq.Type {
	case planner.QueryTypeVector:
		return r.vectorSearch(ctx, sq, projectIDs)
	case planner.QueryTypeAPI:
		return r.apiSearch(ctx, sq, projectIDs)
	default:
		return nil
	}
}

func (r *Retriever) vectorSearch(ctx context.Context, sq planner.SubQuery, projectIDs []int64) []Result {
	query, _ := sq.Params["query"].(string)
	if query == "" {
		return nil
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logf("vector search: failed to embed query: %v", err)
		return nil
	}

	var matches []vectordb.Match
	if len(projectIDs) == 0 {
		m, err := r.vdb.Search(ctx, vector, r.topK, vectordb.Filter{ContentTypes: sq.ContentTypes})
		if err != nil {
			r.logf("vector search failed: %v", err)
			return nil
		}
		matches = m
	} else {
		for _, pid := range projectIDs {
			m, err := r.vdb.Search(ctx, vector, r.topK, vectordb.Filter{
				ProjectID: pid, HasProject: true, ContentTypes: sq.ContentTypes,
			})
			if err != nil {
				r.logf("vector search: project %d failed: %v", pid, err)
				continue
			}
			matches = append(matches, m...)
		}
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		content, _ := m.Payload["content"].(string)
		results = append(results, Result{ID: m.ID, Score: float64(m.Score), Content: content, Metadata: m.Payload})
	}
	return results
}

func (r *Retriever) apiSearch(ctx context.Context, sq planner.SubQuery, projectIDs []int64) []Result {
	if len(projectIDs) == 0 {
		return nil
	}
	scoped := projectIDs
	if len(scoped) > maxAPIProjects {
		scoped = scoped[:maxAPIProjects]
	}

	var all []Result
	for _, pid := range scoped {
		if iid, ok := sq.Params["issue_iid"]; ok {
			if issue, err := r.gitlabClient.GetIssue(ctx, pid, toInt64(iid)); err == nil {
				all = append(all, formatIssue(*issue, pid))
			} else {
				r.logf("api search: project %d issue lookup failed: %v", pid, err)
			}
		}
		if iid, ok := sq.Params["mr_iid"]; ok {
			if mr, err := r.gitlabClient.GetMergeRequest(ctx, pid, toInt64(iid)); err == nil {
				all = append(all, formatMergeRequest(*mr, pid))
			} else {
				r.logf("api search: project %d mr lookup failed: %v", pid, err)
			}
		}
		if labels, ok := sq.Params["labels"].([]string); ok && len(labels) > 0 {
			state, _ := sq.Params["state"].(string)
			issues, err := r.gitlabClient.ListIssues(ctx, pid, gitlab.IssueListOptions{State: state, Labels: labels})
			if err != nil {
				r.logf("api search: project %d label search failed: %v", pid, err)
				continue
			}
			for i, issue := range issues {
				if i >= 5 {
					break
				}
				all = append(all, formatIssue(issue, pid))
			}
		}
	}
	return all
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func formatIssue(issue gitlab.Issue, projectID int64) Result {
	content := fmt.Sprintf("Issue #%d: %s\n\n%s", issue.IID, issue.Title, issue.Description)
	return Result{
		ID:    fmt.Sprintf("api_issue_%d_%d", projectID, issue.ID),
		Score: 1.0,
		Content: content,
		Metadata: map[string]interface{}{
			"type":       "issue",
			"project_id": projectID,
			"issue_id":   issue.ID,
			"issue_iid":  issue.IID,
			"title":      issue.Title,
			"state":      issue.State,
			"labels":     issue.Labels,
			"web_url":    issue.WebURL,
			"source":     "api",
		},
	}
}

func formatMergeRequest(mr gitlab.MergeRequest, projectID int64) Result {
	content := fmt.Sprintf("Merge Request !%d: %s\n\n%s", mr.IID, mr.Title, mr.Description)
	return Result{
		ID:    fmt.Sprintf("api_mr_%d_%d", projectID, mr.ID),
		Score: 1.0,
		Content: content,
		Metadata: map[string]interface{}{
			"type":       "merge_request",
			"project_id": projectID,
			"mr_id":      mr.ID,
			"mr_iid":     mr.IID,
			"title":      mr.Title,
			"state":      mr.State,
			"labels":     mr.Labels,
			"web_url":    mr.WebURL,
			"source":     "api",
		},
	}
}

// reweight boosts each result whose metadata type appears in priority,
// earlier entries getting a larger multiplier.
func reweight(results []Result, priority []string) {
	if len(priority) == 0 {
		return
	}
	index := make(map[string]int, len(priority))
	for i, t := range priority {
		index[t] = i
	}
	for i := range results {
		t, _ := results[i].Metadata["type"].(string)
		if idx, ok := index[t]; ok {
			results[i].Score *= 1.0 + 0.1*float64(len(priority)-idx)
		}
	}
}

// dedupe sorts by score descending and keeps the first (highest-score)
// instance per dedup key.
func dedupe(results []Result) []Result {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	seen := make(map[string]bool, len(sorted))
	out := make([]Result, 0, len(sorted))
	for _, res := range sorted {
		key := dedupKey(res)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, res)
	}
	return out
}

func dedupKey(res Result) string {
	meta := res.Metadata
	switch meta["type"] {
	case "issue":
		return fmt.Sprintf("issue_%v_%v", meta["project_id"], meta["issue_iid"])
	case "merge_request":
		return fmt.Sprintf("mr_%v_%v", meta["project_id"], meta["mr_iid"])
	case "code":
		return fmt.Sprintf("code_%v_%v_%v", meta["project_id"], meta["file_path"], startLine(meta))
	case "comment":
		return fmt.Sprintf("comment_%v", meta["comment_id"])
	default:
		if res.ID != "" {
			return res.ID
		}
		return strconv.Itoa(len(res.Content))
	}
}

func startLine(meta map[string]interface{}) interface{} {
	if v, ok := meta["start_line"]; ok {
		return v
	}
	return 0
}

func (r *Retriever) logf(format string, v ...interface{}) {
	if r.log != nil {
		r.log.Printf(format, v...)
	}
}
