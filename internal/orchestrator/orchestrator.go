// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package orchestrator drives the full-index and incremental-sync
// pipelines: an ordered chain of stages over a project's GitLab
// content, each threading a cumulative state into the next.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gitlab-rag/indexer/internal/embeddings"
	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/logger"
	"github.com/gitlab-rag/indexer/internal/manifest"
	"github.com/gitlab-rag/indexer/internal/processor"
	"github.com/gitlab-rag/indexer/internal/vectordb"
)

// ErrAlreadyIndexing is returned when a project's status guard rejects
// a new full-index or sync request.
var ErrAlreadyIndexing = fmt.Errorf("already_indexing")

const staleRecoveryWindow = 2 * time.Minute

// Orchestrator wires the GitLab client, chunker, vector store, embedder
// and manifest store together into the indexing pipeline.
type Orchestrator struct {
	gitlabClient *gitlab.Client
	gitlabPAT    string
	chunker      *processor.Chunker
	vdb          vectordb.VectorDB
	embedder     embeddings.Embedder
	store        *manifest.Store
	log          *logger.Logger
	reposPath    string

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

// New builds an Orchestrator.
func New(client *gitlab.Client, gitlabPAT string, chunker *processor.Chunker, vdb vectordb.VectorDB, embedder embeddings.Embedder, store *manifest.Store, log *logger.Logger, reposPath string) *Orchestrator {
	return &Orchestrator{
		gitlabClient: client,
		gitlabPAT:    gitlabPAT,
		chunker:      chunker,
		vdb:          vdb,
		embedder:     embedder,
		store:        store,
		log:          log,
		reposPath:    reposPath,
		cancels:      make(map[int64]context.CancelFunc),
	}
}

// stageState is threaded through the pipeline; each stage reads and
// extends it.
type stageState struct {
	project   *manifest.Project
	isFullRun bool

	readmeUpdated  bool
	issuesUpdated  int
	mrsUpdated     int
	codeUpdated    int
	itemsDeleted   int
}

// registerRun installs a cancellable context for gitlabID so StopIndexing
// can revoke it, and returns the derived context plus a cleanup func.
func (o *Orchestrator) registerRun(ctx context.Context, gitlabID int64) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[gitlabID] = cancel
	o.mu.Unlock()
	return runCtx, func() {
		o.mu.Lock()
		delete(o.cancels, gitlabID)
		o.mu.Unlock()
		cancel()
	}
}

// StopIndexing cancels any in-flight run for gitlabID and marks the
// project stopped. No error is surfaced; this is a user-directed stop.
func (o *Orchestrator) StopIndexing(ctx context.Context, gitlabID int64) error {
	o.mu.Lock()
	cancel, ok := o.cancels[gitlabID]
	o.mu.Unlock()
	if ok {
		cancel()
	}

	project, err := o.store.GetProjectByGitlabID(ctx, gitlabID)
	if err != nil {
		return fmt.Errorf("failed to look up project %d: %w", gitlabID, err)
	}
	return o.store.SetStatus(ctx, project.ID, manifest.StatusStopped, nil)
}

// RecoverStaleSyncs resets any project stuck in "syncing" longer than
// the stale-recovery window back to completed. The server calls it at
// startup and then on a fixed interval.
func (o *Orchestrator) RecoverStaleSyncs(ctx context.Context) (int64, error) {
	n, err := o.store.RecoverStaleSyncs(ctx, staleRecoveryWindow)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale syncs: %w", err)
	}
	if n > 0 {
		o.logf("recovered %d project(s) stuck in syncing", n)
	}
	return n, nil
}

// FullIndex runs the full-index pipeline for gitlabID: README, issues,
// merge requests, code, then finalize.
func (o *Orchestrator) FullIndex(ctx context.Context, gitlabID int64) error {
	project, err := o.store.GetProjectByGitlabID(ctx, gitlabID)
	if err != nil {
		return fmt.Errorf("failed to look up project %d: %w", gitlabID, err)
	}
	if project.IndexingStatus == manifest.StatusIndexing || project.IndexingStatus == manifest.StatusSyncing {
		return ErrAlreadyIndexing
	}

	if err := o.store.SetStatus(ctx, project.ID, manifest.StatusIndexing, nil); err != nil {
		return fmt.Errorf("failed to set indexing status: %w", err)
	}

	runCtx, done := o.registerRun(ctx, gitlabID)
	defer done()

	state := &stageState{project: project, isFullRun: true}
	stages := []func(context.Context, *stageState) error{
		o.stageReadmeFull,
		o.stageIssuesFull,
		o.stageMergeRequestsFull,
		o.stageCodeFull,
	}

	for _, stage := range stages {
		if err := stage(runCtx, state); err != nil {
			o.failProject(ctx, project.ID, err)
			return fmt.Errorf("full index failed for project %d: %w", gitlabID, err)
		}
	}

	if err := o.store.SetStatus(ctx, project.ID, manifest.StatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to finalize project %d: %w", gitlabID, err)
	}
	o.logf("full index completed for project %d (gitlab_id)", gitlabID)
	return nil
}

// Sync runs the incremental-sync pipeline for gitlabID, falling back to
// a full index if the project has never been indexed.
func (o *Orchestrator) Sync(ctx context.Context, gitlabID int64) error {
	project, err := o.store.GetProjectByGitlabID(ctx, gitlabID)
	if err != nil {
		return fmt.Errorf("failed to look up project %d: %w", gitlabID, err)
	}
	if project.IndexingStatus == manifest.StatusIndexing || project.IndexingStatus == manifest.StatusSyncing {
		return ErrAlreadyIndexing
	}
	if project.LastIndexedAt == nil {
		return o.FullIndex(ctx, gitlabID)
	}

	if err := o.store.SetStatus(ctx, project.ID, manifest.StatusSyncing, nil); err != nil {
		return fmt.Errorf("failed to set syncing status: %w", err)
	}

	runCtx, done := o.registerRun(ctx, gitlabID)
	defer done()

	state := &stageState{project: project, isFullRun: false}
	stages := []func(context.Context, *stageState) error{
		o.stageReadmeSync,
		o.stageIssuesSync,
		o.stageMergeRequestsSync,
		o.stageCodeSync,
		o.stageCleanupDeletions,
	}

	for _, stage := range stages {
		if err := stage(runCtx, state); err != nil {
			o.failProject(ctx, project.ID, err)
			return fmt.Errorf("sync failed for project %d: %w", gitlabID, err)
		}
	}

	if err := o.store.SetStatus(ctx, project.ID, manifest.StatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to finalize project %d: %w", gitlabID, err)
	}
	o.logf("sync completed for project %d: readme_updated=%v issues_updated=%d mrs_updated=%d code_files_updated=%d items_deleted=%d",
		gitlabID, state.readmeUpdated, state.issuesUpdated, state.mrsUpdated, state.codeUpdated, state.itemsDeleted)
	return nil
}

// ClearIndex removes every vector point and manifest row for gitlabID
// and resets the project's index state. Rejected while a run is active.
func (o *Orchestrator) ClearIndex(ctx context.Context, gitlabID int64) error {
	project, err := o.store.GetProjectByGitlabID(ctx, gitlabID)
	if err != nil {
		return fmt.Errorf("failed to look up project %d: %w", gitlabID, err)
	}
	if project.IndexingStatus == manifest.StatusIndexing || project.IndexingStatus == manifest.StatusSyncing {
		return ErrAlreadyIndexing
	}

	if err := o.vdb.DeleteByProject(ctx, gitlabID); err != nil {
		return fmt.Errorf("failed to delete vectors for project %d: %w", gitlabID, err)
	}
	if err := o.store.DeleteIndexedItemsByProject(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to delete manifest rows for project %d: %w", gitlabID, err)
	}
	if err := o.store.ClearIndexState(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to reset project index state: %w", err)
	}
	return nil
}

func (o *Orchestrator) failProject(ctx context.Context, projectLocalID int64, cause error) {
	msg := cause.Error()
	if err := o.store.SetStatus(ctx, projectLocalID, manifest.StatusError, &msg); err != nil {
		o.logf("failed to record error status for project local id %d: %v", projectLocalID, err)
	}
}

func (o *Orchestrator) logf(format string, v ...interface{}) {
	if o.log != nil {
		o.log.Printf(format, v...)
	}
}

// embedAndUpsert embeds chunks in a single batch and writes the
// resulting points, returning the point ids the caller should record on
// the owning manifest row. contentType is the fallback point-id scope
// for chunks that don't carry their own "type" metadata; comment chunks
// threaded in alongside an issue or merge request's own chunks carry
// "comment" and must keep that identity rather than inherit the
// parent's, since the retriever's dedup table keys off the same field.
func (o *Orchestrator) embedAndUpsert(ctx context.Context, projectID int64, contentType, entityID string, chunks []processor.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}

	points := make([]vectordb.Point, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		id := vectordb.PointID(projectID, chunkContentType(c, contentType), entityID, c.Content)
		payload := cloneMeta(c.Metadata)
		payload["content"] = c.Content
		payload["token_count"] = c.TokenCount
		points[i] = vectordb.Point{ID: id, Vector: vectors[i], Payload: payload}
		ids[i] = id
	}

	if err := o.vdb.UpsertBatch(ctx, points); err != nil {
		return nil, fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return ids, nil
}

// chunkContentType reads a chunk's own "type" metadata, falling back to
// fallback when the chunk didn't set one.
func chunkContentType(c processor.Chunk, fallback string) string {
	if t, ok := c.Metadata["type"].(string); ok && t != "" {
		return t
	}
	return fallback
}

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
