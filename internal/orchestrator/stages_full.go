// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/manifest"
)

var readmeCandidates = []string{"README.md", "readme.md", "Readme.md", "README.MD"}

// stageReadmeFull probes the README candidates and embeds the first
// non-empty hit.
func (o *Orchestrator) stageReadmeFull(ctx context.Context, st *stageState) error {
	p := st.project
	ref := p.DefaultBranch
	if ref == "" {
		ref = "main"
	}

	for _, candidate := range readmeCandidates {
		content, err := o.gitlabClient.GetRawFile(ctx, p.GitlabID, candidate, ref)
		if err != nil {
			if gitlab.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("readme stage: failed to fetch %s: %w", candidate, err)
		}
		if len(content) == 0 {
			continue
		}

		text := string(content)
		chunks := o.chunker.ChunkReadme(text, p.GitlabID, p.Name, webURLForProject(p))
		entityID := strconv.FormatInt(p.GitlabID, 10)
		pointIDs, err := o.embedAndUpsert(ctx, p.GitlabID, manifest.ItemTypeReadme, entityID, chunks)
		if err != nil {
			return fmt.Errorf("readme stage: %w", err)
		}

		hashPrefix := contentHashPrefix(text)
		_, err = o.store.UpsertIndexedItem(ctx, manifest.IndexedItem{
			ProjectLocalID: p.ID,
			ItemType:       manifest.ItemTypeReadme,
			ItemID:         entityID,
			ItemIID:        hashPrefix,
			QdrantPointIDs: pointIDs,
		})
		if err != nil {
			return fmt.Errorf("readme stage: failed to record manifest row: %w", err)
		}
		st.readmeUpdated = true
		return nil
	}

	o.logf("project %d: no README candidate found", p.GitlabID)
	return nil
}

func contentHashPrefix(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:8]
}

func webURLForProject(p *manifest.Project) string {
	return p.HTTPURLToRepo
}

// stageIssuesFull paginates every issue, chunks it plus its comment
// thread, embeds, and records a manifest row per issue.
func (o *Orchestrator) stageIssuesFull(ctx context.Context, st *stageState) error {
	p := st.project
	issues, err := o.gitlabClient.ListIssues(ctx, p.GitlabID, gitlab.IssueListOptions{State: "all"})
	if err != nil {
		return fmt.Errorf("issues stage: failed to list issues: %w", err)
	}

	for _, issue := range issues {
		if err := o.indexOneIssue(ctx, p, issue); err != nil {
			o.logf("issues stage: project %d issue #%d failed, skipping: %v", p.GitlabID, issue.IID, err)
			continue
		}
		st.issuesUpdated++
		time.Sleep(200 * time.Millisecond)
	}
	return nil
}

func (o *Orchestrator) indexOneIssue(ctx context.Context, p *manifest.Project, issue gitlab.Issue) error {
	chunks := o.chunker.ChunkIssue(issue, p.GitlabID)

	notes, err := o.gitlabClient.ListIssueNotes(ctx, p.GitlabID, issue.IID)
	if err != nil {
		o.logf("issues stage: project %d issue #%d: failed to list notes: %v", p.GitlabID, issue.IID, err)
	}
	for _, note := range notes {
		chunks = append(chunks, o.chunker.ChunkComment(note, manifest.ItemTypeIssue, issue.IID, p.GitlabID)...)
	}

	entityID := strconv.FormatInt(issue.ID, 10)
	pointIDs, err := o.embedAndUpsert(ctx, p.GitlabID, manifest.ItemTypeIssue, entityID, chunks)
	if err != nil {
		return err
	}

	_, err = o.store.UpsertIndexedItem(ctx, manifest.IndexedItem{
		ProjectLocalID: p.ID,
		ItemType:       manifest.ItemTypeIssue,
		ItemID:         entityID,
		ItemIID:        strconv.FormatInt(issue.IID, 10),
		QdrantPointIDs: pointIDs,
		LastUpdatedAt:  issue.UpdatedAt,
	})
	return err
}

// stageMergeRequestsFull mirrors stageIssuesFull for merge requests.
func (o *Orchestrator) stageMergeRequestsFull(ctx context.Context, st *stageState) error {
	p := st.project
	mrs, err := o.gitlabClient.ListMergeRequests(ctx, p.GitlabID, gitlab.MergeRequestListOptions{State: "all"})
	if err != nil {
		return fmt.Errorf("merge requests stage: failed to list merge requests: %w", err)
	}

	for _, mr := range mrs {
		if err := o.indexOneMergeRequest(ctx, p, mr); err != nil {
			o.logf("merge requests stage: project %d mr !%d failed, skipping: %v", p.GitlabID, mr.IID, err)
			continue
		}
		st.mrsUpdated++
		time.Sleep(200 * time.Millisecond)
	}
	return nil
}

func (o *Orchestrator) indexOneMergeRequest(ctx context.Context, p *manifest.Project, mr gitlab.MergeRequest) error {
	chunks := o.chunker.ChunkMergeRequest(mr, p.GitlabID)

	notes, err := o.gitlabClient.ListMRNotes(ctx, p.GitlabID, mr.IID)
	if err != nil {
		o.logf("merge requests stage: project %d mr !%d: failed to list notes: %v", p.GitlabID, mr.IID, err)
	}
	for _, note := range notes {
		chunks = append(chunks, o.chunker.ChunkComment(note, manifest.ItemTypeMergeRequest, mr.IID, p.GitlabID)...)
	}

	entityID := strconv.FormatInt(mr.ID, 10)
	pointIDs, err := o.embedAndUpsert(ctx, p.GitlabID, manifest.ItemTypeMergeRequest, entityID, chunks)
	if err != nil {
		return err
	}

	_, err = o.store.UpsertIndexedItem(ctx, manifest.IndexedItem{
		ProjectLocalID: p.ID,
		ItemType:       manifest.ItemTypeMergeRequest,
		ItemID:         entityID,
		ItemIID:        strconv.FormatInt(mr.IID, 10),
		QdrantPointIDs: pointIDs,
		LastUpdatedAt:  mr.UpdatedAt,
	})
	return err
}

// stageCodeFull ensures a shallow clone, walks the tree applying
// indexability rules, chunks+embeds every file, and records the union
// of point ids on a single code row.
func (o *Orchestrator) stageCodeFull(ctx context.Context, st *stageState) error {
	p := st.project
	repoPath, headHash, err := o.ensureRepoCloned(ctx, p)
	if err != nil {
		return fmt.Errorf("code stage: %w", err)
	}

	files, err := walkIndexableFiles(repoPath)
	if err != nil {
		return fmt.Errorf("code stage: failed to walk repository: %w", err)
	}

	var allPointIDs []string
	for _, relPath := range files {
		chunks, err := o.chunkCodeFile(repoPath, relPath, p.GitlabID)
		if err != nil {
			o.logf("code stage: project %d file %s failed, skipping: %v", p.GitlabID, relPath, err)
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		pointIDs, err := o.embedAndUpsert(ctx, p.GitlabID, manifest.ItemTypeCode, relPath, chunks)
		if err != nil {
			o.logf("code stage: project %d file %s embed failed, skipping: %v", p.GitlabID, relPath, err)
			continue
		}
		allPointIDs = append(allPointIDs, pointIDs...)
		st.codeUpdated++
	}

	entityID := strconv.FormatInt(p.GitlabID, 10)
	_, err = o.store.UpsertIndexedItem(ctx, manifest.IndexedItem{
		ProjectLocalID: p.ID,
		ItemType:       manifest.ItemTypeCode,
		ItemID:         entityID,
		ItemIID:        entityID,
		QdrantPointIDs: allPointIDs,
	})
	if err != nil {
		return fmt.Errorf("code stage: failed to record manifest row: %w", err)
	}

	return o.store.SetLastIndexedCommit(ctx, p.ID, headHash)
}
