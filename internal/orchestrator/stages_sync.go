// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-git/go-git/v5"

	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/manifest"
)

func openRepo(path string) (*git.Repository, error) {
	return git.PlainOpen(path)
}

func statSize(repoPath, relPath string) (int64, error) {
	info, err := os.Stat(filepath.Join(repoPath, relPath))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func existingPointIDs(existing *manifest.IndexedItem) []string {
	if existing == nil {
		return nil
	}
	return existing.QdrantPointIDs
}

// mergePointIDs unions fresh point ids into the project's code row.
// Point ids are content hashes, so an unchanged file re-upserts to the
// same ids; a changed file's old ids simply age out of relevance and
// are swept up by the next clear-index rather than tracked per file.
func mergePointIDs(current []string, fresh []string) []string {
	seen := make(map[string]bool, len(current))
	out := make([]string, 0, len(current)+len(fresh))
	for _, id := range current {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range fresh {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// stageReadmeSync re-probes the README candidates and only re-embeds
// when the content hash differs from what's recorded.
func (o *Orchestrator) stageReadmeSync(ctx context.Context, st *stageState) error {
	p := st.project
	ref := p.DefaultBranch
	if ref == "" {
		ref = "main"
	}
	entityID := strconv.FormatInt(p.GitlabID, 10)

	existing, err := o.store.GetIndexedItem(ctx, p.ID, manifest.ItemTypeReadme, entityID)
	if err != nil && !errors.Is(err, manifest.ErrNotFound) {
		return fmt.Errorf("readme sync: failed to load existing manifest row: %w", err)
	}

	for _, candidate := range readmeCandidates {
		content, err := o.gitlabClient.GetRawFile(ctx, p.GitlabID, candidate, ref)
		if err != nil {
			if gitlab.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("readme sync: failed to fetch %s: %w", candidate, err)
		}
		if len(content) == 0 {
			continue
		}

		text := string(content)
		hashPrefix := contentHashPrefix(text)
		if existing != nil && existing.ItemIID == hashPrefix {
			return nil
		}

		chunks := o.chunker.ChunkReadme(text, p.GitlabID, p.Name, webURLForProject(p))
		if existing != nil {
			if err := o.vdb.DeleteByIDs(ctx, existing.QdrantPointIDs); err != nil {
				o.logf("readme sync: project %d failed to delete stale points: %v", p.GitlabID, err)
			}
		}

		pointIDs, err := o.embedAndUpsert(ctx, p.GitlabID, manifest.ItemTypeReadme, entityID, chunks)
		if err != nil {
			return fmt.Errorf("readme sync: %w", err)
		}

		_, err = o.store.UpsertIndexedItem(ctx, manifest.IndexedItem{
			ProjectLocalID: p.ID,
			ItemType:       manifest.ItemTypeReadme,
			ItemID:         entityID,
			ItemIID:        hashPrefix,
			QdrantPointIDs: pointIDs,
		})
		if err != nil {
			return fmt.Errorf("readme sync: failed to record manifest row: %w", err)
		}
		st.readmeUpdated = true
		return nil
	}

	return nil
}

// stageIssuesSync lists only issues updated since the last successful
// index and re-embeds each one, replacing its prior vector points.
func (o *Orchestrator) stageIssuesSync(ctx context.Context, st *stageState) error {
	p := st.project
	issues, err := o.gitlabClient.ListIssues(ctx, p.GitlabID, gitlab.IssueListOptions{
		State:        "all",
		UpdatedAfter: p.LastIndexedAt,
	})
	if err != nil {
		return fmt.Errorf("issues sync: failed to list issues: %w", err)
	}

	for _, issue := range issues {
		entityID := strconv.FormatInt(issue.ID, 10)
		existing, err := o.store.GetIndexedItem(ctx, p.ID, manifest.ItemTypeIssue, entityID)
		if err != nil && !errors.Is(err, manifest.ErrNotFound) {
			o.logf("issues sync: project %d issue #%d failed to load manifest row, skipping: %v", p.GitlabID, issue.IID, err)
			continue
		}

		if existing != nil {
			if err := o.vdb.DeleteByIDs(ctx, existing.QdrantPointIDs); err != nil {
				o.logf("issues sync: project %d issue #%d failed to delete stale points: %v", p.GitlabID, issue.IID, err)
			}
		}
		if err := o.indexOneIssue(ctx, p, issue); err != nil {
			o.logf("issues sync: project %d issue #%d failed, skipping: %v", p.GitlabID, issue.IID, err)
			continue
		}
		st.issuesUpdated++
	}
	return nil
}

// stageMergeRequestsSync mirrors stageIssuesSync for merge requests.
func (o *Orchestrator) stageMergeRequestsSync(ctx context.Context, st *stageState) error {
	p := st.project
	mrs, err := o.gitlabClient.ListMergeRequests(ctx, p.GitlabID, gitlab.MergeRequestListOptions{
		State:        "all",
		UpdatedAfter: p.LastIndexedAt,
	})
	if err != nil {
		return fmt.Errorf("merge requests sync: failed to list merge requests: %w", err)
	}

	for _, mr := range mrs {
		entityID := strconv.FormatInt(mr.ID, 10)
		existing, err := o.store.GetIndexedItem(ctx, p.ID, manifest.ItemTypeMergeRequest, entityID)
		if err != nil && !errors.Is(err, manifest.ErrNotFound) {
			o.logf("merge requests sync: project %d mr !%d failed to load manifest row, skipping: %v", p.GitlabID, mr.IID, err)
			continue
		}

		if existing != nil {
			if err := o.vdb.DeleteByIDs(ctx, existing.QdrantPointIDs); err != nil {
				o.logf("merge requests sync: project %d mr !%d failed to delete stale points: %v", p.GitlabID, mr.IID, err)
			}
		}
		if err := o.indexOneMergeRequest(ctx, p, mr); err != nil {
			o.logf("merge requests sync: project %d mr !%d failed, skipping: %v", p.GitlabID, mr.IID, err)
			continue
		}
		st.mrsUpdated++
	}
	return nil
}

// stageCodeSync pulls the repository and, when HEAD moved, re-chunks
// only the files that changed between the previously indexed commit
// and the new HEAD. An unresolvable diff (fresh clone, rewritten
// history) falls back to a full tree walk.
func (o *Orchestrator) stageCodeSync(ctx context.Context, st *stageState) error {
	p := st.project
	repoPath, newHead, err := o.ensureRepoCloned(ctx, p)
	if err != nil {
		return fmt.Errorf("code sync: %w", err)
	}

	previousHead := ""
	if p.LastIndexedCommit != nil {
		previousHead = *p.LastIndexedCommit
	}
	if newHead == previousHead {
		return nil
	}

	entityID := strconv.FormatInt(p.GitlabID, 10)
	existing, err := o.store.GetIndexedItem(ctx, p.ID, manifest.ItemTypeCode, entityID)
	if err != nil && !errors.Is(err, manifest.ErrNotFound) {
		return fmt.Errorf("code sync: failed to load existing manifest row: %w", err)
	}

	repo, openErr := openRepo(repoPath)
	var changed []string
	fullWalk := true
	if openErr == nil && previousHead != "" {
		if names, ok, diffErr := diffNames(repo, previousHead, newHead); diffErr == nil && ok {
			changed = names
			fullWalk = false
		}
	}

	if fullWalk {
		changed, err = walkIndexableFiles(repoPath)
		if err != nil {
			return fmt.Errorf("code sync: failed to walk repository: %w", err)
		}
	} else {
		filtered := changed[:0]
		for _, rel := range changed {
			if info, statErr := statSize(repoPath, rel); statErr == nil && isIndexableFile(rel, info) {
				filtered = append(filtered, rel)
			}
		}
		changed = filtered
	}

	allPointIDs := existingPointIDs(existing)
	for _, rel := range changed {
		chunks, err := o.chunkCodeFile(repoPath, rel, p.GitlabID)
		if err != nil {
			o.logf("code sync: project %d file %s failed, skipping: %v", p.GitlabID, rel, err)
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		pointIDs, err := o.embedAndUpsert(ctx, p.GitlabID, manifest.ItemTypeCode, rel, chunks)
		if err != nil {
			o.logf("code sync: project %d file %s embed failed, skipping: %v", p.GitlabID, rel, err)
			continue
		}
		allPointIDs = mergePointIDs(allPointIDs, pointIDs)
		st.codeUpdated++
	}

	_, err = o.store.UpsertIndexedItem(ctx, manifest.IndexedItem{
		ProjectLocalID: p.ID,
		ItemType:       manifest.ItemTypeCode,
		ItemID:         entityID,
		ItemIID:        entityID,
		QdrantPointIDs: allPointIDs,
	})
	if err != nil {
		return fmt.Errorf("code sync: failed to record manifest row: %w", err)
	}

	return o.store.SetLastIndexedCommit(ctx, p.ID, newHead)
}

// stageCleanupDeletions removes manifest rows (and their vector
// points) for issues and merge requests that no longer exist upstream.
func (o *Orchestrator) stageCleanupDeletions(ctx context.Context, st *stageState) error {
	p := st.project

	if err := o.cleanupDeletedKind(ctx, p, manifest.ItemTypeIssue, "issues", st); err != nil {
		return err
	}
	return o.cleanupDeletedKind(ctx, p, manifest.ItemTypeMergeRequest, "merge_requests", st)
}

func (o *Orchestrator) cleanupDeletedKind(ctx context.Context, p *manifest.Project, itemType, kind string, st *stageState) error {
	remoteIIDs, err := o.gitlabClient.ListIDs(ctx, p.GitlabID, kind)
	if err != nil {
		return fmt.Errorf("cleanup deletions: failed to list remote %s ids: %w", kind, err)
	}
	present := make(map[string]bool, len(remoteIIDs))
	for _, iid := range remoteIIDs {
		present[strconv.FormatInt(iid, 10)] = true
	}

	localItems, err := o.store.ListIndexedItems(ctx, p.ID, itemType)
	if err != nil {
		return fmt.Errorf("cleanup deletions: failed to list local %s rows: %w", kind, err)
	}

	for _, item := range localItems {
		if present[item.ItemIID] {
			continue
		}
		if err := o.vdb.DeleteByIDs(ctx, item.QdrantPointIDs); err != nil {
			o.logf("cleanup deletions: project %d failed to delete points for %s %s: %v", p.GitlabID, itemType, item.ItemID, err)
			continue
		}
		if err := o.store.DeleteIndexedItem(ctx, p.ID, itemType, item.ItemID); err != nil {
			o.logf("cleanup deletions: project %d failed to delete manifest row for %s %s: %v", p.GitlabID, itemType, item.ItemID, err)
			continue
		}
		st.itemsDeleted++
	}
	return nil
}
