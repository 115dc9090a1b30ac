// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/gitlab-rag/indexer/internal/manifest"
)

const (
	cloneTimeout = 300 * time.Second
	pullTimeout  = 60 * time.Second
)

func (o *Orchestrator) repoPath(gitlabID int64) string {
	return filepath.Join(o.reposPath, strconv.FormatInt(gitlabID, 10))
}

// RepoPath exposes the on-disk checkout path for gitlabID so callers
// outside the package (the code analysis agent) can read the same
// working tree the code stage clones and pulls.
func (o *Orchestrator) RepoPath(gitlabID int64) string {
	return o.repoPath(gitlabID)
}

func (o *Orchestrator) repoAuth() transport.AuthMethod {
	if o.gitlabPAT == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "oauth2", Password: o.gitlabPAT}
}

// ensureRepoCloned clones a project's repository on first run or
// fast-forward-pulls an existing clone, returning the working tree
// path and the resulting HEAD commit hash. A failed pull, timeout
// included, is logged and the existing checkout is used. A failed
// clone, timeout included, is returned as an error and fails the
// calling code stage.
func (o *Orchestrator) ensureRepoCloned(ctx context.Context, p *manifest.Project) (string, string, error) {
	path := o.repoPath(p.GitlabID)
	ref := p.DefaultBranch
	if ref == "" {
		ref = "main"
	}

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		head, pullErr := o.pullRepo(ctx, path)
		if pullErr != nil {
			o.logf("code stage: project %d pull failed, using existing checkout: %v", p.GitlabID, pullErr)
		}
		return path, head, nil
	}

	head, err := o.cloneRepo(ctx, p, path, ref)
	if err != nil {
		return "", "", err
	}
	return path, head, nil
}

func (o *Orchestrator) cloneRepo(ctx context.Context, p *manifest.Project, path, ref string) (string, error) {
	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	repo, err := git.PlainCloneContext(cloneCtx, path, false, &git.CloneOptions{
		URL:           p.HTTPURLToRepo,
		Auth:          o.repoAuth(),
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(ref),
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone %s: %w", p.HTTPURLToRepo, err)
	}
	return headHash(repo)
}

func (o *Orchestrator) pullRepo(ctx context.Context, path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("failed to open repo at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return headHashOrEmpty(repo), fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	err = wt.PullContext(pullCtx, &git.PullOptions{
		RemoteName:   "origin",
		Auth:         o.repoAuth(),
		SingleBranch: true,
		Force:        false,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return headHashOrEmpty(repo), fmt.Errorf("pull failed: %w", err)
	}
	return headHash(repo)
}

func headHash(repo *git.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

func headHashOrEmpty(repo *git.Repository) string {
	h, err := headHash(repo)
	if err != nil {
		return ""
	}
	return h
}

// diffNames returns the set of file paths changed between two commits
// in repo, used by the incremental code-sync stage. An empty or
// unresolvable fromHash degrades to ok=false, telling the caller to
// fall back to a full tree walk.
func diffNames(repo *git.Repository, fromHash, toHash string) (paths []string, ok bool, err error) {
	if fromHash == "" || fromHash == toHash {
		return nil, fromHash == toHash, nil
	}

	fromCommit, err := repo.CommitObject(plumbing.NewHash(fromHash))
	if err != nil {
		return nil, false, nil
	}
	toCommit, err := repo.CommitObject(plumbing.NewHash(toHash))
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve commit %s: %w", toHash, err)
	}

	patch, err := fromCommit.Patch(toCommit)
	if err != nil {
		return nil, false, fmt.Errorf("failed to diff %s..%s: %w", fromHash, toHash, err)
	}

	seen := make(map[string]bool)
	for _, fp := range patch.FilePatches() {
		_, to := fp.Files()
		if to == nil {
			continue
		}
		if !seen[to.Path()] {
			seen[to.Path()] = true
			paths = append(paths, to.Path())
		}
	}
	return paths, true, nil
}
