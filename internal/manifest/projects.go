// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("not found")

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.GitlabID, &p.Name, &p.PathWithNamespace, &p.DefaultBranch,
		&p.HTTPURLToRepo, &p.IsIndexed, &p.IsSelected, &p.IndexingStatus,
		&p.IndexingError, &p.LastIndexedAt, &p.LastIndexedCommit,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const projectColumns = `id, gitlab_id, name, path_with_namespace, default_branch,
	http_url_to_repo, is_indexed, is_selected, indexing_status,
	indexing_error, last_indexed_at, last_indexed_commit, created_at, updated_at`

// UpsertProject creates a project by gitlab_id or refreshes its
// mutable descriptive fields (name, path, branch, url) if it exists.
func (s *Store) UpsertProject(ctx context.Context, gitlabID int64, name, pathWithNamespace, defaultBranch, httpURLToRepo string) (*Project, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO projects (gitlab_id, name, path_with_namespace, default_branch, http_url_to_repo)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (gitlab_id) DO UPDATE SET
			name = EXCLUDED.name,
			path_with_namespace = EXCLUDED.path_with_namespace,
			default_branch = EXCLUDED.default_branch,
			http_url_to_repo = EXCLUDED.http_url_to_repo,
			updated_at = now()
		RETURNING %s`, projectColumns),
		gitlabID, name, pathWithNamespace, defaultBranch, httpURLToRepo,
	)
	return scanProject(row)
}

// GetProjectByID fetches a project by its local id.
func (s *Store) GetProjectByID(ctx context.Context, id int64) (*Project, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns), id)
	return scanProject(row)
}

// GetProjectByGitlabID fetches a project by its upstream gitlab_id.
func (s *Store) GetProjectByGitlabID(ctx context.Context, gitlabID int64) (*Project, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM projects WHERE gitlab_id = $1`, projectColumns), gitlabID)
	return scanProject(row)
}

// ListProjects returns every known project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM projects ORDER BY name`, projectColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjects(rows)
}

// ListSelectedProjects returns only projects flagged for indexing/chat.
func (s *Store) ListSelectedProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM projects WHERE is_selected ORDER BY name`, projectColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjects(rows)
}

func collectProjects(rows pgx.Rows) ([]Project, error) {
	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// SetSelected flips a project's selection flag.
func (s *Store) SetSelected(ctx context.Context, id int64, selected bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE projects SET is_selected = $2, updated_at = now() WHERE id = $1`, id, selected)
	return err
}

// SetStatus updates indexing_status and indexing_error. When status
// transitions to completed, is_indexed and last_indexed_at are set too,
// per the invariant that is_indexed implies a non-null last_indexed_at.
func (s *Store) SetStatus(ctx context.Context, id int64, status string, indexingError *string) error {
	if status == StatusCompleted {
		_, err := s.pool.Exec(ctx, `
			UPDATE projects SET indexing_status = $2, indexing_error = NULL,
				is_indexed = TRUE, last_indexed_at = now(), updated_at = now()
			WHERE id = $1`, id, status)
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE projects SET indexing_status = $2, indexing_error = $3, updated_at = now()
		WHERE id = $1`, id, status, indexingError)
	return err
}

// SetLastIndexedCommit records the HEAD commit of the code stage's
// most recent successful walk.
func (s *Store) SetLastIndexedCommit(ctx context.Context, id int64, commit string) error {
	_, err := s.pool.Exec(ctx, `UPDATE projects SET last_indexed_commit = $2, updated_at = now() WHERE id = $1`, id, commit)
	return err
}

// ClearIndexState resets is_indexed/last_indexed_at/last_indexed_commit,
// used by clear-index alongside deleting the project's vector points
// and manifest rows.
func (s *Store) ClearIndexState(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE projects SET is_indexed = FALSE, last_indexed_at = NULL,
			last_indexed_commit = NULL, indexing_status = $2, indexing_error = NULL, updated_at = now()
		WHERE id = $1`, id, StatusPending)
	return err
}

// DeleteProject removes a project; indexed_items cascades via FK.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// RecoverStaleSyncs resets projects wedged in "syncing" for more than
// staleAfter back to completed, returning how many rows were fixed.
func (s *Store) RecoverStaleSyncs(ctx context.Context, staleAfter time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET indexing_status = $1, updated_at = now()
		WHERE indexing_status = $2 AND last_indexed_at < now() - make_interval(secs => $3)`,
		StatusCompleted, StatusSyncing, staleAfter.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale syncs: %w", err)
	}
	return tag.RowsAffected(), nil
}
