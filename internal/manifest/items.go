// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manifest

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const itemColumns = `id, project_local_id, item_type, item_id, item_iid, qdrant_point_ids, last_updated_at`

func scanItem(row pgx.Row) (*IndexedItem, error) {
	var it IndexedItem
	err := row.Scan(&it.ID, &it.ProjectLocalID, &it.ItemType, &it.ItemID, &it.ItemIID, &it.QdrantPointIDs, &it.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// UpsertIndexedItem records or refreshes the manifest row linking one
// piece of content to the vector points it produced.
func (s *Store) UpsertIndexedItem(ctx context.Context, it IndexedItem) (*IndexedItem, error) {
	var lastUpdated *time.Time
	if !it.LastUpdatedAt.IsZero() {
		lastUpdated = &it.LastUpdatedAt
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO indexed_items (project_local_id, item_type, item_id, item_iid, qdrant_point_ids, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, now()))
		ON CONFLICT (project_local_id, item_type, item_id) DO UPDATE SET
			item_iid = EXCLUDED.item_iid,
			qdrant_point_ids = EXCLUDED.qdrant_point_ids,
			last_updated_at = EXCLUDED.last_updated_at
		RETURNING `+itemColumns,
		it.ProjectLocalID, it.ItemType, it.ItemID, it.ItemIID, it.QdrantPointIDs, lastUpdated,
	)
	return scanItem(row)
}

// GetIndexedItem looks up the manifest row for one piece of content.
func (s *Store) GetIndexedItem(ctx context.Context, projectLocalID int64, itemType, itemID string) (*IndexedItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+itemColumns+` FROM indexed_items
		WHERE project_local_id = $1 AND item_type = $2 AND item_id = $3`,
		projectLocalID, itemType, itemID,
	)
	return scanItem(row)
}

// ListIndexedItems returns every manifest row for a project, optionally
// narrowed to one item_type (pass "" for all types).
func (s *Store) ListIndexedItems(ctx context.Context, projectLocalID int64, itemType string) ([]IndexedItem, error) {
	var rows pgx.Rows
	var err error
	if itemType == "" {
		rows, err = s.pool.Query(ctx, `SELECT `+itemColumns+` FROM indexed_items WHERE project_local_id = $1`, projectLocalID)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+itemColumns+` FROM indexed_items WHERE project_local_id = $1 AND item_type = $2`, projectLocalID, itemType)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []IndexedItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// DeleteIndexedItem removes a single manifest row. Callers are
// responsible for deleting its qdrant_point_ids from the vector store
// first.
func (s *Store) DeleteIndexedItem(ctx context.Context, projectLocalID int64, itemType, itemID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM indexed_items WHERE project_local_id = $1 AND item_type = $2 AND item_id = $3`,
		projectLocalID, itemType, itemID)
	return err
}

// DeleteIndexedItemsByProject removes every manifest row for a
// project, used by clear-index after the matching vector points have
// been dropped.
func (s *Store) DeleteIndexedItemsByProject(ctx context.Context, projectLocalID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM indexed_items WHERE project_local_id = $1`, projectLocalID)
	return err
}
