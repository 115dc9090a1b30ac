// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package manifest is the relational system of record for GitLab
// projects, their indexed items, chat conversations, and configured
// LLM providers. It is a thin, hand-written SQL layer over pgx, not
// an ORM: every query is explicit.
package manifest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitlab-rag/indexer/internal/logger"
)

// Store is the relational manifest store.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewStore wraps an existing pool and runs schema migrations.
func NewStore(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) (*Store, error) {
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate manifest schema: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id BIGSERIAL PRIMARY KEY,
	gitlab_id BIGINT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	path_with_namespace TEXT NOT NULL,
	default_branch TEXT NOT NULL DEFAULT 'main',
	http_url_to_repo TEXT NOT NULL,
	is_indexed BOOLEAN NOT NULL DEFAULT FALSE,
	is_selected BOOLEAN NOT NULL DEFAULT FALSE,
	indexing_status TEXT NOT NULL DEFAULT 'pending',
	indexing_error TEXT,
	last_indexed_at TIMESTAMPTZ,
	last_indexed_commit TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_projects_is_selected ON projects(is_selected) WHERE is_selected;
CREATE INDEX IF NOT EXISTS idx_projects_indexing_status ON projects(indexing_status);

CREATE TABLE IF NOT EXISTS indexed_items (
	id BIGSERIAL PRIMARY KEY,
	project_local_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	item_type TEXT NOT NULL,
	item_id TEXT NOT NULL,
	item_iid TEXT,
	qdrant_point_ids TEXT[] NOT NULL DEFAULT '{}',
	last_updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(project_local_id, item_type, item_id)
);

CREATE INDEX IF NOT EXISTS idx_indexed_items_project ON indexed_items(project_local_id);

CREATE TABLE IF NOT EXISTS llm_providers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	provider TEXT NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL,
	base_url TEXT NOT NULL DEFAULT '',
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL DEFAULT 'New conversation',
	provider_id BIGINT REFERENCES llm_providers(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
