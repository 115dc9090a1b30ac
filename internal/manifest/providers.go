// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manifest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const providerColumns = `id, name, provider, api_key, model, base_url, is_default, created_at`

func scanProvider(row pgx.Row) (*LLMProvider, error) {
	var p LLMProvider
	err := row.Scan(&p.ID, &p.Name, &p.Provider, &p.APIKey, &p.Model, &p.BaseURL, &p.IsDefault, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProvider registers a new LLM provider configuration.
func (s *Store) CreateProvider(ctx context.Context, p LLMProvider) (*LLMProvider, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO llm_providers (name, provider, api_key, model, base_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+providerColumns,
		p.Name, p.Provider, p.APIKey, p.Model, p.BaseURL)
	return scanProvider(row)
}

// GetProvider fetches a provider by id.
func (s *Store) GetProvider(ctx context.Context, id int64) (*LLMProvider, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM llm_providers WHERE id = $1`, id)
	return scanProvider(row)
}

// GetDefaultProvider returns the provider flagged is_default, if any.
func (s *Store) GetDefaultProvider(ctx context.Context) (*LLMProvider, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM llm_providers WHERE is_default LIMIT 1`)
	return scanProvider(row)
}

// ListProviders returns every configured provider.
func (s *Store) ListProviders(ctx context.Context) ([]LLMProvider, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+providerColumns+` FROM llm_providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LLMProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProvider replaces a provider's mutable fields.
func (s *Store) UpdateProvider(ctx context.Context, p LLMProvider) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE llm_providers SET name = $2, provider = $3, api_key = $4, model = $5, base_url = $6
		WHERE id = $1`, p.ID, p.Name, p.Provider, p.APIKey, p.Model, p.BaseURL)
	return err
}

// DeleteProvider removes a provider configuration.
func (s *Store) DeleteProvider(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM llm_providers WHERE id = $1`, id)
	return err
}

// SetDefaultProvider marks id as the sole default provider.
func (s *Store) SetDefaultProvider(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE llm_providers SET is_default = FALSE WHERE is_default`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE llm_providers SET is_default = TRUE WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
