// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manifest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const conversationColumns = `id, title, provider_id, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.Title, &c.ProviderID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation starts a new conversation, optionally pinned to
// a provider (nil uses whichever is marked default at send time).
func (s *Store) CreateConversation(ctx context.Context, title string, providerID *int64) (*Conversation, error) {
	if title == "" {
		title = "New conversation"
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (title, provider_id) VALUES ($1, $2)
		RETURNING `+conversationColumns, title, providerID)
	return scanConversation(row)
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// ListConversations returns conversations newest-first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+conversationColumns+` FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateConversationTitle renames a conversation.
func (s *Store) UpdateConversationTitle(ctx context.Context, id int64, title string) error {
	_, err := s.pool.Exec(ctx, `UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`, id, title)
	return err
}

// DeleteConversation removes a conversation; its messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

// AddMessage appends a turn to a conversation and bumps its updated_at.
func (s *Store) AddMessage(ctx context.Context, conversationID int64, role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3)
		RETURNING id, conversation_id, role, content, created_at`,
		conversationID, role, content)

	var m Message
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a conversation's messages oldest-first.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM messages
		WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
