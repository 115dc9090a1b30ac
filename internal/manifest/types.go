// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package manifest

import "time"

// Indexing status values a Project can carry. Transitions are driven
// by the orchestrator's per-project state machine.
const (
	StatusPending   = "pending"
	StatusIndexing  = "indexing"
	StatusSyncing   = "syncing"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusStopped   = "stopped"
)

// Item types an IndexedItem row can represent.
const (
	ItemTypeIssue        = "issue"
	ItemTypeMergeRequest = "merge_request"
	ItemTypeCode         = "code"
	ItemTypeReadme       = "readme"
	ItemTypeComment      = "comment"
)

// Project is the persistent record of a GitLab project under management.
type Project struct {
	ID                 int64
	GitlabID           int64
	Name               string
	PathWithNamespace  string
	DefaultBranch      string
	HTTPURLToRepo      string
	IsIndexed          bool
	IsSelected         bool
	IndexingStatus     string
	IndexingError      *string
	LastIndexedAt      *time.Time
	LastIndexedCommit  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IndexedItem links one piece of upstream content to the vector
// points it was chunked and embedded into.
type IndexedItem struct {
	ID             int64
	ProjectLocalID int64
	ItemType       string
	ItemID         string
	ItemIID        string
	QdrantPointIDs []string
	LastUpdatedAt  time.Time
}

// LLMProvider is a configured chat/completion backend a conversation
// can be pinned to.
type LLMProvider struct {
	ID        int64
	Name      string
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	IsDefault bool
	CreatedAt time.Time
}

// Conversation groups a sequence of chat messages.
type Conversation struct {
	ID         int64
	Title      string
	ProviderID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Message is one turn in a conversation.
type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      time.Time
}
