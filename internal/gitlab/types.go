// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package gitlab

import "time"

// Author identifies the GitLab user who created an issue, MR, or note.
type Author struct {
	Username string `json:"username"`
}

// Milestone is the subset of milestone fields the chunker cares about.
type Milestone struct {
	Title string `json:"title"`
}

// Project mirrors the fields of a GitLab project needed by the indexer.
type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	DefaultBranch     string `json:"default_branch"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
}

// Issue mirrors the GitLab issue resource.
type Issue struct {
	ID          int64      `json:"id"`
	IID         int64      `json:"iid"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	Author      Author     `json:"author"`
	Labels      []string   `json:"labels"`
	Milestone   *Milestone `json:"milestone"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	WebURL      string     `json:"web_url"`
}

// MergeRequest mirrors the GitLab merge request resource.
type MergeRequest struct {
	ID            int64      `json:"id"`
	IID           int64      `json:"iid"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	State         string     `json:"state"`
	Author        Author     `json:"author"`
	Labels        []string   `json:"labels"`
	SourceBranch  string     `json:"source_branch"`
	TargetBranch  string     `json:"target_branch"`
	CreatedAt     time.Time  `json:"created_at"`
	MergedAt      *time.Time `json:"merged_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	WebURL        string     `json:"web_url"`
}

// Note is a comment on an issue or merge request.
type Note struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    Author    `json:"author"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

// TreeEntry is one entry from a repository tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
}

// IssueListOptions filters a ListIssues call.
type IssueListOptions struct {
	State        string // "opened", "closed", "all"
	Labels       []string
	Search       string
	UpdatedAfter *time.Time
	UpdatedBefore *time.Time
}

// MergeRequestListOptions filters a ListMergeRequests call.
type MergeRequestListOptions struct {
	State         string
	Labels        []string
	Search        string
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}
