// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gitlab-rag/indexer/internal/logger"
)

const (
	perPage      = 100
	maxPages     = 100
	requestTimeout = 30 * time.Second
	maxAttempts  = 3
	backoffBase  = 1 * time.Second
	backoffCap   = 10 * time.Second
)

// Client is a REST v4 client for a single GitLab instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient builds a Client. baseURL is the GitLab instance root, e.g.
// "https://gitlab.example.com". token is a personal access token sent
// via the PRIVATE-TOKEN header.
func NewClient(baseURL, token string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		// 10 req/s == one request per 100ms, per spec's pacing contract.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		log:     log,
	}
}

// apiError represents a non-2xx response that should not be retried.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gitlab api error: %d - %s", e.StatusCode, e.Body)
}

// isTransient reports whether an HTTP status code should be retried.
func isTransient(status int) bool {
	return status >= 500 || status == 429
}

// do performs a single HTTP request with rate limiting and retry, and
// decodes a JSON response body into out (unless out is nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out interface{}) (http.Header, error) {
	u := c.baseURL + "/api/v4" + path
	if query != nil && len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	delay := backoffBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("PRIVATE-TOKEN", c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logf("gitlab request error (attempt %d/%d): %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				time.Sleep(delay)
				delay = nextDelay(delay)
				continue
			}
			return nil, fmt.Errorf("gitlab request failed: %w", lastErr)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response body: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out != nil && len(respBody) > 0 {
				if raw, ok := out.(*[]byte); ok {
					*raw = respBody
				} else if err := json.Unmarshal(respBody, out); err != nil {
					return nil, fmt.Errorf("failed to decode response: %w", err)
				}
			}
			return resp.Header, nil
		}

		if isTransient(resp.StatusCode) && attempt < maxAttempts {
			c.logf("gitlab transient error %d on attempt %d/%d, retrying", resp.StatusCode, attempt, maxAttempts)
			time.Sleep(delay)
			delay = nextDelay(delay)
			lastErr = &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		}

		return resp.Header, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return nil, lastErr
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func (c *Client) logf(format string, v ...interface{}) {
	if c.log != nil {
		c.log.Warnf(format, v...)
	}
}

// IsNotFound reports whether err is a 404 from the GitLab API.
func IsNotFound(err error) bool {
	var apiErr *apiError
	if e, ok := err.(*apiError); ok {
		apiErr = e
	}
	return apiErr != nil && apiErr.StatusCode == http.StatusNotFound
}

// paginate drives repeated GET calls following X-Next-Page, falling
// back to a per_page=100 / 100-page hard cap when the header is absent.
// decode is called once per page with the raw page body.
func (c *Client) paginate(ctx context.Context, path string, query url.Values, decode func(body []byte) (count int, err error)) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(perPage))

	page := 1
	for p := 0; p < maxPages; p++ {
		query.Set("page", strconv.Itoa(page))

		var raw json.RawMessage
		headers, err := c.do(ctx, http.MethodGet, path, query, nil, &raw)
		if err != nil {
			return err
		}

		count, err := decode(raw)
		if err != nil {
			return err
		}

		next := headers.Get("X-Next-Page")
		if next != "" {
			nextPage, convErr := strconv.Atoi(next)
			if convErr != nil {
				return nil
			}
			page = nextPage
			continue
		}

		// No pagination header: rely on a short-page heuristic.
		if count < perPage {
			return nil
		}
		page++
	}
	return nil
}

// ListProjects fetches every project the token has access to.
func (c *Client) ListProjects(ctx context.Context, membership bool) ([]Project, error) {
	var all []Project
	q := url.Values{}
	if membership {
		q.Set("membership", "true")
	}
	err := c.paginate(ctx, "/projects", q, func(body []byte) (int, error) {
		var page []Project
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode projects page: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

// GetProject fetches a single project by id.
func (c *Client) GetProject(ctx context.Context, projectID int64) (*Project, error) {
	var p Project
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", projectID), nil, nil, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListIssues fetches all issues matching opts, paginated.
func (c *Client) ListIssues(ctx context.Context, projectID int64, opts IssueListOptions) ([]Issue, error) {
	q := issueQuery(opts)
	var all []Issue
	err := c.paginate(ctx, fmt.Sprintf("/projects/%d/issues", projectID), q, func(body []byte) (int, error) {
		var page []Issue
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode issues page: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

func issueQuery(opts IssueListOptions) url.Values {
	q := url.Values{"order_by": {"updated_at"}, "sort": {"desc"}}
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	if len(opts.Labels) > 0 {
		q.Set("labels", strings.Join(opts.Labels, ","))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.UpdatedAfter != nil {
		q.Set("updated_after", opts.UpdatedAfter.Format(time.RFC3339))
	}
	if opts.UpdatedBefore != nil {
		q.Set("updated_before", opts.UpdatedBefore.Format(time.RFC3339))
	}
	return q
}

// GetIssue fetches a single issue by project-scoped iid.
func (c *Client) GetIssue(ctx context.Context, projectID, iid int64) (*Issue, error) {
	var issue Issue
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d/issues/%d", projectID, iid), nil, nil, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssueNotes returns an issue's notes in ascending created_at order.
func (c *Client) ListIssueNotes(ctx context.Context, projectID, issueIID int64) ([]Note, error) {
	q := url.Values{"order_by": {"created_at"}, "sort": {"asc"}}
	var all []Note
	err := c.paginate(ctx, fmt.Sprintf("/projects/%d/issues/%d/notes", projectID, issueIID), q, func(body []byte) (int, error) {
		var page []Note
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode issue notes page: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

// ListMergeRequests fetches all merge requests matching opts.
func (c *Client) ListMergeRequests(ctx context.Context, projectID int64, opts MergeRequestListOptions) ([]MergeRequest, error) {
	q := mrQuery(opts)
	var all []MergeRequest
	err := c.paginate(ctx, fmt.Sprintf("/projects/%d/merge_requests", projectID), q, func(body []byte) (int, error) {
		var page []MergeRequest
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode merge requests page: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

func mrQuery(opts MergeRequestListOptions) url.Values {
	q := url.Values{"order_by": {"updated_at"}, "sort": {"desc"}}
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	if len(opts.Labels) > 0 {
		q.Set("labels", strings.Join(opts.Labels, ","))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.UpdatedAfter != nil {
		q.Set("updated_after", opts.UpdatedAfter.Format(time.RFC3339))
	}
	if opts.UpdatedBefore != nil {
		q.Set("updated_before", opts.UpdatedBefore.Format(time.RFC3339))
	}
	return q
}

// GetMergeRequest fetches a single merge request by project-scoped iid.
func (c *Client) GetMergeRequest(ctx context.Context, projectID, iid int64) (*MergeRequest, error) {
	var mr MergeRequest
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d/merge_requests/%d", projectID, iid), nil, nil, &mr)
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

// ListMRNotes returns a merge request's notes in ascending created_at order.
func (c *Client) ListMRNotes(ctx context.Context, projectID, mrIID int64) ([]Note, error) {
	q := url.Values{"order_by": {"created_at"}, "sort": {"asc"}}
	var all []Note
	err := c.paginate(ctx, fmt.Sprintf("/projects/%d/merge_requests/%d/notes", projectID, mrIID), q, func(body []byte) (int, error) {
		var page []Note
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode mr notes page: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}

// ListIDs returns only the iids of the given kind ("issues" or
// "merge_requests"), used by the cleanup-deletions stage to detect
// items that no longer exist upstream.
func (c *Client) ListIDs(ctx context.Context, projectID int64, kind string) ([]int64, error) {
	var all []int64
	q := url.Values{}
	err := c.paginate(ctx, fmt.Sprintf("/projects/%d/%s", projectID, kind), q, func(body []byte) (int, error) {
		var page []struct {
			IID int64 `json:"iid"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode %s id page: %w", kind, err)
		}
		for _, p := range page {
			all = append(all, p.IID)
		}
		return len(page), nil
	})
	return all, err
}

// GetRawFile fetches a file's raw content at ref. Callers may swallow
// a 404 (use IsNotFound) for speculative probes such as README variants.
func (c *Client) GetRawFile(ctx context.Context, projectID int64, path, ref string) ([]byte, error) {
	encodedPath := url.PathEscape(path)
	apiPath := fmt.Sprintf("/projects/%d/repository/files/%s/raw", projectID, encodedPath)
	q := url.Values{"ref": {ref}}

	var body []byte
	if _, err := c.do(ctx, http.MethodGet, apiPath, q, nil, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// GetTree lists a repository tree at ref.
func (c *Client) GetTree(ctx context.Context, projectID int64, ref string, recursive bool) ([]TreeEntry, error) {
	q := url.Values{"ref": {ref}}
	if recursive {
		q.Set("recursive", "true")
	}
	var all []TreeEntry
	err := c.paginate(ctx, fmt.Sprintf("/projects/%d/repository/tree", projectID), q, func(body []byte) (int, error) {
		var page []TreeEntry
		if err := json.Unmarshal(body, &page); err != nil {
			return 0, fmt.Errorf("failed to decode tree page: %w", err)
		}
		all = append(all, page...)
		return len(page), nil
	})
	return all, err
}
