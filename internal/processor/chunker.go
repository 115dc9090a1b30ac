// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package processor turns GitLab content (issues, merge requests,
// comments, code files, READMEs) into token-bounded, overlap-seeded
// chunks ready for embedding.
package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gitlab-rag/indexer/internal/gitlab"
	"github.com/gitlab-rag/indexer/internal/tokenizer"
)

// Chunk is one unit of content ready to be embedded and stored.
type Chunk struct {
	Content    string
	Metadata   map[string]interface{}
	TokenCount int
}

// Chunker splits content along token and paragraph boundaries.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	enc          *tokenizer.Encoder
}

// NewChunker builds a Chunker with the given token budget per chunk
// and the given token overlap carried from one chunk into the next.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	enc, err := tokenizer.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to build chunker: %w", err)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap, enc: enc}, nil
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// splitLargeText token-windows text that alone exceeds chunkSize.
func (c *Chunker) splitLargeText(text string, baseMetadata map[string]interface{}) []Chunk {
	tokens := c.enc.Encode(text)
	var chunks []Chunk

	start := 0
	for start < len(tokens) {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunkTokens := tokens[start:end]
		chunkText := c.enc.Decode(chunkTokens)

		chunks = append(chunks, Chunk{
			Content:    chunkText,
			Metadata:   cloneMeta(baseMetadata),
			TokenCount: len(chunkTokens),
		})

		if end < len(tokens) {
			start = end - c.chunkOverlap
		} else {
			start = end
		}
	}
	return chunks
}

// semanticChunk splits text into paragraph-respecting chunks, flushing
// a chunk whenever the next paragraph would overflow the token budget
// and reseeding the next chunk with the trailing overlap of the last.
func (c *Chunker) semanticChunk(text string, baseMetadata map[string]interface{}) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var chunks []Chunk
	currentChunk := ""
	currentTokens := 0

	for _, para := range paragraphs {
		paraTokens := c.enc.Count(para)

		if paraTokens > c.chunkSize {
			if currentChunk != "" {
				chunks = append(chunks, Chunk{
					Content:    strings.TrimSpace(currentChunk),
					Metadata:   cloneMeta(baseMetadata),
					TokenCount: currentTokens,
				})
				currentChunk = ""
				currentTokens = 0
			}
			chunks = append(chunks, c.splitLargeText(para, baseMetadata)...)
			continue
		}

		if currentTokens+paraTokens > c.chunkSize {
			if currentChunk != "" {
				chunks = append(chunks, Chunk{
					Content:    strings.TrimSpace(currentChunk),
					Metadata:   cloneMeta(baseMetadata),
					TokenCount: currentTokens,
				})
			}

			overlapText := c.enc.Tail(currentChunk, c.chunkOverlap)
			if overlapText != "" {
				currentChunk = overlapText + "\n\n" + para
			} else {
				currentChunk = para
			}
			currentTokens = c.enc.Count(currentChunk)
		} else {
			if currentChunk != "" {
				currentChunk = currentChunk + "\n\n" + para
			} else {
				currentChunk = para
			}
			currentTokens += paraTokens
		}
	}

	if strings.TrimSpace(currentChunk) != "" {
		chunks = append(chunks, Chunk{
			Content:    strings.TrimSpace(currentChunk),
			Metadata:   cloneMeta(baseMetadata),
			TokenCount: c.enc.Count(currentChunk),
		})
	}

	return chunks
}

// ChunkIssue produces a metadata chunk plus semantically-chunked
// description for an issue.
func (c *Chunker) ChunkIssue(issue gitlab.Issue, projectID int64) []Chunk {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d: %s\n\n", issue.IID, issue.Title)
	fmt.Fprintf(&b, "State: %s\n", issue.State)
	fmt.Fprintf(&b, "Author: %s\n", issue.Author.Username)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.Milestone != nil {
		fmt.Fprintf(&b, "Milestone: %s\n", issue.Milestone.Title)
	}
	fmt.Fprintf(&b, "Created: %s\n", issue.CreatedAt.Format("2006-01-02T15:04:05Z"))
	if issue.ClosedAt != nil {
		fmt.Fprintf(&b, "Closed: %s\n", issue.ClosedAt.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintf(&b, "URL: %s", issue.WebURL)
	titleContent := b.String()

	chunks := []Chunk{{
		Content: titleContent,
		Metadata: map[string]interface{}{
			"type":       "issue",
			"subtype":    "metadata",
			"project_id": projectID,
			"issue_id":   issue.ID,
			"issue_iid":  issue.IID,
			"title":      issue.Title,
			"state":      issue.State,
			"labels":     issue.Labels,
			"created_at": issue.CreatedAt,
			"web_url":    issue.WebURL,
		},
		TokenCount: c.enc.Count(titleContent),
	}}

	if strings.TrimSpace(issue.Description) != "" {
		chunks = append(chunks, c.semanticChunk(issue.Description, map[string]interface{}{
			"type":       "issue",
			"subtype":    "description",
			"project_id": projectID,
			"issue_id":   issue.ID,
			"issue_iid":  issue.IID,
			"title":      issue.Title,
			"web_url":    issue.WebURL,
		})...)
	}

	return chunks
}

// ChunkComment skips system-generated or empty notes and semantically
// chunks the remainder with parent context attached.
func (c *Chunker) ChunkComment(note gitlab.Note, parentType string, parentIID, projectID int64) []Chunk {
	if note.System || strings.TrimSpace(note.Body) == "" {
		return nil
	}

	metadata := map[string]interface{}{
		"type":        "comment",
		"parent_type": parentType,
		"parent_iid":  parentIID,
		"project_id":  projectID,
		"comment_id":  note.ID,
		"author":      note.Author.Username,
		"created_at":  note.CreatedAt,
	}

	return c.semanticChunk(note.Body, metadata)
}

// ChunkMergeRequest mirrors ChunkIssue for merge requests.
func (c *Chunker) ChunkMergeRequest(mr gitlab.MergeRequest, projectID int64) []Chunk {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge Request !%d: %s\n\n", mr.IID, mr.Title)
	fmt.Fprintf(&b, "State: %s\n", mr.State)
	fmt.Fprintf(&b, "Author: %s\n", mr.Author.Username)
	fmt.Fprintf(&b, "Source: %s -> %s\n", mr.SourceBranch, mr.TargetBranch)
	if len(mr.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(mr.Labels, ", "))
	}
	fmt.Fprintf(&b, "Created: %s\n", mr.CreatedAt.Format("2006-01-02T15:04:05Z"))
	if mr.MergedAt != nil {
		fmt.Fprintf(&b, "Merged: %s\n", mr.MergedAt.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Fprintf(&b, "URL: %s", mr.WebURL)
	titleContent := b.String()

	chunks := []Chunk{{
		Content: titleContent,
		Metadata: map[string]interface{}{
			"type":          "merge_request",
			"subtype":       "metadata",
			"project_id":    projectID,
			"mr_id":         mr.ID,
			"mr_iid":        mr.IID,
			"title":         mr.Title,
			"state":         mr.State,
			"labels":        mr.Labels,
			"source_branch": mr.SourceBranch,
			"target_branch": mr.TargetBranch,
			"created_at":    mr.CreatedAt,
			"web_url":       mr.WebURL,
		},
		TokenCount: c.enc.Count(titleContent),
	}}

	if strings.TrimSpace(mr.Description) != "" {
		chunks = append(chunks, c.semanticChunk(mr.Description, map[string]interface{}{
			"type":       "merge_request",
			"subtype":    "description",
			"project_id": projectID,
			"mr_id":      mr.ID,
			"mr_iid":     mr.IID,
			"title":      mr.Title,
			"web_url":    mr.WebURL,
		})...)
	}

	return chunks
}

// ChunkReadme prepends a project-context header, then semantically
// chunks the whole document as markdown.
func (c *Chunker) ChunkReadme(content string, projectID int64, projectName, webURL string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	header := fmt.Sprintf("# Project README: %s\nURL: %s\n---\n", projectName, webURL)

	baseMetadata := map[string]interface{}{
		"type":         "readme",
		"project_id":   projectID,
		"project_name": projectName,
		"web_url":      webURL,
		"file_path":    "README.md",
	}

	return c.semanticChunk(header+content, baseMetadata)
}

var extToLanguage = map[string]string{
	".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".java": "java",
	".go": "go", ".rs": "rust", ".rb": "ruby", ".php": "php",
	".c": "c", ".cpp": "cpp", ".h": "c", ".hpp": "cpp",
	".cs": "csharp", ".swift": "swift", ".kt": "kotlin",
	".scala": "scala", ".vue": "vue", ".svelte": "svelte",
	".md": "markdown", ".json": "json", ".yaml": "yaml", ".yml": "yaml",
	".toml": "toml", ".xml": "xml", ".html": "html", ".css": "css",
	".scss": "scss", ".sql": "sql", ".sh": "bash", ".bash": "bash", ".zsh": "zsh",
}

func detectLanguage(filePath string) string {
	lower := strings.ToLower(filePath)
	for ext, lang := range extToLanguage {
		if strings.HasSuffix(lower, ext) {
			return lang
		}
	}
	return "unknown"
}

type blockPattern struct {
	re        *regexp.Regexp
	blockType string
}

var pythonPatterns = []blockPattern{
	{regexp.MustCompile(`^(class\s+\w+)`), "class"},
	{regexp.MustCompile(`^(def\s+\w+)`), "function"},
	{regexp.MustCompile(`^(async\s+def\s+\w+)`), "async_function"},
}

var jsPatterns = []blockPattern{
	{regexp.MustCompile(`^(class\s+\w+)`), "class"},
	{regexp.MustCompile(`^(function\s+\w+)`), "function"},
	{regexp.MustCompile(`^(const\s+\w+\s*=\s*(?:async\s*)?\()`), "arrow_function"},
	{regexp.MustCompile(`^(export\s+(?:default\s+)?(?:async\s+)?function)`), "function"},
}

// ChunkCodeFile chunks a source file by syntax block for the
// supported languages, falling back to a line-window split otherwise.
func (c *Chunker) ChunkCodeFile(filePath, content string, projectID int64) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	language := detectLanguage(filePath)
	baseMetadata := map[string]interface{}{
		"type":       "code",
		"project_id": projectID,
		"file_path":  filePath,
		"language":   language,
	}

	if language == "python" || language == "javascript" || language == "typescript" {
		chunks := c.chunkBySyntax(content, language, baseMetadata)
		if len(chunks) > 0 {
			return chunks
		}
	}

	return c.chunkByLines(content, baseMetadata)
}

func (c *Chunker) chunkBySyntax(content, language string, baseMetadata map[string]interface{}) []Chunk {
	var patterns []blockPattern
	switch language {
	case "python":
		patterns = pythonPatterns
	case "javascript", "typescript":
		patterns = jsPatterns
	default:
		return nil
	}

	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var currentBlock []string
	currentType := "module"
	blockStartLine := 0

	flush := func(endLine int) {
		if len(currentBlock) == 0 {
			return
		}
		blockContent := strings.Join(currentBlock, "\n")
		if strings.TrimSpace(blockContent) == "" {
			return
		}
		meta := cloneMeta(baseMetadata)
		meta["block_type"] = currentType
		meta["start_line"] = blockStartLine + 1
		meta["end_line"] = endLine
		chunks = append(chunks, c.semanticChunk(blockContent, meta)...)
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		matched := false
		for _, p := range patterns {
			if p.re.MatchString(trimmed) {
				flush(i)
				currentBlock = []string{line}
				currentType = p.blockType
				blockStartLine = i
				matched = true
				break
			}
		}
		if !matched {
			currentBlock = append(currentBlock, line)
		}
	}
	flush(len(lines))

	return chunks
}

func (c *Chunker) chunkByLines(content string, baseMetadata map[string]interface{}) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk

	var currentLines []string
	currentTokens := 0
	startLine := 0

	for i, line := range lines {
		lineTokens := c.enc.Count(line + "\n")

		if currentTokens+lineTokens > c.chunkSize && len(currentLines) > 0 {
			chunkContent := strings.Join(currentLines, "\n")
			meta := cloneMeta(baseMetadata)
			meta["start_line"] = startLine + 1
			meta["end_line"] = i
			chunks = append(chunks, Chunk{
				Content:    chunkContent,
				Metadata:   meta,
				TokenCount: currentTokens,
			})

			var overlapLines []string
			if len(currentLines) > 5 {
				overlapLines = append(overlapLines, currentLines[len(currentLines)-5:]...)
			}
			currentLines = append(append([]string{}, overlapLines...), line)
			currentTokens = c.enc.Count(strings.Join(currentLines, "\n"))
			startLine = i - len(overlapLines)
		} else {
			currentLines = append(currentLines, line)
			currentTokens += lineTokens
		}
	}

	if len(currentLines) > 0 {
		chunkContent := strings.Join(currentLines, "\n")
		meta := cloneMeta(baseMetadata)
		meta["start_line"] = startLine + 1
		meta["end_line"] = len(lines)
		chunks = append(chunks, Chunk{
			Content:    chunkContent,
			Metadata:   meta,
			TokenCount: c.enc.Count(chunkContent),
		})
	}

	return chunks
}
