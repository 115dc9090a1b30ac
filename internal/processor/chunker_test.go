// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package processor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitlab-rag/indexer/internal/gitlab"
)

func newTestChunker(t *testing.T) *Chunker {
	t.Helper()
	c, err := NewChunker(50, 10)
	require.NoError(t, err)
	return c
}

func TestSemanticChunk_ShortText(t *testing.T) {
	c := newTestChunker(t)
	chunks := c.semanticChunk("This is a short paragraph.", map[string]interface{}{"type": "test"})

	require.Len(t, chunks, 1)
	assert.Equal(t, "This is a short paragraph.", chunks[0].Content)
	assert.Equal(t, "test", chunks[0].Metadata["type"])
}

func TestSemanticChunk_EmptyText(t *testing.T) {
	c := newTestChunker(t)
	chunks := c.semanticChunk("   \n\n  ", map[string]interface{}{})
	assert.Empty(t, chunks)
}

func TestSemanticChunk_MultipleParagraphsOverflow(t *testing.T) {
	c := newTestChunker(t)
	para := strings.Repeat("word ", 30)
	text := para + "\n\n" + para + "\n\n" + para

	chunks := c.semanticChunk(text, map[string]interface{}{"type": "test"})
	require.GreaterOrEqual(t, len(chunks), 2)

	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, c.chunkSize+c.chunkOverlap)
	}
}

func TestSemanticChunk_OversizedParagraphFallsBackToWindowing(t *testing.T) {
	c := newTestChunker(t)
	hugeParagraph := strings.Repeat("token ", 500)

	chunks := c.semanticChunk(hugeParagraph, map[string]interface{}{"type": "test"})
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, c.chunkSize)
	}
}

func TestChunkIssue_MetadataAndDescription(t *testing.T) {
	c := newTestChunker(t)
	issue := gitlab.Issue{
		ID:          1,
		IID:         42,
		Title:       "Fix login bug",
		Description: strings.Repeat("The login flow breaks when the session expires mid-request. ", 40),
		State:       "opened",
		Author:      gitlab.Author{Username: "alice"},
		Labels:      []string{"bug", "auth"},
		CreatedAt:   time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		WebURL:      "https://gitlab.example.com/group/proj/-/issues/42",
	}

	chunks := c.ChunkIssue(issue, 7)
	require.GreaterOrEqual(t, len(chunks), 2)

	meta := chunks[0]
	assert.Equal(t, "issue", meta.Metadata["type"])
	assert.Equal(t, "metadata", meta.Metadata["subtype"])
	assert.Contains(t, meta.Content, "Issue #42: Fix login bug")
	assert.Contains(t, meta.Content, "Labels: bug, auth")

	desc := chunks[1]
	assert.Equal(t, "description", desc.Metadata["subtype"])
}

func TestChunkComment_SkipsSystemAndEmpty(t *testing.T) {
	c := newTestChunker(t)

	systemNote := gitlab.Note{ID: 1, Body: "changed the description", System: true}
	assert.Empty(t, c.ChunkComment(systemNote, "issue", 42, 7))

	emptyNote := gitlab.Note{ID: 2, Body: "   "}
	assert.Empty(t, c.ChunkComment(emptyNote, "issue", 42, 7))

	realNote := gitlab.Note{ID: 3, Body: "I can reproduce this on staging.", Author: gitlab.Author{Username: "bob"}}
	chunks := c.ChunkComment(realNote, "issue", 42, 7)
	require.Len(t, chunks, 1)
	assert.Equal(t, "comment", chunks[0].Metadata["type"])
	assert.Equal(t, int64(42), chunks[0].Metadata["parent_iid"])
}

func TestChunkMergeRequest_Metadata(t *testing.T) {
	c := newTestChunker(t)
	mr := gitlab.MergeRequest{
		ID:           5,
		IID:          12,
		Title:        "Add retry logic",
		State:        "opened",
		Author:       gitlab.Author{Username: "carol"},
		SourceBranch: "feature/retry",
		TargetBranch: "main",
		CreatedAt:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		WebURL:       "https://gitlab.example.com/group/proj/-/merge_requests/12",
	}

	chunks := c.ChunkMergeRequest(mr, 7)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Merge Request !12: Add retry logic")
	assert.Contains(t, chunks[0].Content, "Source: feature/retry -> main")
}

func TestChunkReadme_PrependsHeader(t *testing.T) {
	c := newTestChunker(t)
	chunks := c.ChunkReadme("## Usage\n\nRun the binary.", 7, "proj", "https://gitlab.example.com/group/proj")

	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Content, "# Project README: proj")
	assert.Contains(t, chunks[0].Content, "https://gitlab.example.com/group/proj")
}

func TestChunkReadme_Empty(t *testing.T) {
	c := newTestChunker(t)
	assert.Empty(t, c.ChunkReadme("   ", 7, "proj", "https://example.com"))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "python", detectLanguage("src/main.py"))
	assert.Equal(t, "typescript", detectLanguage("src/App.tsx"))
	assert.Equal(t, "unknown", detectLanguage("Makefile"))
}

func TestChunkCodeFile_PythonSyntaxAware(t *testing.T) {
	c := newTestChunker(t)
	content := "import os\n\ndef first():\n    return 1\n\n\nclass Thing:\n    def method(self):\n        return 2\n"

	chunks := c.ChunkCodeFile("pkg/mod.py", content, 7)
	require.NotEmpty(t, chunks)

	var sawFunction, sawClass bool
	for _, ch := range chunks {
		switch ch.Metadata["block_type"] {
		case "function":
			sawFunction = true
		case "class":
			sawClass = true
		}
	}
	assert.True(t, sawFunction)
	assert.True(t, sawClass)
}

func TestChunkCodeFile_FallsBackToLineWindowing(t *testing.T) {
	c := newTestChunker(t)
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("SELECT * FROM widgets WHERE id = 1;\n")
	}

	chunks := c.ChunkCodeFile("db/seed.sql", b.String(), 7)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "sql", chunks[0].Metadata["language"])
}

func TestChunkCodeFile_EmptyContent(t *testing.T) {
	c := newTestChunker(t)
	assert.Empty(t, c.ChunkCodeFile("a.py", "", 7))
}
