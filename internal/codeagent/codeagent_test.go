// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package codeagent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePathRejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, ok := validatePath(root, "../../etc/passwd")
	assert.False(t, ok)
}

func TestValidatePathAllowsNested(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	full, ok := validatePath(root, "src/main.go")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "main.go"), full)
}

func TestReadFileTruncatesLargeContent(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, maxFileBytes+500)
	for i := range big {
		big[i] = 'a'
	}
	assert.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))

	out := readFile(root, "big.txt")
	assert.Contains(t, out, "... (truncated)")
	assert.Less(t, len(out), len(big))
}

func TestReadFileMissing(t *testing.T) {
	root := t.TempDir()
	out := readFile(root, "missing.txt")
	assert.Contains(t, out, "not found")
}

func TestListDirectorySkipsDotfiles(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(root, "visible.go"), []byte("x"), 0o644))

	out := listDirectory(root, ".")
	assert.Contains(t, out, "visible.go")
	assert.NotContains(t, out, ".hidden")
}

func TestRenderMatchesNoMatches(t *testing.T) {
	assert.Equal(t, "No matches found.", renderMatches([]byte("")))
}

func TestRenderMatchesGroupsByFile(t *testing.T) {
	raw := []byte(`{"type":"match","data":{"path":{"text":"main.go"},"line_number":10,"lines":{"text":"func main() {"}}}`)
	out := renderMatches(raw)
	assert.Contains(t, out, "--- main.go ---")
	assert.Contains(t, out, "10: func main() {")
}
