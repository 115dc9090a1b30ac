// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package codeagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const searchTimeout = 30 * time.Second

var fileTypeMap = map[string]string{
	"python":     "py",
	"javascript": "js",
	"typescript": "ts",
	"go":         "go",
	"rust":       "rust",
	"java":       "java",
}

type rgMatch struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Lines      struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"data"`
}

// searchCode shells out to ripgrep with JSON output, 2 lines of
// context and at most 20 matches per file, and renders the result as grouped
// file/line text for the model to read.
func searchCode(repoPath, pattern, fileType string) string {
	args := []string{"--json", "-C", "2", "-m", "20", pattern}
	if fileType != "" {
		rgType := fileType
		if mapped, ok := fileTypeMap[fileType]; ok {
			rgType = mapped
		}
		args = append(args, "-t", rgType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", args...)
	cmd.Dir = repoPath
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "Search timed out."
		}
		if _, ok := err.(*exec.ExitError); ok {
			return "No matches found."
		}
		return fmt.Sprintf("Search error: %v", err)
	}

	return renderMatches(stdout.Bytes())
}

func renderMatches(raw []byte) string {
	var lines []string
	currentFile := ""

	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m rgMatch
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		if m.Type != "match" {
			continue
		}

		path := m.Data.Path.Text
		if path != currentFile {
			currentFile = path
			lines = append(lines, fmt.Sprintf("\n--- %s ---", path))
		}
		text := strings.TrimSpace(m.Data.Lines.Text)
		lines = append(lines, fmt.Sprintf("  %d: %s", m.Data.LineNumber, text))
	}

	if len(lines) == 0 {
		return "No matches found."
	}
	return strings.Join(lines, "\n")
}
