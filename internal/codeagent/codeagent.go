// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package codeagent runs a bounded tool-use loop over a project's
// local clone to answer code-level questions: search, read, list, and
// find-definitions tools backed by ripgrep and the filesystem.
package codeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitlab-rag/indexer/internal/ai"
)

const maxIterations = 10
const maxFileBytes = 10000

const systemPrompt = `You are a code analysis agent. You have access to a cloned repository and can use tools to explore it.

Your goal is to answer questions about the codebase by:
1. Searching for relevant code patterns using ripgrep
2. Reading specific files to understand implementation details
3. Listing directories to understand project structure
4. Finding function/class definitions

Available tools:
- search_code: Search for patterns in code using ripgrep
- read_file: Read contents of a specific file
- list_directory: List files and directories
- find_definitions: Find function/class definitions matching a pattern

When you have gathered enough information, provide your final answer with:
- Clear explanation of what you found
- Specific file paths and line numbers when referencing code
- Code snippets when relevant

If you cannot find relevant information, say so clearly.`

// ToolCallRecord is one tool invocation the agent made, surfaced to
// the caller alongside the final answer.
type ToolCallRecord struct {
	Tool      string
	Arguments map[string]interface{}
}

// Result is the agent's final answer plus the tool calls it made
// getting there.
type Result struct {
	Answer    string
	ToolCalls []ToolCallRecord
}

// Agent runs the tool-use loop for one repository.
type Agent struct {
	ai *ai.Client
}

// New builds an Agent.
func New(client *ai.Client) *Agent {
	return &Agent{ai: client}
}

// Analyze answers query against the repository checked out at
// repoPath. Callers are responsible for ensuring the clone exists
// (the orchestrator's code stage already maintains it).
func (a *Agent) Analyze(ctx context.Context, query, repoPath string) (*Result, error) {
	if _, err := os.Stat(repoPath); err != nil {
		return &Result{Answer: "Repository has not been cloned. Please index the project first."}, nil
	}

	messages := []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Repository: %s\n\nQuestion: %s", repoPath, query)},
	}

	var calls []ToolCallRecord
	for i := 0; i < maxIterations; i++ {
		resp, err := a.ai.Complete(ctx, messages, ai.CompleteOptions{Tools: tools()})
		if err != nil {
			return nil, fmt.Errorf("code agent: completion failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			answer := resp.Content
			if answer == "" {
				answer = "Unable to find relevant information."
			}
			return &Result{Answer: answer, ToolCalls: calls}, nil
		}

		messages = append(messages, ai.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = map[string]interface{}{}
			}
			calls = append(calls, ToolCallRecord{Tool: call.Function.Name, Arguments: args})

			result := executeTool(repoPath, call.Function.Name, args)
			messages = append(messages, ai.Message{Role: "tool", ToolCallID: call.ID, Content: result})
		}
	}

	return &Result{
		Answer:    "Analysis reached maximum iterations. Please try a more specific query.",
		ToolCalls: calls,
	}, nil
}

func tools() []ai.Tool {
	return []ai.Tool{
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "search_code",
				Description: "Search for patterns in code using ripgrep. Returns matching lines with context.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"pattern":   map[string]interface{}{"type": "string", "description": "The search pattern (regex supported)"},
						"file_type": map[string]interface{}{"type": "string", "description": "Optional: filter by file type (python, javascript, typescript, go, rust, java)"},
					},
					"required": []string{"pattern"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "read_file",
				Description: "Read the contents of a specific file",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"file_path": map[string]interface{}{"type": "string", "description": "Path to the file relative to repository root"},
					},
					"required": []string{"file_path"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "list_directory",
				Description: "List files and directories in a path",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"dir_path": map[string]interface{}{"type": "string", "description": "Directory path relative to repository root (use '.' for root)"},
					},
					"required": []string{"dir_path"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        "find_definitions",
				Description: "Find function or class definitions matching a pattern",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"pattern":  map[string]interface{}{"type": "string", "description": "Name pattern to search for (partial matches work)"},
						"language": map[string]interface{}{"type": "string", "description": "Optional: filter by language"},
					},
					"required": []string{"pattern"},
				},
			},
		},
	}
}

func executeTool(repoPath, name string, args map[string]interface{}) string {
	switch name {
	case "search_code":
		pattern, _ := args["pattern"].(string)
		fileType, _ := args["file_type"].(string)
		return searchCode(repoPath, pattern, fileType)
	case "read_file":
		path, _ := args["file_path"].(string)
		return readFile(repoPath, path)
	case "list_directory":
		dir, ok := args["dir_path"].(string)
		if !ok || dir == "" {
			dir = "."
		}
		return listDirectory(repoPath, dir)
	case "find_definitions":
		pattern, _ := args["pattern"].(string)
		language, _ := args["language"].(string)
		return findDefinitions(repoPath, pattern, language)
	default:
		return fmt.Sprintf("Unknown tool: %s", name)
	}
}

// validatePath resolves relPath against repoPath and rejects anything
// that escapes the repository root.
func validatePath(repoPath, relPath string) (string, bool) {
	root, err := filepath.Abs(repoPath)
	if err != nil {
		return "", false
	}
	full, err := filepath.Abs(filepath.Join(root, relPath))
	if err != nil {
		return "", false
	}
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func readFile(repoPath, relPath string) string {
	full, ok := validatePath(repoPath, relPath)
	if !ok {
		return fmt.Sprintf("Error: Invalid path - %s", relPath)
	}
	info, err := os.Stat(full)
	if err != nil {
		return fmt.Sprintf("Error: File not found - %s", relPath)
	}
	if info.IsDir() {
		return fmt.Sprintf("Error: Not a file - %s", relPath)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err)
	}
	text := string(content)
	if len(text) > maxFileBytes {
		text = text[:maxFileBytes] + "\n... (truncated)"
	}
	return text
}

func listDirectory(repoPath, relPath string) string {
	full, ok := validatePath(repoPath, relPath)
	if !ok {
		return fmt.Sprintf("Error: Invalid path - %s", relPath)
	}
	info, err := os.Stat(full)
	if err != nil {
		return fmt.Sprintf("Error: Directory not found - %s", relPath)
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: Not a directory - %s", relPath)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Sprintf("Error listing directory: %v", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "Empty directory."
	}

	var b strings.Builder
	for i, name := range names {
		full := filepath.Join(full, name)
		prefix := "[FILE]"
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			prefix = "[DIR] "
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s", prefix, name)
	}
	return b.String()
}

func findDefinitions(repoPath, pattern, language string) string {
	prefixes := []string{"def ", "class ", "function ", "const ", "async def ", "async function "}
	var results []string
	for _, prefix := range prefixes {
		result := searchCode(repoPath, prefix+pattern, language)
		if result != "" && !strings.Contains(result, "No matches found") {
			results = append(results, result)
		}
	}
	if len(results) == 0 {
		return fmt.Sprintf("No definitions found for '%s'.", pattern)
	}
	return strings.Join(results, "\n")
}
