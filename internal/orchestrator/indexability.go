// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitlab-rag/indexer/internal/processor"
)

const maxIndexableFileSize = 500 * 1024

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, "venv": true,
	".venv": true, "dist": true, "build": true, ".next": true, "coverage": true,
	".cache": true, "vendor": true, "target": true,
}

var skipExtensions = map[string]bool{
	".pyc": true, ".pyo": true, ".so": true, ".dll": true, ".exe": true, ".bin": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".ico": true, ".svg": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".lock": true, ".min.js": true, ".min.css": true,
}

// isIndexableFile applies the code-walk skip rules: skip directories,
// binary/media/archive extensions, dotfiles, and anything over the
// size cap.
func isIndexableFile(relPath string, size int64) bool {
	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		if skipDirs[part] {
			return false
		}
	}

	base := filepath.Base(relPath)
	if strings.HasPrefix(base, ".") {
		return false
	}

	lower := strings.ToLower(base)
	for ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}

	if size > maxIndexableFileSize {
		return false
	}
	return true
}

// walkIndexableFiles returns every indexable file's path relative to
// root.
func walkIndexableFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if isIndexableFile(rel, info.Size()) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// chunkCodeFile reads a file under repoPath and chunks it via the
// configured chunker.
func (o *Orchestrator) chunkCodeFile(repoPath, relPath string, projectID int64) ([]processor.Chunk, error) {
	content, err := os.ReadFile(filepath.Join(repoPath, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	return o.chunker.ChunkCodeFile(relPath, string(content), projectID), nil
}
