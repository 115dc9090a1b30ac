// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsIndexableFile(t *testing.T) {
	cases := []struct {
		name string
		path string
		size int64
		want bool
	}{
		{"plain go file", "main.go", 1024, true},
		{"under node_modules", "node_modules/pkg/index.js", 512, false},
		{"nested vendor dir", "vendor/github.com/foo/bar.go", 512, false},
		{"dotfile", ".env", 128, false},
		{"compiled pyc", "app/module.pyc", 512, false},
		{"image asset", "assets/logo.png", 2048, false},
		{"lockfile", "yarn.lock", 4096, false},
		{"oversized source file", "big.go", maxIndexableFileSize + 1, false},
		{"exactly at size cap", "ok.go", maxIndexableFileSize, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isIndexableFile(tc.path, tc.size))
		})
	}
}

func TestWalkIndexableFiles(t *testing.T) {
	root := t.TempDir()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}

	must(os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	must(os.WriteFile(filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("skip"), 0o644))
	must(os.MkdirAll(filepath.Join(root, "src"), 0o755))
	must(os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0o644))
	must(os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi"), 0o644))
	must(os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log"), 0o644))

	files, err := walkIndexableFiles(root)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join("src", "main.go"), "README.md"}, files)
}
