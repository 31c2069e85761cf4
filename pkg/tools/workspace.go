// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools provides the built-in filesystem leaf operations that a
// delegated registry can run without an external MCP server. Every path is
// resolved inside a single workspace root.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace confines file operations to a root directory.
type Workspace struct {
	root string
}

// NewWorkspace returns a workspace rooted at dir. The directory is created
// when missing.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", abs, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Resolve maps path to an absolute path inside the workspace. Relative
// paths are joined to the root. Symlinks are resolved for the deepest
// existing ancestor so a link cannot lead outside the root.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("null byte in path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.root, path)
	}
	path = filepath.Clean(path)

	resolved, err := resolveExisting(path)
	if err != nil {
		return "", err
	}
	if !w.contains(resolved) {
		return "", fmt.Errorf("path %s is outside the workspace", path)
	}
	return resolved, nil
}

// Rel returns path relative to the root, or path unchanged when it cannot
// be expressed that way.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (w *Workspace) contains(path string) bool {
	if path == w.root {
		return true
	}
	return strings.HasPrefix(path, w.root+string(filepath.Separator))
}

// resolveExisting evaluates symlinks on the longest existing prefix of path
// and appends the remaining, not yet created, elements.
func resolveExisting(path string) (string, error) {
	var rest []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve %s: %w", cur, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
