// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/steward/pkg/core"
)

const (
	OpReadFile         = "read_file"
	OpWriteFile        = "write_file"
	OpEditFile         = "edit_file"
	OpListFiles        = "list_files"
	OpGlob             = "glob"
	OpVerifyFileExists = "verify_file_exists"
)

// maxReadBytes caps how much of a file read_file returns.
const maxReadBytes = 256 * 1024

// Operations returns every built-in filesystem operation bound to ws.
func Operations(ws *Workspace) []core.Operation {
	return []core.Operation{
		ReadFile(ws),
		WriteFile(ws),
		EditFile(ws),
		ListFiles(ws),
		Glob(ws),
		VerifyFileExists(ws),
	}
}

func pathProperty(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// ReadFile returns the read_file operation. Optional offset and limit select
// a window of 1-based lines.
func ReadFile(ws *Workspace) core.Operation {
	return core.NewOperation(core.Descriptor{
		Name:        OpReadFile,
		Description: "Read a text file from the workspace. Use offset and limit to read a range of lines.",
		InputSchema: core.ObjectSchema(map[string]any{
			"path":   pathProperty("File path, relative to the workspace"),
			"offset": map[string]any{"type": "integer", "description": "First line to return (1-based)"},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return"},
		}, "path"),
	}, func(_ context.Context, args core.Args) core.Result {
		p, ok := core.StringArg(args, "path")
		if !ok {
			return core.Failure("Missing required parameter: path")
		}
		abs, err := ws.Resolve(p)
		if err != nil {
			return core.Failuref("Invalid path: %v", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return core.Failuref("File not found: %s", p)
			}
			return core.Failuref("Cannot access %s: %v", p, err)
		}
		if info.IsDir() {
			return core.Failuref("%s is a directory. Use list_files instead.", p)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return core.Failuref("Failed to read %s: %v", p, err)
		}

		truncated := false
		if len(data) > maxReadBytes {
			data = data[:maxReadBytes]
			truncated = true
		}
		content := string(data)

		offset := intArg(args, "offset", 0)
		limit := intArg(args, "limit", 0)
		if offset > 0 || limit > 0 {
			content = lineWindow(content, offset, limit)
		}
		if truncated {
			content += fmt.Sprintf("\n\n(truncated at %d bytes)", maxReadBytes)
		}
		return core.Success(content)
	})
}

// WriteFile returns the write_file operation. Parent directories are
// created and the file is replaced atomically.
func WriteFile(ws *Workspace) core.Operation {
	return core.NewOperation(core.Descriptor{
		Name:        OpWriteFile,
		Description: "Create or overwrite a file in the workspace with the given content.",
		InputSchema: core.ObjectSchema(map[string]any{
			"path":    pathProperty("File path, relative to the workspace"),
			"content": map[string]any{"type": "string", "description": "Full file content"},
		}, "path", "content"),
	}, func(_ context.Context, args core.Args) core.Result {
		p, ok := core.StringArg(args, "path")
		if !ok {
			return core.Failure("Missing required parameter: path")
		}
		content, ok := args["content"].(string)
		if !ok {
			return core.Failure("Missing required parameter: content")
		}
		abs, err := ws.Resolve(p)
		if err != nil {
			return core.Failuref("Invalid path: %v", err)
		}
		if err := atomicWrite(abs, []byte(content)); err != nil {
			return core.Failuref("Failed to write %s: %v", p, err)
		}
		return core.Success(fmt.Sprintf("Wrote %d bytes to %s", len(content), ws.Rel(abs)))
	})
}

// EditFile returns the edit_file operation. old_string must occur exactly
// once unless replace_all is set.
func EditFile(ws *Workspace) core.Operation {
	return core.NewOperation(core.Descriptor{
		Name:        OpEditFile,
		Description: "Replace text in a workspace file. old_string must be unique unless replace_all is true.",
		InputSchema: core.ObjectSchema(map[string]any{
			"path":        pathProperty("File path, relative to the workspace"),
			"old_string":  map[string]any{"type": "string", "description": "Text to replace"},
			"new_string":  map[string]any{"type": "string", "description": "Replacement text"},
			"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence"},
		}, "path", "old_string", "new_string"),
	}, func(_ context.Context, args core.Args) core.Result {
		p, ok := core.StringArg(args, "path")
		if !ok {
			return core.Failure("Missing required parameter: path")
		}
		oldStr, ok := core.StringArg(args, "old_string")
		if !ok {
			return core.Failure("Missing required parameter: old_string")
		}
		newStr, ok := args["new_string"].(string)
		if !ok {
			return core.Failure("Missing required parameter: new_string")
		}
		if oldStr == newStr {
			return core.Failure("new_string must be different from old_string")
		}
		abs, err := ws.Resolve(p)
		if err != nil {
			return core.Failuref("Invalid path: %v", err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return core.Failuref("File not found: %s", p)
			}
			return core.Failuref("Failed to read %s: %v", p, err)
		}
		content := string(data)

		count := strings.Count(content, oldStr)
		replaceAll := core.BoolArg(args, "replace_all", false)
		switch {
		case count == 0:
			return core.Failuref("old_string not found in %s", p)
		case count > 1 && !replaceAll:
			return core.Failuref("old_string appears %d times in %s. Add surrounding context to make it unique, or set replace_all=true.", count, p)
		}

		n := 1
		if replaceAll {
			n = -1
		}
		if err := atomicWrite(abs, []byte(strings.Replace(content, oldStr, newStr, n))); err != nil {
			return core.Failuref("Failed to write %s: %v", p, err)
		}
		if !replaceAll {
			count = 1
		}
		return core.Success(fmt.Sprintf("Replaced %d occurrence(s) in %s", count, ws.Rel(abs)))
	})
}

// VerifyFileExists returns the verify_file_exists operation.
func VerifyFileExists(ws *Workspace) core.Operation {
	return core.NewOperation(core.Descriptor{
		Name:        OpVerifyFileExists,
		Description: "Check that a file exists in the workspace and report its size.",
		InputSchema: core.ObjectSchema(map[string]any{
			"path": pathProperty("File path, relative to the workspace"),
		}, "path"),
	}, func(_ context.Context, args core.Args) core.Result {
		p, ok := core.StringArg(args, "path")
		if !ok {
			return core.Failure("Missing required parameter: path")
		}
		abs, err := ws.Resolve(p)
		if err != nil {
			return core.Failuref("Invalid path: %v", err)
		}
		info, err := os.Stat(abs)
		switch {
		case os.IsNotExist(err):
			return core.Failuref("File does not exist: %s", p)
		case err != nil:
			return core.Failuref("Cannot access %s: %v", p, err)
		case info.IsDir():
			return core.Failuref("%s is a directory, not a file", p)
		case info.Size() == 0:
			return core.Failuref("File exists but is empty: %s", p)
		}
		return core.Success(fmt.Sprintf("File exists: %s (%d bytes)", ws.Rel(abs), info.Size()))
	})
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func intArg(args core.Args, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// lineWindow returns limit lines starting at the 1-based offset.
func lineWindow(content string, offset, limit int) string {
	lines := strings.SplitAfter(content, "\n")
	start := 0
	if offset > 1 {
		start = offset - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return strings.Join(lines[start:end], "")
}
