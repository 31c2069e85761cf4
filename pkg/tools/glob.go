package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jllopis/steward/pkg/core"
)

const maxGlobResults = 1000

// Glob returns the glob operation. Matches are files only, newest first.
func Glob(ws *Workspace) core.Operation {
	return core.NewOperation(core.Descriptor{
		Name: OpGlob,
		Description: "Find workspace files matching a glob pattern. Supports ** for any depth and {a,b} alternatives, " +
			"e.g. \"**/*.go\" or \"tasks/*.{json,md}\". Results are sorted by modification time, newest first.",
		InputSchema: core.ObjectSchema(map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern"},
			"path":    pathProperty("Directory to search in. Defaults to the workspace root."),
		}, "pattern"),
	}, func(_ context.Context, args core.Args) core.Result {
		pattern, ok := core.StringArg(args, "pattern")
		if !ok {
			return core.Failure("Missing required parameter: pattern")
		}
		if !doublestar.ValidatePattern(pattern) {
			return core.Failuref("Invalid pattern: %s", pattern)
		}
		base, err := searchDir(ws, args)
		if err != nil {
			return core.Failure(err.Error())
		}

		matches, err := doublestar.Glob(os.DirFS(base), pattern)
		if err != nil {
			return core.Failuref("Invalid pattern: %v", err)
		}

		type entry struct {
			path    string
			modTime int64
		}
		files := make([]entry, 0, len(matches))
		for _, m := range matches {
			info, err := os.Stat(filepath.Join(base, filepath.FromSlash(m)))
			if err != nil || info.IsDir() {
				continue
			}
			files = append(files, entry{path: m, modTime: info.ModTime().UnixNano()})
		}
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].modTime == files[j].modTime {
				return files[i].path < files[j].path
			}
			return files[i].modTime > files[j].modTime
		})

		if len(files) == 0 {
			return core.Success("(no matches)")
		}
		total := len(files)
		if total > maxGlobResults {
			files = files[:maxGlobResults]
		}
		var b strings.Builder
		if total > maxGlobResults {
			fmt.Fprintf(&b, "(showing %d of %d)\n", maxGlobResults, total)
		}
		for _, f := range files {
			b.WriteString(ws.Rel(filepath.Join(base, filepath.FromSlash(f.path))))
			b.WriteString("\n")
		}
		return core.Success(b.String())
	})
}

// ListFiles returns the list_files operation. Directories carry a trailing
// slash. With recursive set the listing descends into subdirectories.
func ListFiles(ws *Workspace) core.Operation {
	return core.NewOperation(core.Descriptor{
		Name:        OpListFiles,
		Description: "List the entries of a workspace directory. Set recursive to include subdirectories.",
		InputSchema: core.ObjectSchema(map[string]any{
			"path":      pathProperty("Directory to list. Defaults to the workspace root."),
			"recursive": map[string]any{"type": "boolean", "description": "Descend into subdirectories"},
		}),
	}, func(_ context.Context, args core.Args) core.Result {
		base, err := searchDir(ws, args)
		if err != nil {
			return core.Failure(err.Error())
		}
		pattern := "*"
		if core.BoolArg(args, "recursive", false) {
			pattern = "**"
		}

		fsys := os.DirFS(base)
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return core.Failuref("Failed to list %s: %v", ws.Rel(base), err)
		}
		sort.Strings(matches)

		var b strings.Builder
		n := 0
		for _, m := range matches {
			if m == "." || isHidden(m) {
				continue
			}
			if n == maxGlobResults {
				fmt.Fprintf(&b, "(truncated at %d entries)\n", maxGlobResults)
				break
			}
			info, err := fs.Stat(fsys, m)
			if err != nil {
				continue
			}
			b.WriteString(m)
			if info.IsDir() {
				b.WriteString("/")
			}
			b.WriteString("\n")
			n++
		}
		if n == 0 {
			return core.Success("(empty directory)")
		}
		return core.Success(b.String())
	})
}

func searchDir(ws *Workspace, args core.Args) (string, error) {
	p, ok := core.StringArg(args, "path")
	if !ok {
		p = "."
	}
	abs, err := ws.Resolve(p)
	if err != nil {
		return "", fmt.Errorf("Invalid path: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("Path not found: %s", p)
		}
		return "", fmt.Errorf("Cannot access %s: %v", p, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", p)
	}
	return abs, nil
}

// isHidden reports whether any element of a slash path starts with a dot.
func isHidden(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
