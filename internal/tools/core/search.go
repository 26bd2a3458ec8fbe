package core

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

// NoMatches is returned by grep when nothing matched.
const NoMatches = "[INFO] No matches found."

// maxGrepMatches caps grep output.
const maxGrepMatches = 500

// SkipDirs are never descended into by grep or get_directory_tree.
var SkipDirs = map[string]bool{
	// python
	".venv": true, "venv": true, "__pycache__": true, ".ruff_cache": true,
	// javascript
	"node_modules": true, ".next": true,
	// go
	"bin": true, "vendor": true,
	// rust
	"target": true, ".cargo": true,
	// jvm build tools
	".gradle": true,
	// version control
	".git": true,
}

// GrepTool returns a tool for regex search in a file or directory.
func GrepTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "grep",
		Description: "Search a file (or every file under a directory) for a regular expression. Case-insensitive unless case_sensitive is true. Output lines are 'line|text', prefixed with the file for directories.",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeGrep(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path", "pattern"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "File or directory to search",
				},
				"pattern": {
					Type:        "string",
					Description: "Regular expression (RE2 syntax)",
				},
				"case_sensitive": {
					Type:        "boolean",
					Description: "Match case exactly (default: false)",
					Default:     false,
				},
			},
		},
	}
}

func executeGrep(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path := types.ArgString(args, "path")
	pattern := types.ArgString(args, "pattern")
	if path == "" || pattern == "" {
		return "", tools.Errorf(tools.KindInvalidArgument, "path and pattern are required")
	}

	expr := pattern
	if !types.ArgBool(args, "case_sensitive", false) {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", tools.Errorf(tools.KindInvalidPattern, "Invalid regex %q: %v", pattern, err).Wrap(err)
	}

	full := ws.Resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return "", fsError(err, path)
	}

	logging.ToolsDebug("grep: path=%s, pattern=%s", full, pattern)

	var matches []string
	if !info.IsDir() {
		matches, err = grepFile(full, re, "", maxGrepMatches)
		if err != nil {
			return "", fsError(err, path)
		}
	} else {
		err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if p != full && SkipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, _ := filepath.Rel(full, p)
			found, ferr := grepFile(p, re, filepath.ToSlash(rel)+":", maxGrepMatches-len(matches))
			if ferr != nil {
				return nil
			}
			matches = append(matches, found...)
			if len(matches) >= maxGrepMatches {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", tools.Errorf(tools.KindFailed, "grep interrupted: %v", err).Wrap(err)
		}
	}

	if len(matches) == 0 {
		return NoMatches, nil
	}
	out := strings.Join(matches, "\n")
	if len(matches) >= maxGrepMatches {
		out += fmt.Sprintf("\n...[truncated at %d matches]", maxGrepMatches)
	}
	logging.Tools("grep completed: %s (%d matches)", full, len(matches))
	return out, nil
}

func grepFile(path string, re *regexp.Regexp, prefix string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%s%d|%s", prefix, n, strings.TrimRight(line, " \t\r")))
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, scanner.Err()
}

// DirectoryTreeTool returns a tool for a depth-limited directory listing.
func DirectoryTreeTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "get_directory_tree",
		Description: "Show the directory structure as a tree, skipping dependency caches, build output and version-control metadata",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeDirectoryTree(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Directory to list (default: workspace root)",
				},
				"max_depth": {
					Type:        "integer",
					Description: "Maximum depth to descend (default: 3)",
					Default:     3,
				},
			},
		},
	}
}

func executeDirectoryTree(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path := types.ArgString(args, "path")
	if path == "" {
		path = "."
	}
	maxDepth := types.ArgInt(args, "max_depth", 3)
	if maxDepth < 0 {
		return "", tools.Errorf(tools.KindInvalidArgument, "max_depth must not be negative")
	}
	full := ws.Resolve(path)

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", tools.Errorf(tools.KindNotFound, "Path does not exist: %s", path).Wrap(err)
		}
		return "", fsError(err, path)
	}
	if !info.IsDir() {
		return "", tools.Errorf(tools.KindNotADirectory, "Not a directory: %s", path)
	}

	logging.ToolsDebug("get_directory_tree: path=%s, depth=%d", full, maxDepth)

	var b strings.Builder
	b.WriteString(filepath.Base(full) + "/\n")
	if err := writeTree(ctx, &b, full, "", 0, maxDepth); err != nil {
		return "", tools.Errorf(tools.KindFailed, "get_directory_tree interrupted: %v", err).Wrap(err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// writeTree renders dir's children; depth 0 is the first level below the
// root and the walk stops after maxDepth.
func writeTree(ctx context.Context, b *strings.Builder, dir, indent string, depth, maxDepth int) error {
	if depth > maxDepth {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(b, "%s└── [permission denied]\n", indent)
		return nil
	}

	visible := entries[:0:0]
	for _, e := range entries {
		if e.IsDir() && SkipDirs[e.Name()] {
			continue
		}
		visible = append(visible, e)
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Name() < visible[j].Name() })

	for i, e := range visible {
		last := i == len(visible)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(indent + branch + name + "\n")
		if e.IsDir() {
			if err := writeTree(ctx, b, filepath.Join(dir, e.Name()), indent+next, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
