package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

// maxReadBytes caps read_file output.
const maxReadBytes = 256 * 1024

// CreateFileTool returns a tool for creating files.
func CreateFileTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "create_file",
		Description: "Create a file with the given content. Fails if the file exists unless overwrite is true. Parent directories are created.",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeCreateFile(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to create",
				},
				"content": {
					Type:        "string",
					Description: "The content to write",
				},
				"overwrite": {
					Type:        "boolean",
					Description: "Replace an existing file (default: false)",
					Default:     false,
				},
			},
		},
	}
}

func executeCreateFile(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path := types.ArgString(args, "path")
	if path == "" {
		return "", tools.Errorf(tools.KindInvalidArgument, "path is required")
	}
	content := types.ArgString(args, "content")
	overwrite := types.ArgBool(args, "overwrite", false)
	full := ws.Resolve(path)

	logging.ToolsDebug("create_file: path=%s, size=%d, overwrite=%v", full, len(content), overwrite)

	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			return "", tools.Errorf(tools.KindNotAFile, "'%s' is a directory", path)
		}
		if !overwrite {
			return "", tools.Errorf(tools.KindAlreadyExists, "File '%s' already exists. Use overwrite=true to overwrite.", path)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", tools.Errorf(tools.KindFailed, "create_file interrupted: %v", err).Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fsError(err, filepath.Dir(path))
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		return "", fsError(err, path)
	}
	n, werr := f.WriteString(content)
	cerr := f.Close()
	if werr != nil {
		return "", fsError(werr, path)
	}
	if cerr != nil {
		return "", fsError(cerr, path)
	}

	logging.Tools("create_file completed: %s (%d bytes)", full, n)
	return fmt.Sprintf("Successfully created file %s and wrote %d bytes", path, n), nil
}

// DeleteFileTool returns a tool for deleting files. Calls without force go
// through the registry's confirm hook.
func DeleteFileTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "delete_file",
		Description: "Delete a file. Directories are refused. Set force only when the user explicitly asked for the deletion.",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeDeleteFile(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to delete",
				},
				"force": {
					Type:        "boolean",
					Description: "Skip confirmation (default: false)",
					Default:     false,
				},
			},
		},
		NeedsConfirmation: func(args map[string]any) bool {
			if types.ArgBool(args, "force", false) {
				return false
			}
			// Missing paths and directories fail on their own; asking first
			// would turn a recoverable error into a refusal.
			info, err := os.Lstat(ws.Resolve(types.ArgString(args, "path")))
			return err == nil && !info.IsDir()
		},
	}
}

func executeDeleteFile(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path := types.ArgString(args, "path")
	if path == "" {
		return "", tools.Errorf(tools.KindInvalidArgument, "path is required")
	}
	full := ws.Resolve(path)

	logging.ToolsDebug("delete_file: path=%s", full)

	info, err := os.Lstat(full)
	if err != nil {
		return "", fsError(err, path)
	}
	if info.IsDir() {
		return "", tools.Errorf(tools.KindNotAFile, "'%s' is not a file (it is a directory)", path)
	}
	if err := os.Remove(full); err != nil {
		return "", fsError(err, path)
	}

	logging.Tools("delete_file completed: %s", full)
	return fmt.Sprintf("Successfully deleted file '%s'.", path), nil
}

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file, optionally a line range",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeReadFile(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to read",
				},
				"start_line": {
					Type:        "integer",
					Description: "Starting line number (1-indexed, optional)",
				},
				"end_line": {
					Type:        "integer",
					Description: "Ending line number (inclusive, optional)",
				},
			},
		},
	}
}

func executeReadFile(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path := types.ArgString(args, "path")
	if path == "" {
		return "", tools.Errorf(tools.KindInvalidArgument, "path is required")
	}
	full := ws.Resolve(path)

	logging.ToolsDebug("read_file: path=%s", full)

	info, err := os.Stat(full)
	if err != nil {
		return "", fsError(err, path)
	}
	if info.IsDir() {
		return "", tools.Errorf(tools.KindNotAFile, "'%s' is a directory; use get_directory_tree", path)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return "", fsError(err, path)
	}
	result := string(content)

	startLine := types.ArgInt(args, "start_line", 0)
	endLine := types.ArgInt(args, "end_line", 0)
	if startLine > 0 || endLine > 0 {
		lines := strings.Split(result, "\n")
		if startLine < 1 {
			startLine = 1
		}
		if endLine <= 0 || endLine > len(lines) {
			endLine = len(lines)
		}
		if startLine > endLine {
			return "", tools.Errorf(tools.KindInvalidArgument, "start_line %d is past end_line %d (file has %d lines)", startLine, endLine, len(lines))
		}
		result = strings.Join(lines[startLine-1:endLine], "\n")
	}

	if len(result) > maxReadBytes {
		result = result[:maxReadBytes] + "\n...[truncated]"
	}

	logging.Tools("read_file completed: %s (%d bytes)", full, len(result))
	return result, nil
}
