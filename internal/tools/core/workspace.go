package core

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"termcoder/internal/tools"
)

// Workspace anchors relative paths.
type Workspace struct {
	Root string
}

// NewWorkspace returns a workspace rooted at root (cwd when empty).
func NewWorkspace(root string) *Workspace {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &Workspace{Root: root}
}

// Resolve returns path made absolute against the root.
func (w *Workspace) Resolve(path string) string {
	if path == "" {
		return w.Root
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.Root, path)
}

// fsError maps an os error to a ToolError kind. display is the path as the
// caller wrote it.
func fsError(err error, display string) *tools.ToolError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return tools.Errorf(tools.KindNotFound, "File not found: %s", display).Wrap(err)
	case errors.Is(err, fs.ErrPermission):
		return tools.Errorf(tools.KindPermissionDenied, "Permission denied accessing: %s", display).Wrap(err)
	case errors.Is(err, fs.ErrExist):
		return tools.Errorf(tools.KindAlreadyExists, "File '%s' already exists. Use overwrite=true to overwrite.", display).Wrap(err)
	default:
		return tools.Errorf(tools.KindFailed, "Error accessing %s: %v", display, err).Wrap(err)
	}
}
