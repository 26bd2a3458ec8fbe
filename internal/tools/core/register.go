package core

import (
	"termcoder/internal/diff"
	"termcoder/internal/tools"
)

// Names of the file-system capabilities.
const (
	CreateFile       = "create_file"
	DeleteFile       = "delete_file"
	ReadFile         = "read_file"
	Grep             = "grep"
	GetDirectoryTree = "get_directory_tree"
	ShowDiff         = "show_diff"
)

// RegisterAll registers all file-system tools with the given registry.
func RegisterAll(registry *tools.Registry, ws *Workspace) error {
	allTools := []*tools.Tool{
		// File operations
		CreateFileTool(ws),
		DeleteFileTool(ws),
		ReadFileTool(ws),

		// Search and inspection
		GrepTool(ws),
		DirectoryTreeTool(ws),
		ShowDiffTool(ws, diff.NewEngine()),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
