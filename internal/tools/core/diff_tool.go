package core

import (
	"context"

	"termcoder/internal/diff"
	"termcoder/internal/logging"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

// ShowDiffTool returns a tool producing a unified diff of two files.
// Missing or unreadable files come back inline as "[ERROR] ..." text.
func ShowDiffTool(ws *Workspace, engine *diff.Engine) *tools.Tool {
	return &tools.Tool{
		Name:        "show_diff",
		Description: "Show a unified diff between two files. Returns '" + diff.NoDifferences + "' when they match.",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			oldPath := types.ArgString(args, "path_a")
			newPath := types.ArgString(args, "path_b")
			if oldPath == "" || newPath == "" {
				return "", tools.Errorf(tools.KindInvalidArgument, "path_a and path_b are required")
			}
			opts := diff.Options{
				Context:          types.ArgInt(args, "context", 3),
				IgnoreWhitespace: types.ArgBool(args, "ignore_whitespace", true),
			}
			if opts.Context < 0 {
				return "", tools.Errorf(tools.KindInvalidArgument, "context must not be negative")
			}
			logging.ToolsDebug("show_diff: %s -> %s (context=%d)", oldPath, newPath, opts.Context)
			return engine.CompareFiles(ws.Resolve(oldPath), ws.Resolve(newPath), opts), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"path_a", "path_b"},
			Properties: map[string]tools.Property{
				"path_a": {
					Type:        "string",
					Description: "Original file",
				},
				"path_b": {
					Type:        "string",
					Description: "Modified file",
				},
				"context": {
					Type:        "integer",
					Description: "Unchanged lines around each change (default: 3)",
					Default:     3,
				},
				"ignore_whitespace": {
					Type:        "boolean",
					Description: "Ignore whitespace-only differences (default: true)",
					Default:     true,
				},
			},
		},
	}
}
