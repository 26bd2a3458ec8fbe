// Package memtools exposes the semantic memory store as capabilities.
// Store and provider outages are reported to the model as recoverable
// "unavailable" observations.
package memtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/memory"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

// Names of the memory capabilities.
const (
	AddMemory    = "add_memory"
	SearchMemory = "search_memory"
	UpdateMemory = "update_memory"
	DeleteMemory = "delete_memory"
	ListMemories = "list_memories"
)

// ReadOnly names the capabilities that never modify the store.
var ReadOnly = []string{SearchMemory, ListMemories}

// AddMemoryTool stores one or more texts.
func AddMemoryTool(svc *memory.Service) *tools.Tool {
	return &tools.Tool{
		Name:        AddMemory,
		Description: "Store facts about the user or project in long-term memory. Returns the new memory ids.",
		Category:    tools.CategoryMemory,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			texts, ok := types.ExtractStringSlice(args["texts"])
			if !ok || len(texts) == 0 {
				return "", tools.Errorf(tools.KindInvalidArgument, "texts must be a non-empty list of strings")
			}
			meta, _ := types.ExtractStringMap(args["metadata"])

			ids, err := svc.Add(ctx, texts, meta)
			if err != nil {
				return "", memoryError(err)
			}
			return fmt.Sprintf("Added %d memories: %s", len(ids), strings.Join(ids, ", ")), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"texts"},
			Properties: map[string]tools.Property{
				"texts": {
					Type:        "array",
					Description: "Texts to remember",
					Items:       &tools.PropertyItems{Type: "string"},
				},
				"metadata": {
					Type:        "object",
					Description: "Optional string labels attached to every text (e.g. {\"kind\": \"preference\"})",
				},
			},
		},
	}
}

// SearchMemoryTool returns memories similar to a query.
func SearchMemoryTool(svc *memory.Service) *tools.Tool {
	return &tools.Tool{
		Name:        SearchMemory,
		Description: "Search long-term memory for texts similar to the query, best match first",
		Category:    tools.CategoryMemory,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			query := types.ArgString(args, "query")
			if strings.TrimSpace(query) == "" {
				return "", tools.Errorf(tools.KindInvalidArgument, "query is required")
			}
			k := types.ArgInt(args, "k", svc.DefaultK())
			threshold := types.ArgFloat64(args, "threshold", svc.Threshold())

			records, err := svc.Search(ctx, query, k, threshold)
			if err != nil {
				return "", memoryError(err)
			}
			return memory.FormatRecords(records), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {
					Type:        "string",
					Description: "What to look for",
				},
				"k": {
					Type:        "integer",
					Description: "Maximum results",
				},
				"threshold": {
					Type:        "number",
					Description: "Minimum cosine similarity in [-1, 1]",
				},
			},
		},
	}
}

// UpdateMemoryTool replaces a memory's text.
func UpdateMemoryTool(svc *memory.Service) *tools.Tool {
	return &tools.Tool{
		Name:        UpdateMemory,
		Description: "Replace the text of an existing memory, found by id via search_memory or list_memories",
		Category:    tools.CategoryMemory,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			id := types.ArgString(args, "id")
			text := types.ArgString(args, "text")
			if id == "" {
				return "", tools.Errorf(tools.KindInvalidArgument, "id is required")
			}
			if err := svc.Update(ctx, id, text); err != nil {
				return "", memoryError(err)
			}
			return fmt.Sprintf("Updated memory %s", id), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"id", "text"},
			Properties: map[string]tools.Property{
				"id": {
					Type:        "string",
					Description: "Memory id",
				},
				"text": {
					Type:        "string",
					Description: "Replacement text",
				},
			},
		},
	}
}

// DeleteMemoryTool removes a memory by id, or every memory matching a
// metadata key/value.
func DeleteMemoryTool(svc *memory.Service) *tools.Tool {
	return &tools.Tool{
		Name:        DeleteMemory,
		Description: "Delete a memory by id, or all memories whose metadata key equals value",
		Category:    tools.CategoryMemory,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			id := types.ArgString(args, "id")
			key := types.ArgString(args, "key")
			switch {
			case id != "" && key != "":
				return "", tools.Errorf(tools.KindInvalidArgument, "give either id or key/value, not both")
			case id != "":
				if err := svc.Delete(ctx, id); err != nil {
					return "", memoryError(err)
				}
				return fmt.Sprintf("Deleted memory %s", id), nil
			case key != "":
				n, err := svc.DeleteByFilter(ctx, key, types.ArgString(args, "value"))
				if err != nil {
					return "", memoryError(err)
				}
				return fmt.Sprintf("Deleted %d memories where %s=%s", n, key, types.ArgString(args, "value")), nil
			default:
				return "", tools.Errorf(tools.KindInvalidArgument, "id or key is required")
			}
		},
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"id": {
					Type:        "string",
					Description: "Memory id",
				},
				"key": {
					Type:        "string",
					Description: "Metadata key to filter on",
				},
				"value": {
					Type:        "string",
					Description: "Metadata value to match",
				},
			},
		},
	}
}

// ListMemoriesTool lists stored memories, oldest first.
func ListMemoriesTool(svc *memory.Service) *tools.Tool {
	return &tools.Tool{
		Name:        ListMemories,
		Description: "List stored memories, oldest first",
		Category:    tools.CategoryMemory,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			records, err := svc.List(ctx, types.ArgInt(args, "limit", 50))
			if err != nil {
				return "", memoryError(err)
			}
			return memory.FormatRecords(records), nil
		},
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"limit": {
					Type:        "integer",
					Description: "Maximum records (default: 50)",
					Default:     50,
				},
			},
		},
	}
}

func memoryError(err error) error {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return tools.Errorf(tools.KindNotFound, "%v", err).Wrap(err)
	case errors.Is(err, memory.ErrEmptyText):
		return tools.Errorf(tools.KindInvalidArgument, "%v", err).Wrap(err)
	case errors.Is(err, memory.ErrProviderUnavailable), errors.Is(err, memory.ErrStoreUnavailable):
		logging.MemoryWarn("memory capability degraded: %v", err)
		return tools.Errorf(tools.KindUnavailable, "memory is unavailable right now: %v", err).Wrap(err)
	default:
		return tools.Errorf(tools.KindFailed, "memory operation failed: %v", err).Wrap(err)
	}
}

// RegisterAll registers all memory tools with the given registry.
func RegisterAll(registry *tools.Registry, svc *memory.Service) error {
	allTools := []*tools.Tool{
		AddMemoryTool(svc),
		SearchMemoryTool(svc),
		UpdateMemoryTool(svc),
		DeleteMemoryTool(svc),
		ListMemoriesTool(svc),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
