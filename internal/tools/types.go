// Package tools is the capability registry: a closed set of named,
// schema-validated operations the model may request. Capabilities are
// grouped by category and handed to the agent loop as subsets.
//
//	ToolCall → Registry.Invoke → validate → confirm → Tool.Execute → observation
package tools

import (
	"context"
	"sort"

	"termcoder/internal/types"
)

// ToolCategory groups tools for node-level subsets.
type ToolCategory string

const (
	// CategoryFile covers create/delete/read, grep, directory tree and diff.
	CategoryFile ToolCategory = "/file"

	// CategoryShell covers persistent shell and PowerShell commands.
	CategoryShell ToolCategory = "/shell"

	// CategoryMemory covers the semantic memory store.
	CategoryMemory ToolCategory = "/memory"

	// CategoryScaffold covers clarification and framework templates.
	CategoryScaffold ToolCategory = "/scaffold"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter. Arguments not listed here are
	// rejected.
	Properties map[string]Property `json:"properties"`
}

// JSONSchema renders the schema as a JSON Schema object.
func (s ToolSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		props[name] = prop
	}
	required := append([]string(nil), s.Required...)
	sort.Strings(required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error; errors should be *ToolError.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named capability.
type Tool struct {
	// Name is the unique identifier the model calls the tool by.
	Name string

	// Description explains what the tool does.
	// Sent to the model as part of the tool definition.
	Description string

	// Category groups the tool for node subsets.
	Category ToolCategory

	// Execute runs the tool with validated arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// NeedsConfirmation reports whether a call is destructive enough to
	// go through the registry's confirm hook (e.g. delete without force).
	NeedsConfirmation func(args map[string]any) bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	for _, req := range t.Schema.Required {
		if _, ok := t.Schema.Properties[req]; !ok {
			return ErrSchemaMismatch
		}
	}
	return nil
}

// Definition returns the description sent to the model.
func (t *Tool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema.JSONSchema(),
	}
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}

// Observation is the text fed back to the model: the result, or the error
// rendered for self-correction.
func (r *ToolResult) Observation() string {
	if r.Error == nil {
		return r.Result
	}
	return Observation(r.Error)
}
