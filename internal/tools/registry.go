package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

// ConfirmFunc approves a destructive call. Returning false refuses it.
type ConfirmFunc func(ctx context.Context, tool string, args map[string]any) (bool, error)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	// byCategory provides fast lookup by category.
	byCategory map[ToolCategory][]*Tool

	confirm ConfirmFunc
	timeout time.Duration
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		byCategory: make(map[ToolCategory][]*Tool),
	}
}

// SetConfirm installs the hook consulted for calls whose tool reports
// NeedsConfirmation. Nil means destructive calls run unconfirmed.
func (r *Registry) SetConfirm(fn ConfirmFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirm = fn
}

// SetTimeout bounds every tool execution. Zero disables the bound.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool %q: %w", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	r.tools[tool.Name] = tool
	r.byCategory[tool.Category] = append(r.byCategory[tool.Category], tool)

	logging.ToolsDebug("Registered tool: %s (category=%s)", tool.Name, tool.Category)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// GetByCategory returns all tools in a category, sorted by name.
func (r *Registry) GetByCategory(category ToolCategory) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, len(r.byCategory[category]))
	copy(tools, r.byCategory[category])
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Subset returns a registry holding only the named tools. Every name must
// exist; a misspelled capability is an error, not a silent omission. The
// subset shares the parent's confirm hook and timeout.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := NewRegistry()
	sub.confirm = r.confirm
	sub.timeout = r.timeout
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		if _, dup := sub.tools[name]; dup {
			continue
		}
		sub.tools[name] = tool
		sub.byCategory[tool.Category] = append(sub.byCategory[tool.Category], tool)
	}
	return sub, nil
}

// Categories returns a subset holding every tool in the given categories.
func (r *Registry) Categories(categories ...ToolCategory) *Registry {
	var names []string
	for _, c := range categories {
		for _, t := range r.GetByCategory(c) {
			names = append(names, t.Name)
		}
	}
	sub, _ := r.Subset(names...)
	return sub
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the tool definitions sent to the model, sorted by name.
func (r *Registry) Definitions() []types.ToolDefinition {
	all := r.All()
	defs := make([]types.ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Execute runs a tool by name with the given arguments. Unknown names and
// invalid arguments come back as recoverable ToolErrors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		err := Errorf(KindUnknownTool, "unknown tool %q (available: %v)", name, r.Names()).Wrap(ErrToolNotFound)
		return &ToolResult{ToolName: name, Error: err}, err
	}
	return r.ExecuteTool(ctx, tool, args)
}

// ExecuteTool runs a specific tool with the given arguments.
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, args map[string]any) (*ToolResult, error) {
	start := time.Now()
	if args == nil {
		args = map[string]any{}
	}

	fail := func(err error) (*ToolResult, error) {
		return &ToolResult{
			ToolName:   tool.Name,
			Error:      err,
			DurationMs: time.Since(start).Milliseconds(),
		}, err
	}

	if err := validateArgs(tool, args); err != nil {
		logging.ToolsWarn("Tool %s rejected arguments: %v", tool.Name, err)
		return fail(err)
	}

	if err := r.checkConfirm(ctx, tool, args); err != nil {
		return fail(err)
	}

	r.mu.RLock()
	timeout := r.timeout
	r.mu.RUnlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logging.ToolsDebug("Executing tool: %s", tool.Name)
	result, err := safeExecute(ctx, tool, args)
	duration := time.Since(start)
	logging.ToolsDebug("Tool %s completed in %v (success=%v)", tool.Name, duration, err == nil)

	return &ToolResult{
		ToolName:   tool.Name,
		Result:     result,
		Error:      err,
		DurationMs: duration.Milliseconds(),
	}, err
}

// Invoke executes a model tool call and returns the observation text. The
// error is non-nil only for failures that must abort the agent loop.
func (r *Registry) Invoke(ctx context.Context, call types.ToolCall) (string, error) {
	res, err := r.Execute(ctx, call.Name, call.Input)
	if err != nil {
		if IsNonRecoverable(err) {
			logging.ToolsWarn("Tool %s failed fatally: %v", call.Name, err)
			return res.Observation(), err
		}
		if ctx.Err() != nil {
			return res.Observation(), ctx.Err()
		}
		logging.Tools("Tool %s failed (%s): %v", call.Name, KindOf(err), err)
	}
	return res.Observation(), nil
}

func (r *Registry) checkConfirm(ctx context.Context, tool *Tool, args map[string]any) error {
	if tool.NeedsConfirmation == nil || !tool.NeedsConfirmation(args) {
		return nil
	}
	r.mu.RLock()
	confirm := r.confirm
	r.mu.RUnlock()
	if confirm == nil {
		return nil
	}

	ok, err := confirm(ctx, tool.Name, args)
	if err != nil {
		return Fatalf(KindRefused, "%s was not confirmed: %v", tool.Name, err).Wrap(err)
	}
	if !ok {
		return Fatalf(KindRefused, "%s refused: destructive operation was not confirmed (retry with force=true only if the user asked for it)", tool.Name)
	}
	return nil
}

func safeExecute(ctx context.Context, tool *Tool, args map[string]any) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Get(logging.CategoryTools).Error("Tool %s panicked: %v", tool.Name, p)
			result = ""
			err = Errorf(KindFailed, "%s crashed: %v", tool.Name, p)
		}
	}()
	return tool.Execute(ctx, args)
}

// validateArgs checks presence, unknown keys, JSON types and enums.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if v, ok := args[required]; !ok || v == nil {
			return Errorf(KindInvalidArgument, "missing required argument %q for %s", required, tool.Name)
		}
	}

	for name, value := range args {
		prop, ok := tool.Schema.Properties[name]
		if !ok {
			return Errorf(KindInvalidArgument, "unknown argument %q for %s", name, tool.Name)
		}
		if value == nil {
			continue
		}
		if !matchesType(prop.Type, value) {
			return Errorf(KindInvalidArgument, "argument %q for %s must be %s, got %T", name, tool.Name, prop.Type, value)
		}
		if len(prop.Enum) > 0 && !inEnum(prop.Enum, value) {
			return Errorf(KindInvalidArgument, "argument %q for %s must be one of %v", name, tool.Name, prop.Enum)
		}
	}
	return nil
}

func matchesType(want string, v any) bool {
	switch want {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		n, ok := types.ExtractInt(v)
		if !ok {
			return false
		}
		if f, isFloat := v.(float64); isFloat {
			return f == float64(n)
		}
		return true
	case "number":
		_, ok := types.ExtractFloat64(v)
		return ok
	case "boolean":
		_, ok := types.ExtractBool(v)
		return ok
	case "array":
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		switch v.(type) {
		case map[string]any, map[string]string:
			return true
		}
		return false
	default:
		return false
	}
}

func inEnum(enum []any, v any) bool {
	s := fmt.Sprint(v)
	for _, e := range enum {
		if fmt.Sprint(e) == s {
			return true
		}
	}
	return false
}
