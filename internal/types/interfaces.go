package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	// Invoke sends the history plus optional tool definitions and returns
	// the model's next message, which may request tool calls.
	Invoke(ctx context.Context, messages []Message, tools []ToolDefinition) (*LLMToolResponse, error)

	// Stream sends the history and returns incremental content deltas.
	// The error channel receives at most one value and both channels close
	// when the stream ends.
	Stream(ctx context.Context, messages []Message) (<-chan string, <-chan error)

	// CompleteStructured constrains the reply to a JSON schema and returns
	// the raw JSON text.
	CompleteStructured(ctx context.Context, messages []Message, schema ResponseSchema) (string, error)

	GetModel() string
}

// ResponseSchema is a named JSON schema for structured output.
type ResponseSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Tool invocations requested by LLM
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`
}

// Message converts the response into an AI history entry.
func (r *LLMToolResponse) Message() Message {
	return Message{Role: RoleAI, Content: r.Text, ToolCalls: r.ToolCalls}
}

// InputFunc obtains a line of input from the human out-of-band, e.g. an
// answer to a shell prompt or a clarifying question.
type InputFunc func(ctx context.Context, prompt string) (string, error)
