// Package types holds the message and model-contract types shared by the
// gateway, the agent loop and the orchestration graph.
package types

import "strings"

// Role tags a message in the conversation history.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	// RoleTool carries a capability observation back to the model.
	RoleTool Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleHuman, RoleAI, RoleTool:
		return true
	}
	return false
}

// ParseRole maps provider and storage spellings onto a Role.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return RoleSystem, true
	case "human", "user":
		return RoleHuman, true
	case "ai", "assistant", "model":
		return RoleAI, true
	case "tool", "function":
		return RoleTool, true
	}
	return "", false
}

// Message is an immutable history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on AI messages that requested capabilities.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name identify the call a tool message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// HumanMessage builds a human message.
func HumanMessage(content string) Message { return Message{Role: RoleHuman, Content: content} }

// AIMessage builds an AI message.
func AIMessage(content string) Message { return Message{Role: RoleAI, Content: content} }

// ToolMessage builds the observation for a capability call.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// CloneMessages copies a history so callers can append without aliasing.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// LastAI returns the most recent AI message with text content.
func LastAI(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAI && msgs[i].Content != "" {
			return msgs[i], true
		}
	}
	return Message{}, false
}
