package graph

import (
	"strings"

	"termcoder/internal/types"
)

// QueryType is the route chosen by the understanding node.
type QueryType string

const (
	QueryUnset       QueryType = ""
	QueryExecution   QueryType = "execution"
	QueryScaffolding QueryType = "scaffolding"
)

// ParseQueryType maps a classifier answer onto a route. Only the two
// known values are accepted; "execution_node" style names are tolerated.
func ParseQueryType(s string) (QueryType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "_node")
	switch QueryType(s) {
	case QueryExecution:
		return QueryExecution, true
	case QueryScaffolding:
		return QueryScaffolding, true
	}
	return QueryUnset, false
}

// SummaryMarker prefixes the system message that stands in for compacted turns.
const SummaryMarker = "[conversation summary]"

// IsSummary reports whether msg is a compaction summary.
func IsSummary(msg types.Message) bool {
	return msg.Role == types.RoleSystem && strings.HasPrefix(msg.Content, SummaryMarker)
}

// SummaryMessage builds a summary marker message.
func SummaryMessage(summary string) types.Message {
	return types.SystemMessage(SummaryMarker + "\n" + strings.TrimSpace(summary))
}

// State is the conversation carried across turns. The graph owns it for
// the duration of Run; callers keep the returned value for the next turn.
type State struct {
	// ThreadID keys persisted messages. Empty disables persistence.
	ThreadID string

	// Query is the current turn's text, possibly extended by the memory node.
	Query string

	// Messages starts with the base system prompt and grows by one human
	// and one AI message per turn, except when summarization compacts it.
	Messages []types.Message

	QueryType QueryType
}

// NewState starts a conversation with the given base instructions.
func NewState(threadID, systemPrompt string) State {
	return State{
		ThreadID: threadID,
		Messages: []types.Message{types.SystemMessage(systemPrompt)},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	s.Messages = types.CloneMessages(s.Messages)
	return s
}

// History returns messages after the leading system prompt.
func (s State) History() []types.Message {
	if len(s.Messages) > 0 && s.Messages[0].Role == types.RoleSystem && !IsSummary(s.Messages[0]) {
		return s.Messages[1:]
	}
	return s.Messages
}

// SystemPrompt returns the leading system prompt, if any.
func (s State) SystemPrompt() (string, bool) {
	if len(s.Messages) > 0 && s.Messages[0].Role == types.RoleSystem && !IsSummary(s.Messages[0]) {
		return s.Messages[0].Content, true
	}
	return "", false
}
