package graph

import (
	"context"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/perception"
	"termcoder/internal/types"
)

// summarizationNode bounds history growth. A summary marker anywhere past
// index 1 is stale and is dropped together with everything before it
// (index 0 excepted). Otherwise, once the history exceeds the threshold,
// the interior window is replaced by one model-written summary. Failures
// leave the history as it was.
func (g *Graph) summarizationNode(ctx context.Context, t *turn) error {
	msgs := t.state.Messages

	if m := staleMarker(msgs); m > 0 {
		t.state.Messages = deleteRange(msgs, 1, m)
		logging.Graph("Dropped stale summary marker at %d (%d → %d messages)", m, len(msgs), len(t.state.Messages))
		return nil
	}
	if len(msgs) <= g.summaryThreshold {
		return nil
	}

	end := g.summaryWindow
	if end > len(msgs)-1 {
		end = len(msgs) - 1
	}
	summary, err := g.summarize(ctx, msgs[1:end+1])
	if err != nil {
		logging.GraphWarn("Summarization skipped (non-fatal): %v", err)
		return nil
	}

	compacted := make([]types.Message, 0, len(msgs)-end+1)
	compacted = append(compacted, msgs[0], SummaryMessage(summary))
	compacted = append(compacted, msgs[end+1:]...)
	t.state.Messages = compacted
	logging.Graph("Compacted history %d → %d messages", len(msgs), len(compacted))
	return nil
}

// staleMarker returns the index of the last summary marker past index 1,
// or -1.
func staleMarker(msgs []types.Message) int {
	for i := len(msgs) - 1; i > 1; i-- {
		if IsSummary(msgs[i]) {
			return i
		}
	}
	return -1
}

// deleteRange removes msgs[from..to] inclusive, returning a new slice.
func deleteRange(msgs []types.Message, from, to int) []types.Message {
	out := make([]types.Message, 0, len(msgs)-(to-from+1))
	out = append(out, msgs[:from]...)
	return append(out, msgs[to+1:]...)
}

func (g *Graph) summarize(ctx context.Context, window []types.Message) (string, error) {
	sys, err := g.prompts.Summary(g.summaryWords)
	if err != nil {
		return "", err
	}
	text, err := perception.Complete(ctx, g.client, sys, transcript(window))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptySummary
	}
	return text, nil
}

func transcript(msgs []types.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
