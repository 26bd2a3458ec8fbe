// Package perception is the model gateway: provider clients behind one
// LLMClient contract, plus retry, tracing and test doubles.
package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"termcoder/internal/types"
)

// Complete is a convenience for a single system+user exchange.
func Complete(ctx context.Context, client LLMClient, systemPrompt, userPrompt string) (string, error) {
	var msgs []types.Message
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, types.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, types.HumanMessage(userPrompt))

	resp, err := client.Invoke(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CollectStream drains a stream into a single string, passing each delta
// to onDelta when non-nil.
func CollectStream(content <-chan string, errs <-chan error, onDelta func(string)) (string, error) {
	var sb strings.Builder
	var firstErr error
	for content != nil || errs != nil {
		select {
		case delta, ok := <-content:
			if !ok {
				content = nil
				continue
			}
			sb.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return sb.String(), firstErr
}

// DecodeStructured unmarshals a structured reply, tolerating markdown
// fences some models wrap JSON in.
func DecodeStructured(raw string, v interface{}) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode structured reply %q: %w", raw, err)
	}
	return nil
}
