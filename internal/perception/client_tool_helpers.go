package perception

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"termcoder/internal/types"
)

// MapToolDefinitionsToOpenAI converts generic tool definitions to OpenAI-compatible format.
func MapToolDefinitionsToOpenAI(tools []ToolDefinition) []OpenAITool {
	result := make([]OpenAITool, len(tools))
	for i, t := range tools {
		result[i] = OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return result
}

// MapOpenAIToolCallsToInternal converts OpenAI tool calls to generic tool calls.
func MapOpenAIToolCallsToInternal(calls []OpenAIToolCall) ([]ToolCall, error) {
	result := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.Type != "" && c.Type != "function" {
			continue
		}

		args := map[string]interface{}{}
		if strings.TrimSpace(c.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(c.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to unmarshal arguments for tool %s: %w", c.Function.Name, err)
			}
		}

		result = append(result, ToolCall{
			ID:    c.ID,
			Name:  c.Function.Name,
			Input: args,
		})
	}
	return result, nil
}

// mapMessagesToOpenAI converts history into chat completion messages.
func mapMessagesToOpenAI(messages []types.Message) ([]OpenAIMessage, error) {
	out := make([]OpenAIMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, OpenAIMessage{Role: "system", Content: m.Content})
		case types.RoleHuman:
			out = append(out, OpenAIMessage{Role: "user", Content: m.Content})
		case types.RoleAI:
			msg := OpenAIMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal arguments for tool %s: %w", tc.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, OpenAIToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: OpenAIFunctionCall{Name: tc.Name, Arguments: string(args)},
				})
			}
			out = append(out, msg)
		case types.RoleTool:
			out = append(out, OpenAIMessage{Role: "tool", Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name})
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return out, nil
}

// mapMessagesToAnthropic splits out the system prompt and folds tool
// observations into user turns made of tool_result blocks.
func mapMessagesToAnthropic(messages []types.Message) (string, []AnthropicMessage) {
	var system []string
	var out []AnthropicMessage

	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Content)
		case types.RoleHuman:
			out = append(out, AnthropicMessage{Role: "user", Content: m.Content})
		case types.RoleAI:
			if len(m.ToolCalls) == 0 {
				out = append(out, AnthropicMessage{Role: "assistant", Content: m.Content})
				continue
			}
			var blocks []AnthropicContentBlock
			if m.Content != "" {
				blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, AnthropicContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			out = append(out, AnthropicMessage{Role: "assistant", Content: blocks})
		case types.RoleTool:
			block := AnthropicContentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(out); n > 0 && out[n-1].Role == "user" {
				if blocks, ok := out[n-1].Content.([]AnthropicContentBlock); ok {
					out[n-1].Content = append(blocks, block)
					continue
				}
			}
			out = append(out, AnthropicMessage{Role: "user", Content: []AnthropicContentBlock{block}})
		}
	}
	return strings.Join(system, "\n\n"), out
}

// postJSON performs a single POST and returns the body of a 200 reply.
// Non-200 replies become *APIError so the retry policy can classify them.
func postJSON(ctx context.Context, client *http.Client, provider Provider, url string, headers map[string]string, body interface{}) ([]byte, error) {
	resp, err := openPost(ctx, client, provider, url, headers, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// openPost sends the request and returns the open response on 200.
func openPost(ctx context.Context, client *http.Client, provider Provider, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

// scanSSE calls fn with the payload of every "data:" line until fn returns
// false, the body ends, or ctx is done.
func scanSSE(ctx context.Context, body io.Reader, fn func(data string) (bool, error)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		more, err := fn(data)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return scanner.Err()
}

// withDefaultTimeout applies d when ctx has no deadline.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
