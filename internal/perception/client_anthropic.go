package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements LLMClient for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.anthropic.com/v1",
		Model:     "claude-sonnet-4-5",
		MaxTokens: 8192,
		Timeout:   60 * time.Second,
	}
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return NewAnthropicClientWithConfig(DefaultAnthropicConfig(apiKey))
}

// NewAnthropicClientWithConfig creates a new Anthropic client with custom config.
func NewAnthropicClientWithConfig(config AnthropicConfig) *AnthropicClient {
	defaults := DefaultAnthropicConfig(config.APIKey)
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	return &AnthropicClient{
		apiKey:      config.APIKey,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		timeout:     config.Timeout,
		httpClient:  &http.Client{},
	}
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (c *AnthropicClient) do(ctx context.Context, reqBody AnthropicRequest) (*AnthropicResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("anthropic API key not configured")
	}
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	body, err := postJSON(ctx, c.httpClient, ProviderAnthropic, c.baseURL+"/messages", c.headers(), reqBody)
	if err != nil {
		return nil, err
	}

	var resp AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}
	return &resp, nil
}

func (c *AnthropicClient) request(messages []types.Message) AnthropicRequest {
	system, msgs := mapMessagesToAnthropic(messages)
	return AnthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      system,
		Messages:    msgs,
		Temperature: c.temperature,
	}
}

// Invoke implements LLMClient.
func (c *AnthropicClient) Invoke(ctx context.Context, messages []types.Message, tools []ToolDefinition) (*LLMToolResponse, error) {
	startTime := time.Now()
	logging.APIDebug("[Anthropic] Invoke: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	reqBody := c.request(messages)
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	resp, err := c.do(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	result := &LLMToolResponse{
		StopReason: resp.StopReason,
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			input := block.Input
			if input == nil {
				input = map[string]interface{}{}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	result.Text = strings.TrimSpace(text.String())

	logging.API("[Anthropic] Invoke: completed in %v tool_calls=%d", time.Since(startTime), len(result.ToolCalls))
	return result, nil
}

// CompleteStructured implements LLMClient by forcing a single tool whose
// input schema is the response schema; the tool input is the answer.
func (c *AnthropicClient) CompleteStructured(ctx context.Context, messages []types.Message, schema types.ResponseSchema) (string, error) {
	reqBody := c.request(messages)
	reqBody.Tools = []AnthropicTool{{
		Name:        schema.Name,
		Description: "Record the structured answer.",
		InputSchema: schema.Schema,
	}}
	reqBody.ToolChoice = &AnthropicToolChoice{Type: "tool", Name: schema.Name}

	resp, err := c.do(ctx, reqBody)
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == schema.Name {
			data, err := json.Marshal(block.Input)
			if err != nil {
				return "", fmt.Errorf("failed to encode structured answer: %w", err)
			}
			return string(data), nil
		}
	}
	return "", errors.New("model did not return a structured answer")
}

// Stream implements LLMClient.
func (c *AnthropicClient) Stream(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if c.apiKey == "" {
			errorChan <- errors.New("anthropic API key not configured")
			return
		}
		ctx, cancel := withDefaultTimeout(ctx, c.timeout)
		defer cancel()

		reqBody := c.request(messages)
		reqBody.Stream = true
		headers := c.headers()
		headers["Accept"] = "text/event-stream"

		resp, err := openPost(ctx, c.httpClient, ProviderAnthropic, c.baseURL+"/messages", headers, reqBody)
		if err != nil {
			errorChan <- err
			return
		}
		defer resp.Body.Close()

		err = scanSSE(ctx, resp.Body, func(data string) (bool, error) {
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return true, nil
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Text != "" {
					select {
					case contentChan <- event.Delta.Text:
					case <-ctx.Done():
						return false, ctx.Err()
					}
				}
			case "message_stop":
				return false, nil
			case "error":
				if event.Error != nil {
					return false, fmt.Errorf("API error: %s", event.Error.Message)
				}
				return false, errors.New("API error")
			}
			return true, nil
		})
		if err != nil {
			logging.APIError("[Anthropic] Stream: %v", err)
			errorChan <- fmt.Errorf("stream error: %w", err)
		}
	}()

	return contentChan, errorChan
}

// GetModel returns the current model.
func (c *AnthropicClient) GetModel() string {
	return c.model
}
