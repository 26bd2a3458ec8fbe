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

// OpenAIClient implements LLMClient for OpenAI-compatible chat completion
// APIs (OpenAI, Groq, OpenRouter, Ollama's /v1 endpoint).
type OpenAIClient struct {
	provider    Provider
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: defaultBaseURLs[ProviderOpenAI],
		Model:   "gpt-4o-mini",
		Timeout: 60 * time.Second,
	}
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(ProviderOpenAI, DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a client for any OpenAI-compatible provider.
func NewOpenAIClientWithConfig(provider Provider, config OpenAIConfig) *OpenAIClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[provider]
	}
	return &OpenAIClient{
		provider:    provider,
		apiKey:      config.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       config.Model,
		temperature: config.Temperature,
		timeout:     config.Timeout,
		// Streams are bounded by the request context instead of a client timeout.
		httpClient: &http.Client{},
	}
}

func (c *OpenAIClient) headers() map[string]string {
	h := map[string]string{}
	if c.apiKey != "" {
		h["Authorization"] = "Bearer " + c.apiKey
	}
	return h
}

func (c *OpenAIClient) checkKey() error {
	if c.apiKey == "" && c.provider != ProviderOllama {
		return fmt.Errorf("%s API key not configured", c.provider)
	}
	return nil
}

func (c *OpenAIClient) do(ctx context.Context, reqBody OpenAIRequest) (*OpenAIResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	body, err := postJSON(ctx, c.httpClient, c.provider, c.baseURL+"/chat/completions", c.headers(), reqBody)
	if err != nil {
		return nil, err
	}

	var resp OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion returned")
	}
	return &resp, nil
}

// Invoke implements LLMClient.
func (c *OpenAIClient) Invoke(ctx context.Context, messages []types.Message, tools []ToolDefinition) (*LLMToolResponse, error) {
	if err := c.checkKey(); err != nil {
		return nil, err
	}
	startTime := time.Now()
	logging.APIDebug("[%s] Invoke: model=%s messages=%d tools=%d", c.provider, c.model, len(messages), len(tools))

	msgs, err := mapMessagesToOpenAI(messages)
	if err != nil {
		return nil, err
	}
	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		reqBody.Tools = MapToolDefinitionsToOpenAI(tools)
	}

	resp, err := c.do(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	choice := resp.Choices[0]
	calls, err := MapOpenAIToolCallsToInternal(choice.Message.ToolCalls)
	if err != nil {
		return nil, err
	}

	stop := "end_turn"
	if len(calls) > 0 {
		stop = "tool_use"
	}
	logging.API("[%s] Invoke: completed in %v tool_calls=%d", c.provider, time.Since(startTime), len(calls))

	return &LLMToolResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		ToolCalls:  calls,
		StopReason: stop,
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStructured implements LLMClient using response_format json_schema.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, messages []types.Message, schema types.ResponseSchema) (string, error) {
	if err := c.checkKey(); err != nil {
		return "", err
	}
	msgs, err := mapMessagesToOpenAI(messages)
	if err != nil {
		return "", err
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		ResponseFormat: &OpenAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &OpenAIJSONSchema{
				Name:   schema.Name,
				Strict: true,
				Schema: schema.Schema,
			},
		},
	}

	resp, err := c.do(ctx, reqBody)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Stream implements LLMClient.
// Returns channels of incremental content deltas.
func (c *OpenAIClient) Stream(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if err := c.checkKey(); err != nil {
			errorChan <- err
			return
		}
		msgs, err := mapMessagesToOpenAI(messages)
		if err != nil {
			errorChan <- err
			return
		}

		ctx, cancel := withDefaultTimeout(ctx, c.timeout)
		defer cancel()

		startTime := time.Now()
		reqBody := OpenAIRequest{
			Model:         c.model,
			Messages:      msgs,
			Temperature:   c.temperature,
			Stream:        true,
			StreamOptions: &OpenAIStreamOptions{IncludeUsage: true},
		}
		headers := c.headers()
		headers["Accept"] = "text/event-stream"

		resp, err := openPost(ctx, c.httpClient, c.provider, c.baseURL+"/chat/completions", headers, reqBody)
		if err != nil {
			errorChan <- err
			return
		}
		defer resp.Body.Close()

		err = scanSSE(ctx, resp.Body, func(data string) (bool, error) {
			if data == "[DONE]" {
				return false, nil
			}
			var chunk OpenAIResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return true, nil
			}
			if chunk.Error != nil {
				return false, fmt.Errorf("API error: %s", chunk.Error.Message)
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					select {
					case contentChan <- delta:
					case <-ctx.Done():
						return false, ctx.Err()
					}
				}
			}
			return true, nil
		})
		if err != nil {
			logging.APIError("[%s] Stream: error after %v: %v", c.provider, time.Since(startTime), err)
			errorChan <- fmt.Errorf("stream error: %w", err)
			return
		}
		logging.API("[%s] Stream: completed in %v", c.provider, time.Since(startTime))
	}()

	return contentChan, errorChan
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	return c.model
}
