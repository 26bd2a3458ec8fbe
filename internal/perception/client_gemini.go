package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

// GeminiClient implements LLMClient for Google Gemini through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.5-flash",
		Timeout: 60 * time.Second,
	}
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = DefaultGeminiConfig("").Model
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		model:       config.Model,
		temperature: float32(config.Temperature),
		timeout:     config.Timeout,
	}, nil
}

func (c *GeminiClient) baseConfig(system string) *genai.GenerateContentConfig {
	temp := c.temperature
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	return config
}

// Invoke implements LLMClient.
func (c *GeminiClient) Invoke(ctx context.Context, messages []types.Message, tools []ToolDefinition) (*LLMToolResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	contents, system := mapMessagesToGemini(messages)
	config := c.baseConfig(system)
	if len(tools) > 0 {
		decls, err := mapToolsToGemini(tools)
		if err != nil {
			return nil, err
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	result := mapGeminiResponse(resp)
	logging.API("[Gemini] Invoke: completed in %v tool_calls=%d", time.Since(startTime), len(result.ToolCalls))
	return result, nil
}

// CompleteStructured implements LLMClient with a JSON response schema.
func (c *GeminiClient) CompleteStructured(ctx context.Context, messages []types.Message, schema types.ResponseSchema) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	contents, system := mapMessagesToGemini(messages)
	config := c.baseConfig(system)
	config.ResponseMIMEType = "application/json"
	s, err := toGeminiSchema(schema.Schema)
	if err != nil {
		return "", err
	}
	config.ResponseSchema = s

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	return strings.TrimSpace(mapGeminiResponse(resp).Text), nil
}

// Stream implements LLMClient.
func (c *GeminiClient) Stream(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		ctx, cancel := withDefaultTimeout(ctx, c.timeout)
		defer cancel()

		contents, system := mapMessagesToGemini(messages)
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, c.baseConfig(system)) {
			if err != nil {
				errorChan <- fmt.Errorf("stream error: %w", err)
				return
			}
			if text := mapGeminiResponse(resp).Text; text != "" {
				select {
				case contentChan <- text:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}
		}
	}()

	return contentChan, errorChan
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// mapMessagesToGemini converts history to genai contents. Gemini has no
// call ids, so tool results are matched by function name.
func mapMessagesToGemini(messages []types.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			system = append(system, msg.Content)
		case types.RoleHuman:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case types.RoleAI:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Input},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case types.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.Name,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func mapToolsToGemini(tools []ToolDefinition) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema, err := toGeminiSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return decls, nil
}

func mapGeminiResponse(resp *genai.GenerateContentResponse) *LLMToolResponse {
	result := &LLMToolResponse{StopReason: "end_turn"}
	if resp == nil {
		return result
	}
	if resp.UsageMetadata != nil {
		result.Usage = types.UsageMetadata{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return result
	}

	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:    fmt.Sprintf("%s_%d", part.FunctionCall.Name, i),
				Name:  part.FunctionCall.Name,
				Input: args,
			})
		}
	}
	result.Text = text.String()
	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	}
	return result
}

// toGeminiSchema converts a JSON schema map into a genai.Schema. genai
// spells types in upper case.
func toGeminiSchema(schema map[string]interface{}) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	data, err := json.Marshal(upperTypes(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var out genai.Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}
	return &out, nil
}

func upperTypes(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if k == "type" {
				if s, ok := item.(string); ok {
					out[k] = strings.ToUpper(s)
					continue
				}
			}
			// genai.Schema has no additionalProperties field.
			if k == "additionalProperties" {
				continue
			}
			out[k] = upperTypes(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = upperTypes(item)
		}
		return out
	default:
		return v
	}
}
