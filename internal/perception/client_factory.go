package perception

import (
	"context"
	"fmt"

	"termcoder/internal/config"
	"termcoder/internal/logging"
)

// NewClientFromConfig builds the configured provider client wrapped with
// retry and tracing.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	base, err := newProviderClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	minWait, maxWait := cfg.GetRetryWaits()
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = cfg.LLM.MaxRetries
	policy.MinWait = minWait
	policy.MaxWait = maxWait

	logging.Boot("model gateway: provider=%s model=%s attempts=%d", cfg.LLM.Provider, base.GetModel(), policy.MaxAttempts)
	return NewTracingLLMClient(NewRetryingClient(base, policy)), nil
}

func newProviderClient(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	llm := cfg.LLM
	timeout := cfg.GetLLMTimeout()

	switch Provider(llm.Provider) {
	case ProviderOpenAI, ProviderGroq, ProviderOpenRouter, ProviderOllama:
		baseURL := llm.BaseURL
		if Provider(llm.Provider) == ProviderOllama && baseURL != "" {
			baseURL = ollamaV1(baseURL)
		}
		return NewOpenAIClientWithConfig(Provider(llm.Provider), OpenAIConfig{
			APIKey:      llm.APIKey,
			BaseURL:     baseURL,
			Model:       llm.Model,
			Temperature: llm.Temperature,
			Timeout:     timeout,
		}), nil

	case ProviderAnthropic:
		return NewAnthropicClientWithConfig(AnthropicConfig{
			APIKey:      llm.APIKey,
			BaseURL:     llm.BaseURL,
			Model:       llm.Model,
			Temperature: llm.Temperature,
			Timeout:     timeout,
		}), nil

	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      llm.APIKey,
			Model:       llm.Model,
			Temperature: llm.Temperature,
			Timeout:     timeout,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llm.Provider)
	}
}

// ollamaV1 points an Ollama host at its OpenAI-compatible endpoint.
func ollamaV1(host string) string {
	for len(host) > 0 && host[len(host)-1] == '/' {
		host = host[:len(host)-1]
	}
	if len(host) >= 3 && host[len(host)-3:] == "/v1" {
		return host
	}
	return host + "/v1"
}
