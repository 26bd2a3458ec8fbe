package config

import "fmt"

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic, gemini, ollama, groq, openrouter
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`

	// Retry policy: MaxRetries attempts with exponential waits clamped to [RetryMinWait, RetryMaxWait]
	MaxRetries   int    `yaml:"max_retries"`
	RetryMinWait string `yaml:"retry_min_wait"`
	RetryMaxWait string `yaml:"retry_max_wait"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "anthropic", "gemini", "ollama", "groq", "openrouter"}

// providerKeyEnv maps providers to the environment variable holding their key.
var providerKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// RequiresAPIKey reports whether the provider is hosted.
func (c LLMConfig) RequiresAPIKey() bool {
	return c.Provider != "ollama"
}

// KeyEnv returns the environment variable consulted for the provider key.
func (c LLMConfig) KeyEnv() string {
	return providerKeyEnv[c.Provider]
}

func (c LLMConfig) validate() error {
	valid := false
	for _, p := range ValidProviders {
		if c.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.Provider, ValidProviders)
	}
	if c.RequiresAPIKey() && c.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set %s)", c.KeyEnv())
	}
	if c.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("llm.max_retries must be at least 1")
	}
	return nil
}
