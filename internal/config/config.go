package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace state directory.
const DirName = ".termcoder"

// Config holds all termcoder configuration.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine used by the memory store
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Semantic memory store
	Memory MemoryConfig `yaml:"memory"`

	// Conversation history store
	Conversation ConversationConfig `yaml:"conversation"`

	// Persistent shell sessions
	Shell ShellConfig `yaml:"shell"`

	// Tool-calling agent loop
	Agent AgentConfig `yaml:"agent"`

	// Orchestration graph
	Graph GraphConfig `yaml:"graph"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ConversationConfig configures the thread/message store.
type ConversationConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ShellConfig configures the persistent shell session manager.
type ShellConfig struct {
	// Shell overrides $SHELL detection (e.g. /bin/zsh)
	Shell string `yaml:"shell"`

	// QuietPeriod is how long interactive commands wait for output before checking for a prompt
	QuietPeriod string `yaml:"quiet_period"`

	// IdleQuiet is the quiet gap that ends a non-interactive command
	IdleQuiet string `yaml:"idle_quiet"`

	// HardTimeout bounds every command
	HardTimeout string `yaml:"hard_timeout"`

	// StopGrace is the wait between terminate and kill
	StopGrace string `yaml:"stop_grace"`
}

// AgentConfig configures the tool-calling loop.
type AgentConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	ToolTimeout   string `yaml:"tool_timeout"`
}

// GraphConfig configures the orchestration graph.
type GraphConfig struct {
	// SummaryThreshold is the history length above which compaction runs
	SummaryThreshold int `yaml:"summary_threshold"`

	// SummaryWindow is the last interior index replaced by a summary
	SummaryWindow int `yaml:"summary_window"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			Temperature:  0,
			Timeout:      "60s",
			MaxRetries:   3,
			RetryMinWait: "4s",
			RetryMaxWait: "10s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "nomic-embed-text",
			GenAIModel:     "gemini-embedding-001",
			Dimensions:     768,
		},
		Memory: MemoryConfig{
			Backend:        "sqlite",
			DatabasePath:   filepath.Join(DirName, "memory.db"),
			QdrantAddr:     "localhost:6334",
			Collection:     "app_collection",
			ScoreThreshold: 0.5,
			DefaultK:       4,
		},
		Conversation: ConversationConfig{
			DatabasePath: filepath.Join(DirName, "history.db"),
		},
		Shell: ShellConfig{
			QuietPeriod: "2s",
			IdleQuiet:   "1s",
			HardTimeout: "30s",
			StopGrace:   "5s",
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			ToolTimeout:   "2m",
		},
		Graph: GraphConfig{
			SummaryThreshold: 8,
			SummaryWindow:    9,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config path for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file.
// A missing file yields defaults; environment overrides always apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Keys only fill in the provider that is configured.
	if key := os.Getenv(providerKeyEnv[c.LLM.Provider]); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
		if c.LLM.Provider == "ollama" && c.LLM.BaseURL == "" {
			c.LLM.BaseURL = host
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = key
	}
	if model := os.Getenv("EMBEDDINGS_MODEL_NAME"); model != "" {
		switch c.Embedding.Provider {
		case "genai":
			c.Embedding.GenAIModel = model
		default:
			c.Embedding.OllamaModel = model
		}
	}
	if addr := os.Getenv("QDRANT_ADDR"); addr != "" {
		c.Memory.QdrantAddr = addr
	}
	if path := os.Getenv("VECTOR_DB_FILE"); path != "" {
		c.Memory.DatabasePath = path
	}
	if os.Getenv("TERMCODER_DEBUG") != "" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// Resolve makes relative storage paths absolute against the workspace root.
func (c *Config) Resolve(workspace string) {
	if !filepath.IsAbs(c.Memory.DatabasePath) {
		c.Memory.DatabasePath = filepath.Join(workspace, c.Memory.DatabasePath)
	}
	if !filepath.IsAbs(c.Conversation.DatabasePath) {
		c.Conversation.DatabasePath = filepath.Join(workspace, c.Conversation.DatabasePath)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}

	switch c.Embedding.Provider {
	case "ollama", "genai", "local":
	default:
		return fmt.Errorf("invalid embedding provider: %s (valid: ollama, genai, local)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embeddings require GEMINI_API_KEY")
	}

	switch c.Memory.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("invalid memory backend: %s (valid: sqlite, qdrant)", c.Memory.Backend)
	}
	if c.Memory.ScoreThreshold < -1 || c.Memory.ScoreThreshold > 1 {
		return fmt.Errorf("memory.score_threshold must be within [-1, 1], got %v", c.Memory.ScoreThreshold)
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Graph.SummaryThreshold <= 0 || c.Graph.SummaryWindow <= 0 {
		return fmt.Errorf("graph summary settings must be positive")
	}

	for name, value := range map[string]string{
		"shell.quiet_period": c.Shell.QuietPeriod,
		"shell.idle_quiet":   c.Shell.IdleQuiet,
		"shell.hard_timeout": c.Shell.HardTimeout,
		"shell.stop_grace":   c.Shell.StopGrace,
		"agent.tool_timeout": c.Agent.ToolTimeout,
		"llm.timeout":        c.LLM.Timeout,
	} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", name, value)
		}
	}
	return nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetRetryWaits returns the min/max backoff between model retries.
func (c *Config) GetRetryWaits() (time.Duration, time.Duration) {
	return parseDuration(c.LLM.RetryMinWait, 4*time.Second), parseDuration(c.LLM.RetryMaxWait, 10*time.Second)
}

// GetQuietPeriod returns the interactive quiet period.
func (c *Config) GetQuietPeriod() time.Duration {
	return parseDuration(c.Shell.QuietPeriod, 2*time.Second)
}

// GetIdleQuiet returns the non-interactive quiet gap.
func (c *Config) GetIdleQuiet() time.Duration {
	return parseDuration(c.Shell.IdleQuiet, time.Second)
}

// GetHardTimeout returns the per-command ceiling.
func (c *Config) GetHardTimeout() time.Duration {
	return parseDuration(c.Shell.HardTimeout, 30*time.Second)
}

// GetStopGrace returns the terminate-to-kill grace period.
func (c *Config) GetStopGrace() time.Duration {
	return parseDuration(c.Shell.StopGrace, 5*time.Second)
}

// GetToolTimeout returns the per-capability timeout used by the agent loop.
func (c *Config) GetToolTimeout() time.Duration {
	return parseDuration(c.Agent.ToolTimeout, 2*time.Minute)
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .termcoder directory, then a .git directory or go.mod. Falls back to cwd.
func FindWorkspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for _, marker := range []string{DirName, ".git", "go.mod"} {
		dir := cwd
		for {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return cwd, nil
}
