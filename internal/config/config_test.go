package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"GROQ_API_KEY", "OPENROUTER_API_KEY", "OLLAMA_HOST", "QDRANT_ADDR",
		"EMBEDDINGS_MODEL_NAME", "VECTOR_DB_FILE", "TERMCODER_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, "sqlite", cfg.Memory.Backend)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 8, cfg.Graph.SummaryThreshold)
	assert.Equal(t, 9, cfg.Graph.SummaryWindow)
	assert.False(t, cfg.Logging.DebugMode)

	assert.Equal(t, 2*time.Second, cfg.GetQuietPeriod())
	assert.Equal(t, time.Second, cfg.GetIdleQuiet())
	assert.Equal(t, 30*time.Second, cfg.GetHardTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetStopGrace())

	minWait, maxWait := cfg.GetRetryWaits()
	assert.Equal(t, 4*time.Second, minWait)
	assert.Equal(t, 10*time.Second, maxWait)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), DirName, "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-test"
	cfg.Memory.Backend = "qdrant"
	cfg.Shell.HardTimeout = "45s"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", loaded.LLM.Provider)
	assert.Equal(t, "claude-test", loaded.LLM.Model)
	assert.Equal(t, "qdrant", loaded.Memory.Backend)
	assert.Equal(t, 45*time.Second, loaded.GetHardTimeout())
}

func TestConfig_LoadMissingFile(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().LLM.Model, cfg.LLM.Model)
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "ignored-for-openai")
	t.Setenv("QDRANT_ADDR", "qdrant:6334")
	t.Setenv("VECTOR_DB_FILE", "/tmp/vectors.db")
	t.Setenv("EMBEDDINGS_MODEL_NAME", "mxbai-embed-large")
	t.Setenv("TERMCODER_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "qdrant:6334", cfg.Memory.QdrantAddr)
	assert.Equal(t, "/tmp/vectors.db", cfg.Memory.DatabasePath)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.OllamaModel)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_EnvDoesNotOverrideFileKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-file"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", loaded.LLM.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GROQ_API_KEY=gsk-dotenv\n"), 0644))

	// godotenv does not override set variables, so unset first.
	require.NoError(t, os.Unsetenv("GROQ_API_KEY"))
	require.NoError(t, LoadDotEnv(envPath))
	assert.Equal(t, "gsk-dotenv", os.Getenv("GROQ_API_KEY"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) { c.LLM.APIKey = "k" }, false},
		{"ollama needs no key", func(c *Config) { c.LLM.Provider = "ollama" }, false},
		{"missing key", func(c *Config) {}, true},
		{"bad provider", func(c *Config) { c.LLM.Provider = "nope"; c.LLM.APIKey = "k" }, true},
		{"bad backend", func(c *Config) { c.LLM.APIKey = "k"; c.Memory.Backend = "redis" }, true},
		{"bad embedding", func(c *Config) { c.LLM.APIKey = "k"; c.Embedding.Provider = "x" }, true},
		{"genai without key", func(c *Config) { c.LLM.APIKey = "k"; c.Embedding.Provider = "genai" }, true},
		{"bad duration", func(c *Config) { c.LLM.APIKey = "k"; c.Shell.HardTimeout = "soon" }, true},
		{"zero iterations", func(c *Config) { c.LLM.APIKey = "k"; c.Agent.MaxIterations = 0 }, true},
		{"threshold out of range", func(c *Config) { c.LLM.APIKey = "k"; c.Memory.ScoreThreshold = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shell.QuietPeriod = "garbage"
	assert.Equal(t, 2*time.Second, cfg.GetQuietPeriod(), "invalid durations fall back")

	cfg.Resolve("/work")
	assert.Equal(t, filepath.Join("/work", DirName, "memory.db"), cfg.Memory.DatabasePath)
	assert.Equal(t, filepath.Join("/work", DirName, "history.db"), cfg.Conversation.DatabasePath)

	lc := LoggingConfig{DebugMode: true, Categories: map[string]bool{"tools": false}}
	assert.False(t, lc.IsCategoryEnabled("tools"))
	assert.True(t, lc.IsCategoryEnabled("graph"))
	assert.False(t, (&LoggingConfig{}).IsCategoryEnabled("graph"))
	assert.True(t, lc.Settings().DebugMode)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	updated := DefaultConfig()
	updated.LLM.Model = "reloaded-model"
	require.NoError(t, updated.Save(path))

	select {
	case c := <-changes:
		assert.Equal(t, "reloaded-model", c.LLM.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	require.NoError(t, <-done)
}
