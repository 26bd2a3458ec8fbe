package config

// MemoryConfig configures the semantic memory store.
type MemoryConfig struct {
	// Backend: "sqlite" (file next to the workspace) or "qdrant"
	Backend string `yaml:"backend"`

	// SQLite backend file
	DatabasePath string `yaml:"database_path"`

	// Qdrant backend (gRPC address, collection)
	QdrantAddr string `yaml:"qdrant_addr"`
	Collection string `yaml:"collection"`

	// Matches below this cosine similarity are dropped
	ScoreThreshold float64 `yaml:"score_threshold"`

	// DefaultK is the result count when a search does not specify one
	DefaultK int `yaml:"default_k"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local), GenAI (cloud) and a local hashing engine.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai" or "local"
	Provider string `yaml:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// Dimensions of the produced vectors
	Dimensions int `yaml:"dimensions"`
}
