package memory

import (
	"context"
	"fmt"

	"termcoder/internal/config"
	"termcoder/internal/embedding"
)

// NewFromConfig builds the memory service for the configured backend and
// embedding engine. cfg must already be resolved against the workspace.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	engine, err := embedding.NewEngine(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var backend Backend
	switch cfg.Memory.Backend {
	case "qdrant":
		backend, err = NewQdrantBackend(cfg.Memory.QdrantAddr, cfg.Memory.Collection, engine.Dimensions())
	case "sqlite", "":
		backend, err = NewSQLiteBackend(cfg.Memory.DatabasePath)
	default:
		err = fmt.Errorf("unsupported memory backend: %s", cfg.Memory.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewService(backend, engine, Options{
		DefaultK:       cfg.Memory.DefaultK,
		ScoreThreshold: cfg.Memory.ScoreThreshold,
	}), nil
}
