// Package memory is the semantic memory store: free text is embedded,
// stored with optional metadata and recalled by nearest-neighbour search.
// Records live in a Backend (local SQLite table or a Qdrant collection).
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"termcoder/internal/embedding"
	"termcoder/internal/logging"
)

var (
	// ErrProviderUnavailable means the embedding provider could not be used.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrStoreUnavailable means the vector backend could not be reached.
	ErrStoreUnavailable = errors.New("memory store unavailable")
	// ErrNotFound is returned for unknown record ids.
	ErrNotFound = errors.New("memory not found")
	// ErrEmptyText is returned when asked to store blank text.
	ErrEmptyText = errors.New("memory text is empty")
)

// Record is one stored memory.
type Record struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Score     float64 // similarity for search results
	CreatedAt time.Time
}

// Point is what backends persist.
type Point struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Backend persists points and answers nearest-neighbour queries.
type Backend interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, k int, threshold float64) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	DeleteWhere(ctx context.Context, key, value string) (int, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Name() string
	Close() error
}

// Info summarises the store.
type Info struct {
	Backend    string
	Engine     string
	Dimensions int
	Count      int
}

// Options tune search defaults.
type Options struct {
	DefaultK       int
	ScoreThreshold float64
}

// Service is the memory store used by capabilities and the graph.
type Service struct {
	backend Backend
	engine  embedding.EmbeddingEngine
	opts    Options
}

// NewService wires a backend to an embedding engine.
func NewService(backend Backend, engine embedding.EmbeddingEngine, opts Options) *Service {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 4
	}
	return &Service{backend: backend, engine: engine, opts: opts}
}

// DefaultK returns the result count used when a search passes k <= 0.
func (s *Service) DefaultK() int { return s.opts.DefaultK }

// Threshold returns the configured minimum similarity.
func (s *Service) Threshold() float64 { return s.opts.ScoreThreshold }

// Close releases the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}

// Add embeds and stores texts, returning their new ids in input order.
// metadata (may be nil) is attached to every record.
func (s *Service) Add(ctx context.Context, texts []string, metadata map[string]string) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Add")
	defer timer.Stop()

	cleaned := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyText
	}

	vectors, err := s.engine.EmbedBatch(ctx, cleaned)
	if err != nil {
		return nil, s.providerError(err)
	}

	points := make([]Point, len(cleaned))
	ids := make([]string, len(cleaned))
	for i, text := range cleaned {
		ids[i] = uuid.NewString()
		points[i] = Point{ID: ids[i], Text: text, Vector: vectors[i], Metadata: copyMeta(metadata)}
	}
	if err := s.backend.Upsert(ctx, points); err != nil {
		return nil, err
	}

	logging.Memory("Added %d memories via %s", len(ids), s.backend.Name())
	return ids, nil
}

// Search returns up to k records most similar to query with similarity at
// or above threshold, best first. k <= 0 uses the configured default.
func (s *Service) Search(ctx context.Context, query string, k int, threshold float64) ([]Record, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Search")
	defer timer.Stop()

	if k <= 0 {
		k = s.opts.DefaultK
	}
	vec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, s.providerError(err)
	}

	records, err := s.backend.Search(ctx, vec, k, threshold)
	if err != nil {
		return nil, err
	}
	logging.MemoryDebug("Search %q: %d results (k=%d, threshold=%.2f)", query, len(records), k, threshold)
	return records, nil
}

// Recall is Search with the configured defaults.
func (s *Service) Recall(ctx context.Context, query string) ([]Record, error) {
	return s.Search(ctx, query, s.opts.DefaultK, s.opts.ScoreThreshold)
}

// Update replaces a record's text and regenerates its embedding. Metadata
// is kept.
func (s *Service) Update(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	existing, err := s.backend.Get(ctx, id)
	if err != nil {
		return err
	}

	vec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return s.providerError(err)
	}
	if err := s.backend.Upsert(ctx, []Point{{ID: id, Text: text, Vector: vec, Metadata: existing.Metadata}}); err != nil {
		return err
	}
	logging.Memory("Updated memory %s", id)
	return nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.backend.Get(ctx, id)
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return err
	}
	logging.Memory("Deleted memory %s", id)
	return nil
}

// DeleteByFilter removes all records whose metadata key equals value.
func (s *Service) DeleteByFilter(ctx context.Context, key, value string) (int, error) {
	if key == "" {
		return 0, fmt.Errorf("filter key is required")
	}
	n, err := s.backend.DeleteWhere(ctx, key, value)
	if err != nil {
		return n, err
	}
	logging.Memory("Deleted %d memories where %s=%s", n, key, value)
	return n, nil
}

// List returns stored records, oldest first. limit <= 0 lists everything.
func (s *Service) List(ctx context.Context, limit int) ([]Record, error) {
	return s.backend.List(ctx, limit)
}

// Clear removes every record.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return err
	}
	logging.Memory("Cleared memory store (%s)", s.backend.Name())
	return nil
}

// Info reports backend, engine and record count.
func (s *Service) Info(ctx context.Context) (Info, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Backend:    s.backend.Name(),
		Engine:     s.engine.Name(),
		Dimensions: s.engine.Dimensions(),
		Count:      n,
	}, nil
}

func (s *Service) providerError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logging.MemoryWarn("Embedding via %s failed: %v", s.engine.Name(), err)
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FormatRecords renders records as a numbered list for model consumption.
func FormatRecords(records []Record) string {
	if len(records) == 0 {
		return "No memories found."
	}
	var sb strings.Builder
	for i, r := range records {
		fmt.Fprintf(&sb, "%d. [%s] %s", i+1, r.ID, r.Text)
		if r.Score != 0 {
			fmt.Fprintf(&sb, " (score %.2f)", r.Score)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
