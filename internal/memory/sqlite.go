package memory

import (
	"context"
	"errors"
	"fmt"

	"termcoder/internal/embedding"
	"termcoder/internal/store"
)

// SQLiteBackend keeps memories in a local SQLite table and ranks them in
// process.
type SQLiteBackend struct {
	vectors *store.VectorStore
	path    string
}

// NewSQLiteBackend opens (or creates) the memory database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	vs, err := store.NewVectorStore(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &SQLiteBackend{vectors: vs, path: path}, nil
}

// Upsert implements Backend.
func (b *SQLiteBackend) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		if err := b.vectors.Upsert(ctx, store.VectorRecord{
			ID:        p.ID,
			Text:      p.Text,
			Embedding: p.Vector,
			Metadata:  p.Metadata,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Search implements Backend.
func (b *SQLiteBackend) Search(ctx context.Context, vector []float32, k int, threshold float64) ([]Record, error) {
	all, err := b.vectors.All(ctx, 0)
	if err != nil {
		return nil, err
	}

	corpus := make([][]float32, len(all))
	for i, rec := range all {
		corpus[i] = rec.Embedding
	}

	top := embedding.FindTopK(vector, corpus, k, threshold)
	out := make([]Record, len(top))
	for i, hit := range top {
		out[i] = toRecord(all[hit.Index])
		out[i].Score = hit.Similarity
	}
	return out, nil
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := b.vectors.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	r := toRecord(*rec)
	return &r, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	return mapStoreErr(b.vectors.Delete(ctx, id))
}

// DeleteWhere implements Backend.
func (b *SQLiteBackend) DeleteWhere(ctx context.Context, key, value string) (int, error) {
	return b.vectors.DeleteWhere(ctx, key, value)
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context, limit int) ([]Record, error) {
	all, err := b.vectors.All(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(all))
	for i, rec := range all {
		out[i] = toRecord(rec)
	}
	return out, nil
}

// Count implements Backend.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	return b.vectors.Count(ctx)
}

// Clear implements Backend.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	return b.vectors.Clear(ctx)
}

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return "sqlite:" + b.path }

// Close implements Backend.
func (b *SQLiteBackend) Close() error { return b.vectors.Close() }

func toRecord(rec store.VectorRecord) Record {
	return Record{
		ID:        rec.ID,
		Text:      rec.Text,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
