package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"termcoder/internal/logging"
)

// ErrRecordNotFound is returned when a vector record id is unknown.
var ErrRecordNotFound = errors.New("record not found")

// VectorRecord is one stored text with its embedding.
type VectorRecord struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VectorStore keeps embedded texts in a SQLite table. Embeddings are
// JSON-encoded; ranking happens in Go.
type VectorStore struct {
	db *sql.DB
	mu sync.RWMutex
}

const vectorSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT 0
);
`

// NewVectorStore opens the vector database at path.
func NewVectorStore(path string) (*VectorStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(vectorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &VectorStore{db: db}, nil
}

// Close closes the underlying database.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a record, keeping the original creation time.
func (s *VectorStore) Upsert(ctx context.Context, rec VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Embedding == nil {
		rec.Embedding = []float32{}
	}
	embeddingJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, embedding, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Text, string(embeddingJSON), string(metaJSON), now, now,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to upsert vector %s: %v", rec.ID, err)
		return err
	}
	return nil
}

// Get returns one record.
func (s *VectorStore) Get(ctx context.Context, id string) (*VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, content, embedding, metadata, created_at, updated_at FROM memories WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return rec, err
}

// All returns every record, oldest first. limit <= 0 means no limit.
func (s *VectorStore) All(ctx context.Context, limit int) ([]VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, content, embedding, metadata, created_at, updated_at FROM memories ORDER BY created_at ASC, id ASC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorRecord
	skipped := 0
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, *rec)
	}
	if skipped > 0 {
		logging.StoreWarn("Skipped %d unreadable vector rows", skipped)
	}
	return out, rows.Err()
}

// Delete removes one record.
func (s *VectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// DeleteWhere removes every record whose metadata has key == value and
// returns how many were removed.
func (s *VectorStore) DeleteWhere(ctx context.Context, key, value string) (int, error) {
	records, err := s.All(ctx, 0)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, rec := range records {
		if v, ok := rec.Metadata[key]; !ok || v != value {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", rec.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Count returns the number of stored records.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n)
	return n, err
}

// Clear removes every record.
func (s *VectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM memories")
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*VectorRecord, error) {
	var rec VectorRecord
	var embeddingJSON, metaJSON string
	var created, updated int64
	if err := row.Scan(&rec.ID, &rec.Text, &embeddingJSON, &metaJSON, &created, &updated); err != nil {
		return nil, err
	}

	vec, err := parseVectorJSON([]byte(embeddingJSON), nil)
	if err != nil {
		return nil, fmt.Errorf("record %s: bad embedding: %w", rec.ID, err)
	}
	rec.Embedding = vec

	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("record %s: bad metadata: %w", rec.ID, err)
		}
	}
	rec.CreatedAt = time.UnixMilli(created)
	if updated > 0 {
		rec.UpdatedAt = time.UnixMilli(updated)
	}
	return &rec, nil
}
