package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	s, err := NewVectorStore(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorStore_UpsertGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestVectorStore(t)

	require.NoError(t, s.Upsert(ctx, VectorRecord{
		ID:        "a",
		Text:      "fact A",
		Embedding: []float32{0.5, -0.25},
		Metadata:  map[string]string{"topic": "prefs"},
	}))

	rec, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "fact A", rec.Text)
	assert.Equal(t, []float32{0.5, -0.25}, rec.Embedding)
	assert.Equal(t, "prefs", rec.Metadata["topic"])
	created := rec.CreatedAt

	require.NoError(t, s.Upsert(ctx, VectorRecord{ID: "a", Text: "fact A2", Embedding: []float32{1, 0}}))
	rec, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "fact A2", rec.Text)
	assert.Equal(t, created, rec.CreatedAt, "creation time survives updates")

	_, err = s.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestVectorStore_DeleteAndFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestVectorStore(t)

	for _, rec := range []VectorRecord{
		{ID: "1", Text: "one", Embedding: []float32{1}, Metadata: map[string]string{"kind": "x"}},
		{ID: "2", Text: "two", Embedding: []float32{1}, Metadata: map[string]string{"kind": "y"}},
		{ID: "3", Text: "three", Embedding: []float32{1}, Metadata: map[string]string{"kind": "x"}},
	} {
		require.NoError(t, s.Upsert(ctx, rec))
	}

	removed, err := s.DeleteWhere(ctx, "kind", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, "2"))
	assert.ErrorIs(t, s.Delete(ctx, "2"), ErrRecordNotFound)

	require.NoError(t, s.Upsert(ctx, VectorRecord{ID: "4", Text: "four", Embedding: []float32{1}}))
	require.NoError(t, s.Clear(ctx))
	all, err := s.All(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestVectorStore_AllLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestVectorStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, VectorRecord{ID: id, Text: id, Embedding: []float32{0}}))
	}
	all, err := s.All(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMigrations_AddMissingColumns(t *testing.T) {
	t.Parallel()

	db, err := Open(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	assert.False(t, columnExists(db, "notes", "edited_at"))

	migrations := []Migration{
		{"notes", "edited_at", "INTEGER NOT NULL DEFAULT 0"},
		{"absent", "flag", "INTEGER"},
	}
	require.NoError(t, applyMigrations(db, migrations))
	assert.True(t, columnExists(db, "notes", "edited_at"))
	assert.False(t, tableExists(db, "absent"))

	require.NoError(t, applyMigrations(db, migrations), "migrations are idempotent")
}

func TestMigrations_FreshSchemaIsCurrent(t *testing.T) {
	t.Parallel()

	db, err := Open(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewConversationStoreWithDB(db)
	require.NoError(t, err)
	assert.True(t, columnExists(db, "threads", "updated_at"))
	require.NoError(t, RunMigrations(db))
}
