package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcoder/internal/config"
	"termcoder/internal/embedding"
	"termcoder/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	backend, err := NewSQLiteBackend(store.MemoryPath)
	require.NoError(t, err)
	svc := NewService(backend, embedding.NewHashEngine(256), Options{DefaultK: 4, ScoreThreshold: 0.5})
	t.Cleanup(func() { svc.Close() })
	return svc
}

type brokenEngine struct{ embedding.EmbeddingEngine }

func (brokenEngine) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrUnavailable
}

func (brokenEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrUnavailable
}

func (brokenEngine) Name() string { return "broken" }

// =============================================================================
// ADD / SEARCH
// =============================================================================

func TestService_AddSearchRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	ids, err := svc.Add(ctx, []string{"fact A"}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	got, err := svc.Search(ctx, "fact A", 1, svc.Threshold())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fact A", got[0].Text)
	assert.Equal(t, ids[0], got[0].ID)
	assert.GreaterOrEqual(t, got[0].Score, svc.Threshold())
}

func TestService_SearchRanksAndFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Add(ctx, []string{
		"my favourite editor is neovim",
		"the project uses postgres for storage",
		"deploys happen on fridays",
	}, map[string]string{"source": "chat"})
	require.NoError(t, err)

	got, err := svc.Search(ctx, "favourite editor neovim", 3, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "my favourite editor is neovim", got[0].Text)
	assert.Equal(t, "chat", got[0].Metadata["source"])
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	none, err := svc.Search(ctx, "completely unrelated zebra", 3, 0.99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_AddRejectsEmpty(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	_, err := svc.Add(context.Background(), []string{"ok", "  "}, nil)
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = svc.Add(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyText)
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

func TestService_UpdateReembeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	ids, err := svc.Add(ctx, []string{"I use tabs"}, map[string]string{"kind": "pref"})
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, ids[0], "I use spaces"))

	rec, err := svc.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "I use spaces", rec.Text)
	assert.Equal(t, "pref", rec.Metadata["kind"], "metadata survives updates")

	got, err := svc.Search(ctx, "I use spaces", 1, 0.9)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[0], got[0].ID)

	assert.ErrorIs(t, svc.Update(ctx, "missing", "x"), ErrNotFound)
}

func TestService_DeleteAndFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	a, err := svc.Add(ctx, []string{"alpha", "beta"}, map[string]string{"topic": "greek"})
	require.NoError(t, err)
	_, err = svc.Add(ctx, []string{"gamma"}, map[string]string{"topic": "other"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a[0]))
	assert.ErrorIs(t, svc.Delete(ctx, a[0]), ErrNotFound)

	n, err := svc.DeleteByFilter(ctx, "topic", "greek")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.DeleteByFilter(ctx, "", "x")
	assert.Error(t, err)

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "gamma", list[0].Text)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 256, info.Dimensions)

	require.NoError(t, svc.Clear(ctx))
	info, err = svc.Info(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Count)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestService_ProviderUnavailable(t *testing.T) {
	t.Parallel()
	backend, err := NewSQLiteBackend(store.MemoryPath)
	require.NoError(t, err)
	svc := NewService(backend, brokenEngine{}, Options{})
	defer svc.Close()

	_, err = svc.Add(context.Background(), []string{"x"}, nil)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))

	_, err = svc.Search(context.Background(), "x", 0, 0)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestService_CanceledContextIsNotProviderFailure(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Search(ctx, "x", 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}

func TestFormatRecords(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "No memories found.", FormatRecords(nil))
	out := FormatRecords([]Record{{ID: "1", Text: "a", Score: 0.75}, {ID: "2", Text: "b"}})
	assert.Equal(t, "1. [1] a (score 0.75)\n2. [2] b", out)
}

func TestNewFromConfig_SQLite(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimensions = 64
	cfg.Memory.DatabasePath = t.TempDir() + "/memory.db"

	svc, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer svc.Close()

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Contains(t, info.Backend, "sqlite:")
	assert.Equal(t, "local:hash64", info.Engine)
	assert.Equal(t, 4, svc.DefaultK())
}
