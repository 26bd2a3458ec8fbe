package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcoder/internal/types"
)

func newTestConversationStore(t *testing.T) *ConversationStore {
	t.Helper()
	s, err := NewConversationStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// THREADS
// =============================================================================

func TestConversationStore_CreateAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestConversationStore(t)

	require.NoError(t, s.CreateThread(ctx, "t1", "first"))
	require.NoError(t, s.CreateThread(ctx, "t2", "second"))

	err := s.CreateThread(ctx, "t1", "dup")
	assert.ErrorIs(t, err, ErrThreadExists)
	assert.NoError(t, s.EnsureThread(ctx, "t1", "dup"))

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	th, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "first", th.Title)
	assert.Zero(t, th.Messages)

	_, err = s.GetThread(ctx, "missing")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestConversationStore_Rename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestConversationStore(t)

	require.NoError(t, s.CreateThread(ctx, "t1", "old"))
	require.NoError(t, s.RenameThread(ctx, "t1", "new"))

	th, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "new", th.Title)

	assert.ErrorIs(t, s.RenameThread(ctx, "nope", "x"), ErrThreadNotFound)
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestConversationStore_MessagesKeepOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestConversationStore(t)

	require.NoError(t, s.CreateThread(ctx, "t1", ""))
	require.NoError(t, s.AppendMessage(ctx, "t1", "m1", types.RoleHuman, "hello"))
	require.NoError(t, s.AppendMessage(ctx, "t1", "m2", types.RoleAI, "hi there"))
	require.NoError(t, s.AppendMessage(ctx, "t1", "m3", types.RoleHuman, "bye"))

	msgs, err := s.History(ctx, "t1")
	require.NoError(t, err)

	want := []types.Message{
		{Role: types.RoleHuman, Content: "hello"},
		{Role: types.RoleAI, Content: "hi there"},
		{Role: types.RoleHuman, Content: "bye"},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}

	stored, err := s.GetMessages(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored[0].Seq)
	assert.Equal(t, int64(3), stored[2].Seq)
	assert.Equal(t, "m2", stored[1].ID)

	th, err := s.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, th.Messages)
}

func TestConversationStore_AppendErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestConversationStore(t)

	err := s.AppendMessage(ctx, "ghost", "m1", types.RoleHuman, "x")
	assert.ErrorIs(t, err, ErrThreadNotFound)

	require.NoError(t, s.CreateThread(ctx, "t1", ""))
	err = s.AppendMessage(ctx, "t1", "m1", types.Role("robot"), "x")
	assert.Error(t, err)

	_, err = s.GetMessages(ctx, "ghost")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestConversationStore_DeleteCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestConversationStore(t)

	require.NoError(t, s.CreateThread(ctx, "t1", ""))
	require.NoError(t, s.AppendMessage(ctx, "t1", "m1", types.RoleHuman, "a"))
	require.NoError(t, s.AppendMessage(ctx, "t1", "m2", types.RoleAI, "b"))

	require.NoError(t, s.DeleteThread(ctx, "t1"))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n))
	assert.Zero(t, n, "messages should be removed with their thread")

	assert.ErrorIs(t, s.DeleteThread(ctx, "t1"), ErrThreadNotFound)
}

func TestConversationStore_Reopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := NewConversationStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateThread(ctx, "t1", "kept"))
	require.NoError(t, s.AppendMessage(ctx, "t1", "m1", types.RoleHuman, "persisted"))
	require.NoError(t, s.Close())

	s, err = NewConversationStore(path)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "persisted", msgs[0].Content)
}
