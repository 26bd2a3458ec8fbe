package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcoder/internal/tools"
	"termcoder/internal/types"
)

func newRegistry(t *testing.T) (*tools.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, NewWorkspace(dir)))
	return reg, dir
}

func run(t *testing.T, reg *tools.Registry, name string, args map[string]any) (string, error) {
	t.Helper()
	res, err := reg.Execute(context.Background(), name, args)
	require.NotNil(t, res)
	return res.Result, err
}

// =============================================================================
// create_file
// =============================================================================

func TestCreateFile(t *testing.T) {
	reg, dir := newRegistry(t)

	out, err := run(t, reg, CreateFile, map[string]any{"path": "a/b/c.txt", "content": "hello"})
	require.NoError(t, err)
	assert.Contains(t, out, "5 bytes")

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCreateFileAlreadyExists(t *testing.T) {
	reg, dir := newRegistry(t)
	path := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("orig"), 0644))

	_, err := run(t, reg, CreateFile, map[string]any{"path": "x.txt", "content": "new"})
	require.Error(t, err)
	assert.Equal(t, tools.KindAlreadyExists, tools.KindOf(err))
	assert.False(t, tools.IsNonRecoverable(err))

	data, _ := os.ReadFile(path)
	assert.Equal(t, "orig", string(data), "content must be untouched")

	_, err = run(t, reg, CreateFile, map[string]any{"path": "x.txt", "content": "new", "overwrite": true})
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Equal(t, "new", string(data))
}

// =============================================================================
// delete_file
// =============================================================================

func TestDeleteFile(t *testing.T) {
	reg, dir := newRegistry(t)
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := run(t, reg, DeleteFile, map[string]any{"path": "gone.txt"})
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFileErrors(t *testing.T) {
	reg, dir := newRegistry(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	_, err := run(t, reg, DeleteFile, map[string]any{"path": "foo.txt"})
	require.Error(t, err)
	assert.Equal(t, tools.KindNotFound, tools.KindOf(err))
	assert.Contains(t, err.Error(), "foo.txt")

	_, err = run(t, reg, DeleteFile, map[string]any{"path": "sub"})
	require.Error(t, err)
	assert.Equal(t, tools.KindNotAFile, tools.KindOf(err))
	_, statErr := os.Stat(filepath.Join(dir, "sub"))
	assert.NoError(t, statErr)
}

func TestDeleteFileRefusedWithoutConfirmation(t *testing.T) {
	reg, dir := newRegistry(t)
	path := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	reg.SetConfirm(func(ctx context.Context, tool string, args map[string]any) (bool, error) {
		return false, nil
	})

	_, err := reg.Invoke(context.Background(), types.ToolCall{Name: DeleteFile, Input: map[string]any{"path": "keep.txt"}})
	require.Error(t, err)
	assert.True(t, tools.IsNonRecoverable(err))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "file must survive a refused delete")
}

func TestDeleteFileConfirmOnlyForExistingFiles(t *testing.T) {
	reg, dir := newRegistry(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	asked := 0
	reg.SetConfirm(func(ctx context.Context, tool string, args map[string]any) (bool, error) {
		asked++
		return false, nil
	})

	_, err := run(t, reg, DeleteFile, map[string]any{"path": "foo.txt"})
	require.Error(t, err)
	assert.Equal(t, tools.KindNotFound, tools.KindOf(err))
	assert.False(t, tools.IsNonRecoverable(err))

	_, err = run(t, reg, DeleteFile, map[string]any{"path": "sub"})
	require.Error(t, err)
	assert.Equal(t, tools.KindNotAFile, tools.KindOf(err))
	assert.False(t, tools.IsNonRecoverable(err))

	obs, err := reg.Invoke(context.Background(), types.ToolCall{Name: DeleteFile, Input: map[string]any{"path": "foo.txt"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obs, "[ERROR] (not_found)"), obs)

	assert.Zero(t, asked)
}

// =============================================================================
// read_file
// =============================================================================

func TestReadFile(t *testing.T) {
	reg, dir := newRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.txt"), []byte("one\ntwo\nthree\n"), 0644))

	out, err := run(t, reg, ReadFile, map[string]any{"path": "r.txt"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", out)

	out, err = run(t, reg, ReadFile, map[string]any{"path": "r.txt", "start_line": float64(2), "end_line": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", out)

	_, err = run(t, reg, ReadFile, map[string]any{"path": "nope.txt"})
	assert.Equal(t, tools.KindNotFound, tools.KindOf(err))

	_, err = run(t, reg, ReadFile, map[string]any{"path": "."})
	assert.Equal(t, tools.KindNotAFile, tools.KindOf(err))
}

func TestObservationText(t *testing.T) {
	reg, _ := newRegistry(t)
	obs, err := reg.Invoke(context.Background(), types.ToolCall{Name: ReadFile, Input: map[string]any{"path": "missing.go"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obs, "[ERROR] (not_found)"), obs)
}
