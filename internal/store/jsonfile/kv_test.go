package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/kv/kvtest"
)

func TestKV_Contract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.KV { return New(t.TempDir()) })
}

func TestKV_FileNamesEscapeKeys(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	require.NoError(t, store.Set(context.Background(), "notifications:a/b", []int{1}))

	_, err := os.Stat(filepath.Join(dir, "notifications:a%2Fb.json"))
	require.NoError(t, err)

	keys, err := store.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"notifications:a/b"}, keys)
}

func TestKV_MissingDirectory(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "not-yet"))

	keys, err := store.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)

	var v int
	assert.True(t, kv.IsNotFound(store.Get(context.Background(), "k", &v)))
}

func TestKV_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte("{not json"), 0o644))

	var v int
	err := store.Get(context.Background(), "k", &v)
	require.Error(t, err)
	assert.False(t, kv.IsNotFound(err))
}

func TestKV_SharedAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, New(dir).Set(ctx, "k", "from a"))

	var got string
	require.NoError(t, New(dir).Get(ctx, "k", &got))
	assert.Equal(t, "from a", got)
}
