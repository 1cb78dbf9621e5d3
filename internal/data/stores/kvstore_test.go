package stores

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/kv/kvtest"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/data/db"
)

func newTestKVStore(t *testing.T) *KVStore {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewKVStore(database)
}

func TestKVStore_Contract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.KV { return newTestKVStore(t) })
}

func TestKVStore_GetRaw(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	require.NoError(t, store.SetTTL(ctx, "k", map[string]int{"n": 1}, time.Hour))

	entry, err := store.GetRaw(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "k", entry.Key)
	assert.JSONEq(t, `{"n":1}`, string(entry.Value))
	require.NotNil(t, entry.ExpiresAt)
	assert.True(t, entry.ExpiresAt.After(time.Now()))

	_, err = store.GetRaw(ctx, "absent")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestKVStore_SweepExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	base := time.Now()
	store.now = func() time.Time { return base }
	require.NoError(t, store.SetTTL(ctx, "a", 1, time.Minute))
	require.NoError(t, store.SetTTL(ctx, "b", 1, time.Minute))
	require.NoError(t, store.Set(ctx, "keep", 1))

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, keys)
}

func TestKVStore_PersistsNotificationSnapshots(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	database, err := db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)

	first := notify.NewStore(NewKVStore(database), notify.StoreOptions{})
	require.NoError(t, first.Load(ctx, "alice"))
	first.Add(notify.Draft{Title: "Welcome!", Message: "Glad you're here", Type: notify.TypeSuccess})
	require.NoError(t, database.Close())

	reopened, err := db.Open(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	second := notify.NewStore(NewKVStore(reopened), notify.StoreOptions{})
	require.NoError(t, second.Load(ctx, "alice"))

	snap := second.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, "Welcome!", snap.Notifications[0].Title)
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestOpenKV_RecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, db.FileName)
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, just text padding it out"), 0o644))

	database, store, err := OpenKV(dir, db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, store.Set(context.Background(), "k", "v"))

	backups, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestIsCorruptionError(t *testing.T) {
	assert.False(t, IsCorruptionError(nil))
	assert.False(t, IsCorruptionError(os.ErrNotExist))
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, IsBusyError(nil))
	assert.False(t, IsBusyError(errors.New("database is locked")))

	path := filepath.Join(t.TempDir(), "busy.db")
	open := func() *sql.DB {
		conn, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		conn.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	writer, other := open(), open()

	_, err := writer.Exec("CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)

	tx, err := writer.Begin()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	_, err = tx.Exec("INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	_, err = other.Exec("INSERT INTO t VALUES (2)")
	require.Error(t, err)
	assert.True(t, IsBusyError(err))
}
