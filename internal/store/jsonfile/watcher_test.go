package jsonfile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*KV, *Watcher) {
	t.Helper()
	store := New(t.TempDir())
	w, err := NewWatcher(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return store, w
}

func collect(events <-chan Change, window time.Duration) []string {
	var keys []string
	timeout := time.After(window)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return keys
			}
			keys = append(keys, ev.Key)
		case <-timeout:
			return keys
		}
	}
}

func TestWatcher_ReportsExternalWrite(t *testing.T) {
	t.Parallel()
	store, w := newTestWatcher(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := w.Watch(ctx, "notifications:alice")

	other := New(store.Dir())
	require.NoError(t, other.Set(ctx, "notifications:alice", []string{"x"}))

	select {
	case ev := <-events:
		assert.Equal(t, "notifications:alice", ev.Key)
		assert.False(t, ev.Timestamp.IsZero())
	case <-ctx.Done():
		t.Fatal("timeout waiting for change")
	}
}

func TestWatcher_IgnoresOwnWrites(t *testing.T) {
	t.Parallel()
	store, w := newTestWatcher(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := w.Watch(ctx, "*")

	require.NoError(t, store.Set(ctx, "notifications:alice", []string{"x"}))

	assert.Empty(t, collect(events, 300*time.Millisecond))
}

func TestWatcher_ReportsExternalRemove(t *testing.T) {
	t.Parallel()
	store, w := newTestWatcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, store.Set(ctx, "k", 1))
	events := w.Watch(ctx, "k")

	require.NoError(t, New(store.Dir()).Delete(ctx, "k"))

	assert.Equal(t, []string{"k"}, collect(events, 300*time.Millisecond))
}

func TestWatcher_PrefixPattern(t *testing.T) {
	t.Parallel()
	store, w := newTestWatcher(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := w.Watch(ctx, "notifications:*")

	other := New(store.Dir())
	require.NoError(t, other.Set(ctx, "notifications:bob", 1))
	require.NoError(t, other.Set(ctx, "settings:theme", "dark"))

	assert.Equal(t, []string{"notifications:bob"}, collect(events, 300*time.Millisecond))
}

func TestWatcher_Debounce(t *testing.T) {
	t.Parallel()
	store, w := newTestWatcher(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := w.Watch(ctx, "*")

	other := New(store.Dir())
	for i := range 5 {
		require.NoError(t, other.Set(ctx, "burst", i))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Len(t, collect(events, 300*time.Millisecond), 1, "should receive exactly one debounced change")
}

func TestWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()
	_, w := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	events := w.Watch(ctx, "*")
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "channel should close after cancel")
}

func TestWatcher_Close(t *testing.T) {
	t.Parallel()
	store := New(t.TempDir())
	w, err := NewWatcher(store)
	require.NoError(t, err)

	events := w.Watch(context.Background(), "*")
	require.NoError(t, w.Close())

	_, ok := <-events
	assert.False(t, ok, "channel should be closed after watcher close")
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "anything", true},
		{"", "anything", true},
		{"notifications:*", "notifications:alice", true},
		{"notifications:*", "settings:theme", false},
		{"notifications:alice", "notifications:alice", true},
		{"notifications:alice", "notifications:alice2", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesPattern(tt.pattern, tt.key))
		})
	}
}
