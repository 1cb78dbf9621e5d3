package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
)

type fakeChannel struct {
	mu          sync.Mutex
	onConnect   func()
	connects    []push.Auth
	disconnects int
}

func (f *fakeChannel) Connect(_ context.Context, auth push.Auth) error {
	f.mu.Lock()
	f.connects = append(f.connects, auth)
	hook := f.onConnect
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeChannel) On(string, push.Handler) {}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeChannel) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

type fakeNotifier struct {
	key string
	ctx context.Context
	fn  func()
}

func (f *fakeNotifier) Notify(ctx context.Context, key string, fn func()) {
	f.ctx, f.key, f.fn = ctx, key, fn
}

func seed(t *testing.T, backend kv.KV, userID string, items ...notify.Notification) {
	t.Helper()
	require.NoError(t, kv.Scoped[[]notify.Notification](backend, notify.Namespace).Set(context.Background(), userID, items))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Backend: kv.NewMemory()})
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = New(Options{UserID: "u1"})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestStart_LoadsSnapshotBeforeConnecting(t *testing.T) {
	backend := kv.NewMemory()
	seed(t, backend, "u1", notify.Notification{ID: "old", UserID: "u1", Title: "from yesterday"})

	ch := &fakeChannel{}
	sess, err := New(Options{UserID: "u1", Backend: backend, Channel: ch})
	require.NoError(t, err)

	var seenAtConnect int
	ch.onConnect = func() { seenAtConnect = len(sess.Store().Snapshot().Notifications) }

	require.NoError(t, sess.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sess.Manager().State() == push.StateConnected
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, seenAtConnect)
	assert.Equal(t, "u1", ch.connects[0].UserID)
}

func TestStart_Idempotent(t *testing.T) {
	ch := &fakeChannel{}
	sess, err := New(Options{UserID: "u1", Backend: kv.NewMemory(), Channel: ch})
	require.NoError(t, err)

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, sess.Start(context.Background()))

	require.Eventually(t, func() bool { return ch.connectCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return ch.connectCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestLocalOnlySession(t *testing.T) {
	sess, err := New(Options{UserID: "u1", Backend: kv.NewMemory()})
	require.NoError(t, err)
	assert.Nil(t, sess.Manager())

	require.NoError(t, sess.Start(context.Background()))

	sess.Store().Add(notify.Draft{Title: "Saved offline"})
	assert.Equal(t, 1, sess.Store().UnreadCount())
}

func TestEnd_TearsDown(t *testing.T) {
	ch := &fakeChannel{}
	sess, err := New(Options{UserID: "u1", Backend: kv.NewMemory(), Channel: ch})
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))

	manager := sess.Manager()
	require.Eventually(t, func() bool { return manager.State() == push.StateConnected }, time.Second, 5*time.Millisecond)

	calls := 0
	sess.Subscribe(func(notify.Snapshot) { calls++ })

	store := sess.Store()
	store.Add(notify.Draft{Title: "before"})
	require.Equal(t, 1, calls)

	sess.End()
	sess.End()

	assert.Nil(t, sess.Store())
	assert.Nil(t, sess.Manager())
	assert.Equal(t, push.StateDisconnected, manager.State())
	assert.Equal(t, 1, ch.disconnects)

	store.Add(notify.Draft{Title: "after"})
	assert.Equal(t, 1, calls, "listeners are removed on End")

	assert.ErrorIs(t, sess.Start(context.Background()), ErrEnded)
}

func TestSubscribe_AfterEndIsNoop(t *testing.T) {
	sess, err := New(Options{UserID: "u1", Backend: kv.NewMemory()})
	require.NoError(t, err)
	sess.End()

	unsub := sess.Subscribe(func(notify.Snapshot) {})
	unsub()
}

func TestStart_ReloadsOnExternalChange(t *testing.T) {
	backend := kv.NewMemory()
	notifier := &fakeNotifier{}

	sess, err := New(Options{UserID: "u1", Backend: backend, Changes: notifier})
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))

	assert.Equal(t, "notifications:u1", notifier.key)
	require.NotNil(t, notifier.fn)

	seed(t, backend, "u1",
		notify.Notification{ID: "a", UserID: "u1", Title: "written by another client"},
	)
	notifier.fn()

	assert.Equal(t, 1, sess.Store().UnreadCount())

	sess.End()
	assert.Error(t, notifier.ctx.Err(), "watch is cancelled on End")
}
