package bell

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
)

type spyStore struct {
	*notify.Store
	markAll int
}

func (s *spyStore) MarkAllAsRead() {
	s.markAll++
	s.Store.MarkAllAsRead()
}

type fakeConnection struct {
	mu        sync.Mutex
	state     push.State
	observers map[int]func(push.State)
	nextID    int
	// afterRead runs once after State returns its value, standing in for a
	// transition that lands right after the read.
	afterRead func(c *fakeConnection)
}

func (c *fakeConnection) State() push.State {
	c.mu.Lock()
	st, after := c.state, c.afterRead
	c.afterRead = nil
	c.mu.Unlock()

	if after != nil {
		after(c)
	}
	return st
}

func (c *fakeConnection) OnStateChange(fn func(push.State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observers == nil {
		c.observers = make(map[int]func(push.State))
	}
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *fakeConnection) observerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

func (c *fakeConnection) set(s push.State) {
	c.mu.Lock()
	c.state = s
	obs := make([]func(push.State), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	c.mu.Unlock()
	for _, fn := range obs {
		fn(s)
	}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *spyStore {
	t.Helper()
	s := notify.NewStore(kv.NewMemory(), notify.StoreOptions{
		Now: func() time.Time { return testNow },
	})
	require.NoError(t, s.Load(context.Background(), "user-1"))
	return &spyStore{Store: s}
}

func newTestModel(t *testing.T, store Store, opts ...func(*Options)) *Model {
	t.Helper()
	o := Options{Store: store, Now: func() time.Time { return testNow }}
	for _, fn := range opts {
		fn(&o)
	}
	m := New(o)
	t.Cleanup(m.Close)
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m *Model, msgs ...tea.Msg) {
	for _, msg := range msgs {
		m.Update(msg)
	}
}

// drain runs the pending signal command and feeds its message back in.
func drain(t *testing.T, m *Model) {
	t.Helper()
	done := make(chan tea.Msg, 1)
	go func() { done <- m.signal.WaitForSignal()() }()
	select {
	case msg := <-done:
		m.Update(msg)
	case <-time.After(time.Second):
		t.Fatal("no refresh signal")
	}
}

func TestModel_BadgeShowsUnreadCount(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "one"})
	store.Add(notify.Draft{Title: "two"})

	m := newTestModel(t, store)

	assert.Equal(t, 2, m.Snapshot().UnreadCount)
	assert.Contains(t, m.View(), "2")
	assert.False(t, m.Open())
}

func TestModel_EmptyPlaceholder(t *testing.T) {
	m := newTestModel(t, newTestStore(t))

	press(m, runes("n"))

	require.True(t, m.Open())
	assert.Contains(t, m.View(), emptyText)
	assert.NotContains(t, m.View(), "mark all as read")
}

func TestModel_SelectMarksReadAndCloses(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "older"})
	store.Add(notify.Draft{Title: "newer", Link: "/courses/1"})

	var selected notify.Notification
	m := newTestModel(t, store, func(o *Options) {
		o.OnSelect = func(n notify.Notification) { selected = n }
	})

	press(m, runes("n"), tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.Open(), "dropdown closes after selecting")
	assert.Equal(t, "newer", selected.Title)
	assert.True(t, selected.Read)
	assert.Equal(t, "/courses/1", selected.Link)

	snap := store.Snapshot()
	assert.True(t, snap.Notifications[0].Read)
	assert.False(t, snap.Notifications[1].Read)
	assert.Equal(t, 1, m.Snapshot().UnreadCount)
}

func TestModel_SelectWhileClosedDoesNothing(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "one"})
	m := newTestModel(t, store)

	press(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, 1, store.UnreadCount())
}

func TestModel_CursorClamps(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "a"})
	store.Add(notify.Draft{Title: "b"})
	m := newTestModel(t, store)

	press(m, runes("n"), runes("k"))
	assert.Equal(t, 0, m.Cursor())

	press(m, runes("j"), runes("j"), runes("j"))
	assert.Equal(t, 1, m.Cursor())
}

func TestModel_MarkAllOnlyWithUnread(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "a"})
	store.Add(notify.Draft{Title: "b"})
	m := newTestModel(t, store)

	press(m, runes("n"))
	assert.Contains(t, m.View(), "mark all as read")

	press(m, runes("a"))
	assert.Equal(t, 1, store.markAll)
	assert.Equal(t, 0, m.Snapshot().UnreadCount)
	assert.NotContains(t, m.View(), "mark all as read")

	press(m, runes("a"))
	assert.Equal(t, 1, store.markAll, "control is hidden with nothing unread")
}

func TestModel_MarkAllIgnoredWhileClosed(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "a"})
	m := newTestModel(t, store)

	press(m, runes("a"))

	assert.Equal(t, 0, store.markAll)
}

func TestModel_Clear(t *testing.T) {
	store := newTestStore(t)
	store.Add(notify.Draft{Title: "a"})
	m := newTestModel(t, store)

	press(m, runes("n"), runes("X"))

	assert.Empty(t, store.Snapshot().Notifications)
	assert.Contains(t, m.View(), emptyText)
}

func TestModel_RefreshesOnStoreChange(t *testing.T) {
	store := newTestStore(t)
	m := newTestModel(t, store)

	store.MergeIncoming(notify.Notification{ID: "srv-1", UserID: "user-1", Title: "Course published", Type: notify.TypeSuccess})
	drain(t, m)

	require.Len(t, m.Snapshot().Notifications, 1)
	assert.Equal(t, 1, m.Snapshot().UnreadCount)
	assert.Equal(t, 1, m.toasts.Len(), "new arrival raises a toast")
	assert.Contains(t, m.View(), "Course published")
}

func TestModel_NoToastForExistingOrUpdated(t *testing.T) {
	store := newTestStore(t)
	store.MergeIncoming(notify.Notification{ID: "srv-1", UserID: "user-1", Title: "v1"})
	m := newTestModel(t, store)

	store.MergeIncoming(notify.Notification{ID: "srv-1", UserID: "user-1", Title: "v2"})
	drain(t, m)

	assert.Equal(t, 0, m.toasts.Len())
	assert.Equal(t, "v2", m.Snapshot().Notifications[0].Title)
}

func TestModel_ConnectionState(t *testing.T) {
	conn := &fakeConnection{state: push.StateConnecting}
	m := newTestModel(t, newTestStore(t), func(o *Options) { o.Connection = conn })

	assert.Equal(t, push.StateConnecting, m.State())

	conn.set(push.StateConnected)
	drain(t, m)
	assert.Equal(t, push.StateConnected, m.State())
	assert.Contains(t, m.View(), "live")

	conn.set(push.StateDisconnected)
	drain(t, m)
	assert.Contains(t, m.View(), "offline")
}

func TestModel_ConnectionStateChangedDuringSetup(t *testing.T) {
	conn := &fakeConnection{
		state:     push.StateConnecting,
		afterRead: func(c *fakeConnection) { c.set(push.StateConnected) },
	}
	m := newTestModel(t, newTestStore(t), func(o *Options) { o.Connection = conn })

	assert.Equal(t, push.StateConnected, m.State())
	assert.Contains(t, m.View(), "live")
}

func TestModel_CloseStopsWatchingConnection(t *testing.T) {
	conn := &fakeConnection{state: push.StateConnected}
	m := New(Options{Store: newTestStore(t), Connection: conn})
	require.Equal(t, 1, conn.observerCount())

	m.Close()
	assert.Equal(t, 0, conn.observerCount())

	conn.set(push.StateDisconnected)
	_, state := m.signal.Latest()
	assert.Equal(t, push.StateConnected, state)
}

func TestModel_CloseUnsubscribes(t *testing.T) {
	store := newTestStore(t)
	m := New(Options{Store: store})
	m.Close()
	m.Close()

	store.Add(notify.Draft{Title: "late"})

	snap, _ := m.signal.Latest()
	assert.Empty(t, snap.Notifications)
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t, newTestStore(t))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAge(tt.d))
	}
}
