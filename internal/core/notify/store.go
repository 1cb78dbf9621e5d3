package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/logging"
)

const (
	// DefaultCapacity is the maximum number of records kept per user.
	DefaultCapacity = 50

	// Namespace is the KV namespace holding per-user snapshots.
	Namespace = "notifications"

	persistTimeout = 5 * time.Second
)

// Listener receives the current snapshot after every change.
type Listener func(Snapshot)

// StoreOptions configures a Store. Zero values select defaults.
type StoreOptions struct {
	Capacity int
	Now      func() time.Time
	NewID    func() string
	Logger   *zerolog.Logger
}

// Store is the single source of truth for the current user's notifications.
// Records are kept newest-first and mirrored to the KV after every mutation.
// Persistence is best-effort: write failures are logged and the in-memory
// state stays authoritative for the session.
type Store struct {
	snapshots *kv.TypedKV[[]Notification]
	capacity  int
	now       func() time.Time
	newID     func() string
	log       zerolog.Logger

	mu        sync.Mutex
	userID    string
	items     []Notification
	listeners map[int]Listener
	nextSub   int

	// pending holds snapshots not yet delivered, in mutation order.
	pending  []Snapshot
	flushing bool
}

// NewStore creates a store persisting to backend. Call Load before use.
func NewStore(backend kv.KV, opts StoreOptions) *Store {
	s := &Store{
		snapshots: kv.Scoped[[]Notification](backend, Namespace),
		capacity:  opts.Capacity,
		now:       opts.Now,
		newID:     opts.NewID,
		listeners: make(map[int]Listener),
	}

	if s.capacity <= 0 {
		s.capacity = DefaultCapacity
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = logging.Component("notify")
	}

	return s
}

// UserID returns the user whose snapshot is loaded.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// SnapshotKey returns the KV key holding userID's snapshot.
func (s *Store) SnapshotKey(userID string) string {
	return s.snapshots.Key(userID)
}

// Capacity returns the maximum number of records retained.
func (s *Store) Capacity() int {
	return s.capacity
}

// Load reads the durable snapshot for userID and replaces the in-memory
// state with it. A missing snapshot yields an empty store. An unreadable
// snapshot is logged and treated as empty.
func (s *Store) Load(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}

	items, err := s.snapshots.Get(ctx, userID)
	switch {
	case kv.IsNotFound(err):
		items = nil
	case err != nil:
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to load notification snapshot")
		items = nil
	}

	s.mu.Lock()
	s.userID = userID
	s.items = s.normalize(items)
	s.queueLocked(s.snapshotLocked())
	s.mu.Unlock()

	s.flush()
	return nil
}

// Reload re-reads the durable snapshot for the loaded user. It is used when
// another process may have rewritten the snapshot.
func (s *Store) Reload(ctx context.Context) error {
	userID := s.UserID()
	if userID == "" {
		return ErrMissingUser
	}
	return s.Load(ctx, userID)
}

// Add enqueues a locally originated notification at the front of the list.
func (s *Store) Add(d Draft) Notification {
	s.mu.Lock()
	n := Notification{
		ID:        s.newID(),
		UserID:    s.userID,
		Title:     d.Title,
		Message:   d.Message,
		Type:      d.Type.OrDefault(),
		Link:      d.Link,
		Read:      false,
		CreatedAt: s.now(),
	}
	s.prependLocked(n)
	s.queueLocked(s.persistLocked())
	s.mu.Unlock()

	s.flush()
	return n
}

// MergeIncoming inserts n, or replaces the record with the same id in place.
// Replaced records keep their position so updates do not jump the queue.
func (s *Store) MergeIncoming(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.Type = n.Type.OrDefault()

	s.mu.Lock()
	if i := s.indexLocked(n.ID); i >= 0 {
		s.items[i] = n
	} else {
		s.prependLocked(n)
	}
	s.queueLocked(s.persistLocked())
	s.mu.Unlock()

	s.flush()
}

// MarkAsRead flags one record as read. Unknown ids and records that are
// already read leave the store untouched.
func (s *Store) MarkAsRead(id string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.items[i].Read {
		s.mu.Unlock()
		return
	}
	s.items[i].Read = true
	s.queueLocked(s.persistLocked())
	s.mu.Unlock()

	s.flush()
}

// MarkAllAsRead flags every record as read with a single snapshot write.
func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	s.queueLocked(s.persistLocked())
	s.mu.Unlock()

	s.flush()
}

// Clear empties the store and removes the durable snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	if s.userID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.snapshots.Delete(ctx, s.userID); err != nil {
			s.log.Error().Err(err).Str("user_id", s.userID).Msg("failed to remove notification snapshot")
		}
		cancel()
	}
	s.queueLocked(s.snapshotLocked())
	s.mu.Unlock()

	s.flush()
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CountUnread(s.items)
}

// Snapshot returns a copy of the current ordered records and unread count.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive the snapshot after every change.
// Snapshots arrive in mutation order. A mutation made while another goroutine
// is delivering returns before its snapshot reaches listeners.
// The returned function removes the listener and is safe to call twice.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(n Notification) bool { return n.ID == id })
}

// prependLocked inserts n at the front and evicts from the tail, which holds
// the oldest inserted records.
func (s *Store) prependLocked(n Notification) {
	s.items = slices.Insert(s.items, 0, n)
	if len(s.items) > s.capacity {
		s.items = s.items[:s.capacity]
	}
}

// persistLocked writes the full snapshot and returns it for publishing.
func (s *Store) persistLocked() Snapshot {
	snap := s.snapshotLocked()
	if s.userID == "" {
		return snap
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.snapshots.Set(ctx, s.userID, snap.Notifications); err != nil {
		s.log.Error().Err(err).Str("user_id", s.userID).Msg("failed to persist notification snapshot")
	}
	return snap
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]Notification, len(s.items))
	copy(items, s.items)
	return Snapshot{
		Notifications: items,
		UnreadCount:   CountUnread(items),
	}
}

// normalize drops duplicate ids (first occurrence wins) and trims to capacity.
func (s *Store) normalize(items []Notification) []Notification {
	seen := make(map[string]struct{}, len(items))
	out := make([]Notification, 0, min(len(items), s.capacity))
	for _, n := range items {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
		if len(out) == s.capacity {
			break
		}
	}
	return out
}

// queueLocked records snap for delivery. It must run under the same lock
// hold as the mutation that produced snap.
func (s *Store) queueLocked(snap Snapshot) {
	s.pending = append(s.pending, snap)
}

// flush delivers pending snapshots to listeners in order. One goroutine
// delivers at a time; snapshots queued meanwhile are delivered by it before
// it returns.
func (s *Store) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true

	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		subs := s.listenersLocked()
		s.mu.Unlock()

		for _, fn := range subs {
			fn(snap)
		}

		s.mu.Lock()
	}

	s.pending = nil
	s.flushing = false
	s.mu.Unlock()
}

func (s *Store) listenersLocked() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	subs := make([]Listener, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.listeners[id])
	}
	return subs
}
