// Package session ties the notification store and the push connection to
// one logged-in user for the lifetime of a login.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/kv"
	"github.com/hay-kot/bell/internal/core/logging"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
)

var (
	ErrNoUser    = errors.New("session: user id is required")
	ErrNoBackend = errors.New("session: kv backend is required")
	ErrEnded     = errors.New("session: already ended")
)

// ChangeNotifier reports edits to a KV key made by another process.
type ChangeNotifier interface {
	Notify(ctx context.Context, key string, fn func())
}

// Options configures a session. Channel and Changes are optional: without a
// channel the session runs local-only.
type Options struct {
	UserID  string
	Backend kv.KV
	Channel push.Channel
	Changes ChangeNotifier
	Store   notify.StoreOptions
	Push    push.Options
}

// Session is the explicit context for one user's notifications.
type Session struct {
	userID  string
	changes ChangeNotifier
	log     zerolog.Logger

	// life serializes Start and End; mu guards the fields below.
	life    sync.Mutex
	mu      sync.Mutex
	store   *notify.Store
	manager *push.Manager
	unsubs  []func()
	cancel  context.CancelFunc
	started bool
	ended   bool
}

// New builds the store and connection manager for opts.UserID. Nothing is
// loaded or dialed until Start.
func New(opts Options) (*Session, error) {
	if opts.UserID == "" {
		return nil, ErrNoUser
	}
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}

	store := notify.NewStore(opts.Backend, opts.Store)

	s := &Session{
		userID:  opts.UserID,
		changes: opts.Changes,
		log:     logging.ForUser("session", opts.UserID),
		store:   store,
	}
	if opts.Channel != nil {
		s.manager = push.NewManager(opts.Channel, store, opts.Push)
	}
	return s, nil
}

// UserID returns the user the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// Store returns the notification store, or nil once the session has ended.
func (s *Session) Store() *notify.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Manager returns the connection manager, or nil for a local-only session.
func (s *Session) Manager() *push.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager
}

// Start loads the persisted snapshot and then opens the push connection, so
// earlier notifications are visible before any live event is merged.
func (s *Session) Start(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	ended, started, store, manager := s.ended, s.started, s.store, s.manager
	s.mu.Unlock()

	if ended {
		return ErrEnded
	}
	if started {
		return nil
	}

	if err := store.Load(ctx, s.userID); err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}

	var cancel context.CancelFunc
	if s.changes != nil {
		var watchCtx context.Context
		watchCtx, cancel = context.WithCancel(context.Background())
		s.changes.Notify(watchCtx, store.SnapshotKey(s.userID), func() {
			s.log.Debug().Msg("snapshot changed on disk, reloading")
			if err := store.Reload(watchCtx); err != nil {
				s.log.Warn().Err(err).Msg("reload notifications")
			}
		})
	}

	if manager != nil {
		if err := manager.Connect(s.userID); err != nil {
			if cancel != nil {
				cancel()
			}
			return fmt.Errorf("connect push: %w", err)
		}
	}

	s.mu.Lock()
	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info().Bool("push", manager != nil).Msg("session started")
	return nil
}

// Subscribe registers fn on the store. The listener is removed by End.
func (s *Session) Subscribe(fn notify.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return func() {}
	}
	unsub := s.store.Subscribe(fn)
	s.unsubs = append(s.unsubs, unsub)
	return unsub
}

// End disconnects, removes every listener and drops the store reference.
// It is safe to call more than once.
func (s *Session) End() {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	manager, unsubs, cancel := s.manager, s.unsubs, s.cancel
	s.manager, s.unsubs, s.cancel, s.store = nil, nil, nil, nil
	s.mu.Unlock()

	if manager != nil {
		manager.Disconnect()
	}
	if cancel != nil {
		cancel()
	}
	for _, unsub := range unsubs {
		unsub()
	}

	s.log.Info().Msg("session ended")
}
