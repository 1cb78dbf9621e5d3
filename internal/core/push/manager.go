package push

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/logging"
	"github.com/hay-kot/bell/internal/core/notify"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 3 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

// ErrNoUser is returned by Connect when no user id is given.
var ErrNoUser = errors.New("push: user id is required")

// State is the connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

// Sink receives validated inbound notifications.
type Sink interface {
	MergeIncoming(n notify.Notification)
}

// Options configures reconnection. Zero values select defaults.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	DialTimeout time.Duration
	Tokens      TokenSource
	Clock       Clock
	Logger      *zerolog.Logger
}

// Status is a point-in-time view of the manager.
type Status struct {
	State     State
	UserID    string
	Attempts  int
	LocalOnly bool
}

// Manager owns the single push connection for the logged-in user. Failed
// connection attempts are retried after a fixed delay; after MaxAttempts
// consecutive failures it stops for good and the store keeps working from
// its persisted snapshot (local-only mode). Errors never reach callers.
type Manager struct {
	channel Channel
	sink    Sink
	opts    Options
	clock   Clock
	log     zerolog.Logger
	spawn   func(func())

	mu         sync.Mutex
	state      State
	userID     string
	attempts   int
	localOnly  bool
	epoch      uint64
	timer      Timer
	cancelDial context.CancelFunc
	observers  map[int]func(State)
	nextObs    int
	pending    []State
}

// NewManager wires a manager to channel and sink. Channel handlers are
// registered once here.
func NewManager(channel Channel, sink Sink, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	m := &Manager{
		channel: channel,
		sink:    sink,
		opts:    opts,
		clock:   opts.Clock,
		state:   StateIdle,
		spawn:   func(f func()) { go f() },
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	} else {
		m.log = logging.Component("push")
	}

	channel.On(EventNotification, m.handleNotification)
	channel.On(EventDisconnect, m.handleDrop)

	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current state, user and retry bookkeeping.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:     m.state,
		UserID:    m.userID,
		Attempts:  m.attempts,
		LocalOnly: m.localOnly,
	}
}

// OnStateChange registers fn to be called after every state transition.
// The returned function removes it and is safe to call twice.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.observers == nil {
		m.observers = make(map[int]func(State))
	}
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// Connect starts connecting as userID without waiting for the handshake.
// It is a no-op while a connection for the same user is live or pending.
// Connecting as a different user tears down the current connection first.
func (m *Manager) Connect(userID string) error {
	if userID == "" {
		return ErrNoUser
	}

	m.mu.Lock()
	if m.userID == userID && m.activeLocked() {
		m.mu.Unlock()
		return nil
	}

	wasLive := m.state == StateConnecting || m.state == StateConnected
	m.stopLocked()
	m.userID = userID
	m.attempts = 0
	m.localOnly = false
	dial := m.beginDialLocked()
	m.unlock()

	if wasLive {
		m.closeChannel()
	}

	m.spawn(dial)
	return nil
}

// Disconnect tears down the connection and cancels any scheduled reconnect.
// It is safe to call multiple times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	wasLive := m.state == StateConnecting || m.state == StateConnected
	m.stopLocked()
	if m.state != StateIdle {
		m.localOnly = true
		m.setStateLocked(StateDisconnected)
	}
	m.unlock()

	if wasLive {
		m.closeChannel()
	}
}

func (m *Manager) activeLocked() bool {
	switch m.state {
	case StateConnecting, StateConnected, StateReconnecting:
		return true
	}
	return false
}

// stopLocked invalidates in-flight dials and pending timers.
func (m *Manager) stopLocked() {
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
}

// beginDialLocked moves to connecting and returns the dial to run once the
// lock is released.
func (m *Manager) beginDialLocked() func() {
	m.setStateLocked(StateConnecting)

	epoch := m.epoch
	auth := Auth{UserID: m.userID}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	ctx = logging.WithUserID(ctx, auth.UserID)
	m.cancelDial = cancel

	return func() {
		defer cancel()

		if m.opts.Tokens != nil {
			token, err := m.opts.Tokens(auth.UserID)
			if err != nil {
				m.dialDone(epoch, err)
				return
			}
			auth.Token = token
		}

		m.dialDone(epoch, m.channel.Connect(ctx, auth))
	}
}

func (m *Manager) dialDone(epoch uint64, err error) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnecting {
		orphaned := err == nil && (m.state == StateDisconnected || m.state == StateIdle)
		m.mu.Unlock()
		if orphaned {
			m.closeChannel()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.attempts++
		m.log.Warn().Err(err).
			Str("user_id", m.userID).
			Int("attempt", m.attempts).
			Int("max_attempts", m.opts.MaxAttempts).
			Msg("push connect failed")
		m.setStateLocked(StateDisconnected)
		m.retryLocked()
		m.unlock()
		return
	}

	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.log.Info().Str("user_id", m.userID).Msg("push connected")
	m.unlock()
}

// retryLocked schedules the next attempt or gives up for the session.
func (m *Manager) retryLocked() {
	if m.attempts >= m.opts.MaxAttempts {
		m.localOnly = true
		m.log.Warn().
			Str("user_id", m.userID).
			Int("attempts", m.attempts).
			Msg("push reconnect attempts exhausted, continuing in local-only mode")
		return
	}

	m.setStateLocked(StateReconnecting)
	epoch := m.epoch
	m.timer = m.clock.AfterFunc(m.opts.RetryDelay, func() {
		m.reconnect(epoch)
	})
}

func (m *Manager) reconnect(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	dial := m.beginDialLocked()
	m.unlock()

	m.spawn(dial)
}

func (m *Manager) handleDrop(data []byte) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	m.log.Warn().Str("user_id", m.userID).Str("reason", string(data)).Msg("push connection lost")
	m.setStateLocked(StateDisconnected)
	m.retryLocked()
	m.unlock()
}

func (m *Manager) handleNotification(data []byte) {
	var p notify.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		m.log.Debug().Err(err).Msg("dropping malformed push event")
		return
	}
	if err := p.Validate(); err != nil {
		m.log.Debug().Err(err).Msg("dropping invalid push event")
		return
	}

	m.mu.Lock()
	userID := m.userID
	m.mu.Unlock()

	if p.UserID != userID {
		m.log.Debug().Str("event_user_id", p.UserID).Msg("dropping push event for another user")
		return
	}

	m.sink.MergeIncoming(p.Notification())
}

func (m *Manager) closeChannel() {
	if err := m.channel.Disconnect(); err != nil {
		m.log.Debug().Err(err).Msg("push channel close")
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.pending = append(m.pending, s)
}

// unlock releases the mutex and then notifies observers of queued transitions.
func (m *Manager) unlock() {
	pending := m.pending
	m.pending = nil
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	observers := make([]func(State), 0, len(ids))
	for _, id := range ids {
		observers = append(observers, m.observers[id])
	}
	m.mu.Unlock()

	for _, s := range pending {
		for _, fn := range observers {
			fn(s)
		}
	}
}
