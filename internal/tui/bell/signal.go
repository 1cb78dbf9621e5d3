package bell

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
)

type refreshMsg struct{}

// Signal collects store snapshots and connection state changes from other
// goroutines and emits coalesced refresh signals into the bubbletea loop.
type Signal struct {
	mu       sync.Mutex
	snap     notify.Snapshot
	state    push.State
	observed bool
	signal   chan struct{}
}

// NewSignal constructs a signal seeded with the given snapshot and state.
func NewSignal(snap notify.Snapshot, state push.State) *Signal {
	return &Signal{
		snap:   snap,
		state:  state,
		signal: make(chan struct{}, 1),
	}
}

// Snapshot records the latest store snapshot. It satisfies notify.Listener.
func (s *Signal) Snapshot(snap notify.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	s.notify()
}

// State records the latest connection state.
func (s *Signal) State(state push.State) {
	s.mu.Lock()
	s.state = state
	s.observed = true
	s.mu.Unlock()
	s.notify()
}

// seedState sets the initial state unless a transition was already
// observed, and returns the state now held.
func (s *Signal) seedState(state push.State) push.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.observed {
		s.state = state
		s.observed = true
	}
	return s.state
}

// Latest returns the most recent snapshot and state.
func (s *Signal) Latest() (notify.Snapshot, push.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.state
}

// WaitForSignal blocks until something changed since the last signal.
func (s *Signal) WaitForSignal() tea.Cmd {
	return func() tea.Msg {
		<-s.signal
		return refreshMsg{}
	}
}

func (s *Signal) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
