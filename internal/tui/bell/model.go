// Package bell renders the notification bell: an unread badge, a dropdown of
// the current user's notifications and transient toasts for new arrivals.
package bell

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/push"
	"github.com/hay-kot/bell/internal/core/styles"
)

const (
	dropdownWidth = 56
	emptyText     = "No notifications"
)

// Store is the subset of notify.Store the bell reads and mutates.
type Store interface {
	Snapshot() notify.Snapshot
	Subscribe(fn notify.Listener) func()
	MarkAsRead(id string)
	MarkAllAsRead()
	Clear()
}

// Connection reports push connection state. *push.Manager satisfies it.
type Connection interface {
	State() push.State
	OnStateChange(fn func(push.State)) func()
}

// Options configures a Model. Store is required.
type Options struct {
	Store      Store
	Connection Connection
	// OnSelect is called after a notification was opened and marked read.
	// Following its link is up to the caller.
	OnSelect func(notify.Notification)
	Now      func() time.Time
}

// Model is the bubbletea model for the bell.
type Model struct {
	store    Store
	signal   *Signal
	unsub    func()
	unwatch  func()
	onSelect func(notify.Notification)
	now      func() time.Time

	keys   KeyMap
	help   help.Model
	toasts Toasts

	snap   notify.Snapshot
	state  push.State
	seen   map[string]bool
	open   bool
	cursor int
	width  int
}

// New subscribes to the store and returns a ready model. Call Close when the
// program exits.
func New(opts Options) *Model {
	m := &Model{
		store:    opts.Store,
		onSelect: opts.OnSelect,
		now:      opts.Now,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		snap:     opts.Store.Snapshot(),
		seen:     make(map[string]bool),
	}
	if m.now == nil {
		m.now = time.Now
	}
	for _, n := range m.snap.Notifications {
		m.seen[n.ID] = true
	}

	m.signal = NewSignal(m.snap, push.StateIdle)
	m.unsub = opts.Store.Subscribe(m.signal.Snapshot)
	m.state = push.StateIdle
	if opts.Connection != nil {
		// Observe before reading so a transition in between is not lost.
		m.unwatch = opts.Connection.OnStateChange(m.signal.State)
		m.state = m.signal.seedState(opts.Connection.State())
	}
	m.keys.setOpen(false, m.snap.UnreadCount)

	return m
}

// Close unsubscribes from the store and the connection.
func (m *Model) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
}

func (m *Model) Open() bool                { return m.open }
func (m *Model) Cursor() int               { return m.cursor }
func (m *Model) Snapshot() notify.Snapshot { return m.snap }
func (m *Model) State() push.State         { return m.state }

func (m *Model) Init() tea.Cmd {
	return m.signal.WaitForSignal()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case refreshMsg:
		snap, state := m.signal.Latest()
		m.state = state
		cmd := m.apply(snap)
		return m, tea.Batch(cmd, m.signal.WaitForSignal())

	case toastTickMsg:
		m.toasts.Tick(toastTickInterval)
		if m.toasts.Len() == 0 {
			m.toasts.ticking = false
			return m, nil
		}
		return m, scheduleToastTick()

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Dismiss):
		m.toasts.Dismiss()
	case key.Matches(msg, m.keys.Toggle):
		m.setOpen(!m.open)
	case key.Matches(msg, m.keys.Close):
		m.setOpen(false)
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Notifications)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		if len(m.snap.Notifications) == 0 {
			return nil
		}
		n := m.snap.Notifications[m.cursor]
		m.store.MarkAsRead(n.ID)
		m.setOpen(false)
		m.sync()
		if m.onSelect != nil {
			n.Read = true
			m.onSelect(n)
		}
	case key.Matches(msg, m.keys.MarkAll):
		if m.snap.UnreadCount > 0 {
			m.store.MarkAllAsRead()
			m.sync()
		}
	case key.Matches(msg, m.keys.Clear):
		m.store.Clear()
		m.sync()
	}
	return nil
}

func (m *Model) setOpen(open bool) {
	m.open = open
	m.cursor = 0
	m.keys.setOpen(open, m.snap.UnreadCount)
}

// sync pulls the store state after a local mutation so the view does not
// wait for the signal round trip.
func (m *Model) sync() {
	m.apply(m.store.Snapshot())
}

// apply installs snap and raises toasts for ids not seen before.
func (m *Model) apply(snap notify.Snapshot) tea.Cmd {
	m.snap = snap
	if m.cursor >= len(snap.Notifications) {
		m.cursor = max(len(snap.Notifications)-1, 0)
	}
	m.keys.setOpen(m.open, snap.UnreadCount)

	// Walk oldest first so toasts stack in arrival order.
	for i := len(snap.Notifications) - 1; i >= 0; i-- {
		n := snap.Notifications[i]
		if m.seen[n.ID] {
			continue
		}
		m.seen[n.ID] = true
		if !n.Read && !m.open {
			m.toasts.Push(n)
		}
	}

	if m.toasts.Len() > 0 && !m.toasts.ticking {
		m.toasts.ticking = true
		return scheduleToastTick()
	}
	return nil
}

func (m *Model) View() string {
	sections := []string{m.badge()}
	if m.open {
		sections = append(sections, m.dropdown())
	}
	if toasts := m.toasts.View(); toasts != "" {
		sections = append(sections, toasts)
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) badge() string {
	count := styles.BadgeOffStyle.Render("0")
	if m.snap.UnreadCount > 0 {
		label := fmt.Sprintf("%d", m.snap.UnreadCount)
		if m.snap.UnreadCount > 99 {
			label = "99+"
		}
		count = styles.BadgeStyle.Render(label)
	}
	return styles.IconBell + " " + count + "  " + m.connectionLabel()
}

func (m *Model) connectionLabel() string {
	switch m.state {
	case push.StateConnected:
		return styles.TypeStyle(notify.TypeSuccess).Render("● live")
	case push.StateConnecting, push.StateReconnecting:
		return styles.TypeStyle(notify.TypeWarning).Render("◌ " + string(m.state))
	case push.StateDisconnected:
		return styles.MutedStyle.Render("○ offline")
	default:
		return styles.MutedStyle.Render("○ local")
	}
}

func (m *Model) dropdown() string {
	var b strings.Builder

	header := styles.TitleStyle.Render("Notifications")
	if m.snap.UnreadCount > 0 {
		header += "  " + styles.HelpStyle.Render("a: mark all as read")
	}
	b.WriteString(header)

	if len(m.snap.Notifications) == 0 {
		b.WriteString("\n\n")
		b.WriteString(styles.MutedStyle.Render(emptyText))
		return styles.DropdownStyle.Width(dropdownWidth).Render(b.String())
	}

	for i, n := range m.snap.Notifications {
		b.WriteString("\n")
		b.WriteString(m.row(n, i == m.cursor))
	}
	return styles.DropdownStyle.Width(dropdownWidth).Render(b.String())
}

func (m *Model) row(n notify.Notification, selected bool) string {
	marker := " "
	title := n.Title
	if !n.Read {
		marker = styles.UnreadStyle.Render(styles.IconUnread)
		title = styles.UnreadStyle.Render(title)
	}

	line := fmt.Sprintf("%s %s %s  %s",
		marker,
		styles.TypeStyle(n.Type).Render(styles.TypeIcon(n.Type)),
		title,
		styles.MutedStyle.Render(FormatAge(m.now().Sub(n.CreatedAt))),
	)
	if n.Message != "" {
		line += "\n    " + styles.MutedStyle.Render(n.Message)
	}

	if selected {
		return styles.SelectedStyle.Width(dropdownWidth - 2).Render(line)
	}
	return line
}

// FormatAge renders d as a compact age such as 42s, 5m, 3h or 2d.
func FormatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(int(d.Seconds()), 0))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
