package bell

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/styles"
)

const (
	defaultToastTTL   = 5 * time.Second
	defaultMaxToasts  = 3
	toastTickInterval = 100 * time.Millisecond
	toastWidth        = 48
)

type toastTickMsg time.Time

func scheduleToastTick() tea.Cmd {
	return tea.Tick(toastTickInterval, func(t time.Time) tea.Msg {
		return toastTickMsg(t)
	})
}

type toast struct {
	notification notify.Notification
	remaining    time.Duration
}

// Toasts holds transient popups for notifications that arrived while the
// model was running. Oldest toasts are evicted beyond the max.
type Toasts struct {
	toasts  []toast
	ticking bool
}

func (c *Toasts) Push(n notify.Notification) {
	c.toasts = append(c.toasts, toast{notification: n, remaining: defaultToastTTL})
	if len(c.toasts) > defaultMaxToasts {
		c.toasts = c.toasts[len(c.toasts)-defaultMaxToasts:]
	}
}

// Tick decrements the remaining TTL on all toasts by d and drops expired ones.
func (c *Toasts) Tick(d time.Duration) {
	alive := c.toasts[:0]
	for _, t := range c.toasts {
		t.remaining -= d
		if t.remaining > 0 {
			alive = append(alive, t)
		}
	}
	c.toasts = alive
}

// Dismiss removes the newest toast.
func (c *Toasts) Dismiss() {
	if len(c.toasts) > 0 {
		c.toasts = c.toasts[:len(c.toasts)-1]
	}
}

func (c *Toasts) Len() int { return len(c.toasts) }

func (c *Toasts) View() string {
	if len(c.toasts) == 0 {
		return ""
	}

	rendered := make([]string, 0, len(c.toasts))
	for _, t := range c.toasts {
		n := t.notification
		accent := styles.TypeStyle(n.Type)
		content := accent.Render(styles.TypeIcon(n.Type)) + " " + n.Title
		if n.Message != "" {
			content += "\n" + styles.MutedStyle.Render(n.Message)
		}
		rendered = append(rendered, styles.ToastStyle.
			BorderForeground(accent.GetForeground()).
			Width(toastWidth).
			Render(content))
	}
	return strings.Join(rendered, "\n")
}
