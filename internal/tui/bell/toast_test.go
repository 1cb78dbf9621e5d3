package bell

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/bell/internal/core/notify"
)

func TestToasts_PushEvictsOldest(t *testing.T) {
	var c Toasts
	for i := range defaultMaxToasts + 2 {
		c.Push(notify.Notification{Title: fmt.Sprintf("t%d", i)})
	}

	assert.Equal(t, defaultMaxToasts, c.Len())
	assert.Equal(t, "t2", c.toasts[0].notification.Title)
}

func TestToasts_TickExpires(t *testing.T) {
	var c Toasts
	c.Push(notify.Notification{Title: "expires"})
	c.Push(notify.Notification{Title: "survives"})
	c.toasts[0].remaining = 50 * time.Millisecond

	c.Tick(100 * time.Millisecond)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "survives", c.toasts[0].notification.Title)
	assert.Equal(t, defaultToastTTL-100*time.Millisecond, c.toasts[0].remaining)
}

func TestToasts_Dismiss(t *testing.T) {
	var c Toasts
	c.Dismiss()

	c.Push(notify.Notification{Title: "first"})
	c.Push(notify.Notification{Title: "second"})
	c.Dismiss()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "first", c.toasts[0].notification.Title)
}

func TestToasts_View(t *testing.T) {
	var c Toasts
	assert.Empty(t, c.View())

	c.Push(notify.Notification{Title: "Saved", Message: "Profile updated", Type: notify.TypeSuccess})

	out := c.View()
	assert.Contains(t, out, "Saved")
	assert.Contains(t, out, "Profile updated")
}
