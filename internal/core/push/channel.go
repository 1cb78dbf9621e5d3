// Package push maintains the per-user real-time push connection and feeds
// inbound notifications into the notification store.
package push

import (
	"context"
	"time"
)

// Event names emitted by a Channel.
const (
	// EventNotification carries a JSON encoded notify.Payload.
	EventNotification = "notification"
	// EventDisconnect is emitted when an established connection is lost for
	// any reason other than a local Disconnect call. The data is a reason string.
	EventDisconnect = "disconnect"
)

// Auth identifies the user a connection is opened for.
type Auth struct {
	UserID string
	Token  string
}

// Handler receives the raw data of a channel event.
type Handler func(data []byte)

// Channel is a bidirectional real-time channel holding at most one connection.
//
// Connect blocks until the handshake completes or fails. Disconnect closes the
// live connection, is safe to call repeatedly, and guarantees no further
// events are delivered for the closed connection once it returns.
type Channel interface {
	Connect(ctx context.Context, auth Auth) error
	On(event string, handler Handler)
	Disconnect() error
}

// TokenSource produces the auth token presented for userID.
type TokenSource func(userID string) (string, error)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
