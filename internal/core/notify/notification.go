// Package notify holds the per-user notification record and the store that
// owns the ordered, persisted list of them.
package notify

import (
	"errors"
	"time"
)

// Type controls presentation styling only.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
)

// IsValid reports whether t is one of the known types.
func (t Type) IsValid() bool {
	switch t {
	case TypeSuccess, TypeError, TypeInfo, TypeWarning:
		return true
	}
	return false
}

// OrDefault returns t, or TypeInfo when t is unknown.
func (t Type) OrDefault() Type {
	if t.IsValid() {
		return t
	}
	return TypeInfo
}

// Notification is a single record in a user's store.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Draft is the input for a locally originated notification. The store
// assigns the id, owner, read flag and timestamp.
type Draft struct {
	Title   string
	Message string
	Type    Type
	Link    string
}

// Payload is the inbound push event delivered over the real-time channel.
type Payload struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

var (
	ErrMissingID   = errors.New("notification id is required")
	ErrMissingUser = errors.New("notification userId is required")
)

// Validate rejects payloads that cannot be merged into a store.
func (p Payload) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	if p.UserID == "" {
		return ErrMissingUser
	}
	return nil
}

// Notification converts the payload into an unread record.
func (p Payload) Notification() Notification {
	return Notification{
		ID:        p.ID,
		UserID:    p.UserID,
		Title:     p.Title,
		Message:   p.Message,
		Type:      p.Type.OrDefault(),
		Link:      p.Link,
		CreatedAt: p.CreatedAt,
	}
}

// Snapshot is the reactive view handed to subscribers.
type Snapshot struct {
	Notifications []Notification
	UnreadCount   int
}

// CountUnread returns the number of records with Read == false.
func CountUnread(items []Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}
