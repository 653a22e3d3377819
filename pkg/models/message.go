package models

import "time"

// Message kinds accepted by the chat endpoints.
const (
	KindText   = "text"
	KindFile   = "file"
	KindSystem = "system"
)

// User identifies a message author or notification recipient.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Roles known to the backend.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

type Message struct {
	// ID is the server-assigned id. Zero until the create call (or the
	// realtime echo) delivers the authoritative record.
	ID int64 `json:"id"`
	// LocalID marks an optimistic entry that has not been reconciled
	// against a server id yet. Never sent over the wire.
	LocalID string `json:"-"`
	// Body is the message text, or the uploaded file URL for KindFile.
	Body      string    `json:"message"`
	Kind      string    `json:"type"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	Author    User      `json:"user"`
}

// Pending reports whether the message is still an optimistic local entry.
func (m Message) Pending() bool {
	return m.ID == 0 && m.LocalID != ""
}
