package models

import (
	"encoding/json"
	"time"
)

// Notification types emitted by the backend. The values are the wire tags.
const (
	NotifTicketCreated       = "ticket_created"
	NotifTicketAssigned      = "ticket_assigned"
	NotifTicketUpdated       = "ticket_updated"
	NotifTicketDeleted       = "ticket_deleted"
	NotifTicketAssignedOther = "ticket_assigned_other"
)

type Notification struct {
	// ID is the server id for fetched records, or a synthesized
	// "realtime-..." id for pushed events.
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	ActionURL string          `json:"action_url,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
	Sender    *User           `json:"sender,omitempty"`
}

// NotificationEvent is the payload carried by the realtime notification
// events. The receiving feed synthesizes a Notification from it.
type NotificationEvent struct {
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	ActionURL string          `json:"action_url,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Sender    *User           `json:"sender,omitempty"`
}
