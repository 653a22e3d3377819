package models

import "fmt"

// Realtime event names.
const (
	EventMessageSent    = "message.sent"
	EventTicketCreated  = "notification.ticket.created"
	EventTicketAssigned = "notification.ticket.assigned"
	EventTicketUpdated  = "notification.ticket.updated"
	EventTicketDeleted  = "notification.ticket.deleted"
)

// AdminChannel is the broadcast channel reserved for admin-wide
// notifications.
const AdminChannel = "admin-notifications"

// TicketChannel returns the canonical per-conversation channel name. The
// backend broadcasts chat traffic on a private channel so subscription
// goes through the broadcasting-auth endpoint.
func TicketChannel(ticketID int64) string {
	return fmt.Sprintf("private-ticket.%d", ticketID)
}

// UserChannel returns the per-viewer channel name.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}
