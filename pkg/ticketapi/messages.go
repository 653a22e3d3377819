package ticketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"deskchat/pkg/models"
)

// ListMessages fetches the full message history for a ticket's chat.
func (c *Client) ListMessages(ctx context.Context, ticketID int64) ([]models.Message, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/tickets/%d/chat/messages", ticketID), nil)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, fmt.Errorf("ticketapi: parse messages: %w", err)
	}
	return msgs, nil
}

// SendMessage creates a chat message and returns the authoritative record
// (server-assigned id, timestamps, author).
func (c *Client) SendMessage(ctx context.Context, ticketID int64, message, kind string) (models.Message, error) {
	payload := map[string]string{"message": message, "type": kind}
	body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/chat/messages", ticketID), payload)
	if err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := json.Unmarshal(body, &m); err != nil {
		return models.Message{}, fmt.Errorf("ticketapi: parse created message: %w", err)
	}
	return m, nil
}

// MarkMessagesRead marks every message in the conversation that was
// authored by someone else as read. Idempotent on the server.
func (c *Client) MarkMessagesRead(ctx context.Context, ticketID int64) error {
	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/chat/messages/read", ticketID), nil)
	return err
}
