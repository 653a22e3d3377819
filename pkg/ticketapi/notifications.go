package ticketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"deskchat/pkg/models"
)

// ListNotifications fetches the viewer's notification history. The
// endpoint wraps the list in a data envelope.
func (c *Client) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/notifications", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []models.Notification `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("ticketapi: parse notifications: %w", err)
	}
	return out.Data, nil
}

// MarkNotificationRead marks a single notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodPatch, "/api/notifications/"+url.PathEscape(id)+"/read", nil)
	return err
}

// MarkAllNotificationsRead marks every notification for the viewer as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodPatch, "/api/notifications/mark-all-read", nil)
	return err
}
