package ticketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AuthorizeChannel performs the broadcasting-auth handshake required
// before subscribing to a private channel. The returned signature string
// is forwarded verbatim in the transport's subscribe frame.
//
// This method makes *Client satisfy realtime.Authorizer.
func (c *Client) AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error) {
	payload := map[string]string{"socket_id": socketID, "channel_name": channel}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/broadcasting/auth", payload)
	if err != nil {
		return "", err
	}
	var out struct {
		Auth string `json:"auth"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("ticketapi: parse broadcasting auth: %w", err)
	}
	if out.Auth == "" {
		return "", fmt.Errorf("ticketapi: broadcasting auth response missing auth")
	}
	return out.Auth, nil
}
