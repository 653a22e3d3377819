// Package ticketapi is the typed HTTP client for the ticketing backend's
// chat and notification endpoints. It owns nothing beyond the request
// plumbing; callers decide how failures surface.
package ticketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Config holds what the client needs to reach the backend.
type Config struct {
	// Origin is the API base URL, e.g. "http://127.0.0.1:8000".
	Origin string
	// Token is the viewer's session bearer token.
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient.
	HTTPClient *http.Client
}

// Client talks to the ticketing REST API on behalf of one viewer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient validates the config and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("ticketapi: Origin is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Origin, "/"),
		token:      cfg.Token,
		httpClient: hc,
	}, nil
}

// APIError is a non-2xx response decoded from the backend's error shape.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ticketapi: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ticketapi: unexpected status %d", e.StatusCode)
}

// doRequest performs a JSON request and returns the response body. On a
// non-2xx status it returns an *APIError; the body is still returned when
// it could be read, so callers may inspect it.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("ticketapi: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("ticketapi: create request: %w", err)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticketapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("ticketapi: read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return responseBody, nil
	}

	// error responses carry {"message": "..."} or {"error": "..."}
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(responseBody, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error
	}
	return responseBody, &APIError{StatusCode: resp.StatusCode, Message: msg}
}
