package ticketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// MaxUploadSize caps chat file uploads client-side (10 MiB, matching the
// backend limit).
const MaxUploadSize = 10 << 20

// UploadFile uploads a file for a ticket's chat and returns the URL the
// follow-up file message should carry as its body.
func (c *Client) UploadFile(ctx context.Context, ticketID int64, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("ticketapi: build upload form: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return "", fmt.Errorf("ticketapi: read upload: %w", err)
	}
	if n > MaxUploadSize {
		return "", fmt.Errorf("ticketapi: file too large (max %d bytes)", MaxUploadSize)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("ticketapi: finish upload form: %w", err)
	}

	path := fmt.Sprintf("/api/tickets/%d/chat/upload", ticketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return "", fmt.Errorf("ticketapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ticketapi: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ticketapi: read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return "", &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("ticketapi: parse upload response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("ticketapi: upload response missing url")
	}
	return out.URL, nil
}
