package ticketapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Origin: srv.URL, Token: "tok-123"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresOrigin(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestListMessagesSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tickets/7/chat/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"message":"hi","type":"text","user":{"id":2,"name":"Sam"}}]`))
	})

	msgs, err := c.ListMessages(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, int64(2), msgs[0].Author.ID)
}

func TestSendMessagePostsBodyAndParsesRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req["message"])
		assert.Equal(t, "text", req["type"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"message":"hello","type":"text"}`))
	})

	m, err := c.SendMessage(context.Background(), 7, "hello", "text")
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.ID)
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"message is required"}`))
	})

	_, err := c.SendMessage(context.Background(), 7, "", "text")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "message is required")
}

func TestMarkMessagesRead(t *testing.T) {
	var called bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/tickets/7/chat/messages/read", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"updated":2}`))
	})

	require.NoError(t, c.MarkMessagesRead(context.Background(), 7))
	assert.True(t, called)
}

func TestListNotificationsUnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"n-1","type":"ticket_created","read":false}]}`))
	})

	items, err := c.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n-1", items[0].ID)
}

func TestMarkNotificationReadEscapesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/notifications/n%2F1/read", r.URL.RawPath)
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.MarkNotificationRead(context.Background(), "n/1"))
}

func TestAuthorizeChannel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/broadcasting/auth", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "111.22", req["socket_id"])
		assert.Equal(t, "private-ticket.7", req["channel_name"])
		_, _ = w.Write([]byte(`{"auth":"key:signature"}`))
	})

	sig, err := c.AuthorizeChannel(context.Background(), "111.22", "private-ticket.7")
	require.NoError(t, err)
	assert.Equal(t, "key:signature", sig)
}

func TestAuthorizeChannelRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	})

	_, err := c.AuthorizeChannel(context.Background(), "111.22", "private-ticket.7")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestUploadFileEnforcesSizeCap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("oversized upload must not reach the server")
	})

	big := strings.NewReader(strings.Repeat("x", MaxUploadSize+1))
	_, err := c.UploadFile(context.Background(), 7, "big.bin", big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestUploadFileParsesURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		f.Close()
		assert.Equal(t, "log.txt", hdr.Filename)
		_, _ = w.Write([]byte(`{"url":"/uploads/log.txt"}`))
	})

	url, err := c.UploadFile(context.Background(), 7, "log.txt", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/log.txt", url)
}
