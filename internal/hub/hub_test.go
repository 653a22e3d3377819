package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskchat/pkg/config"
	"deskchat/pkg/models"
	"deskchat/pkg/realtime"
	"deskchat/pkg/ticketapi"
)

func newTestHub(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	require.NoError(t, OpenStore(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, CloseStore()) })

	cfg := &config.Config{}
	cfg.Hub.AppKey = "k1"
	cfg.Hub.AppSecret = "s3cret"
	cfg.Hub.RateLimit.RPS = 500
	cfg.Hub.RateLimit.Burst = 1000
	cfg.Hub.Tokens = []config.HubTokenConfig{
		{Token: "tok-admin", ID: 1, Name: "Dana", Role: models.RoleAdmin},
		{Token: "tok-cust", ID: 2, Name: "Sam", Role: models.RoleCustomer},
	}
	srv := NewServer(cfg, t.TempDir())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func apiClient(t *testing.T, ts *httptest.Server, token string) *ticketapi.Client {
	t.Helper()
	c, err := ticketapi.NewClient(ticketapi.Config{Origin: ts.URL, Token: token})
	require.NoError(t, err)
	return c
}

func rtClient(t *testing.T, ts *httptest.Server, auth realtime.Authorizer) *realtime.Client {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())
	c := realtime.New(realtime.Config{
		AppKey:         "k1",
		Host:           u.Hostname(),
		Port:           port,
		Authorizer:     auth,
		ReconnectDelay: 10 * time.Millisecond,
	})
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	_, ts := newTestHub(t)

	resp, err := http.Get(ts.URL + "/api/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessageRoundTrip(t *testing.T) {
	_, ts := newTestHub(t)
	admin := apiClient(t, ts, "tok-admin")

	sent, err := admin.SendMessage(context.Background(), 7, "hello there", models.KindText)
	require.NoError(t, err)
	assert.NotZero(t, sent.ID)
	assert.Equal(t, int64(1), sent.Author.ID)

	msgs, err := admin.ListMessages(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.ID, msgs[0].ID)
	assert.False(t, msgs[0].Read)
}

func TestMarkMessagesReadSkipsOwn(t *testing.T) {
	_, ts := newTestHub(t)
	admin := apiClient(t, ts, "tok-admin")
	cust := apiClient(t, ts, "tok-cust")

	_, err := cust.SendMessage(context.Background(), 7, "help me", models.KindText)
	require.NoError(t, err)
	_, err = admin.SendMessage(context.Background(), 7, "looking", models.KindText)
	require.NoError(t, err)

	require.NoError(t, admin.MarkMessagesRead(context.Background(), 7))

	msgs, err := admin.ListMessages(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// the customer's message is read now, the admin's own is untouched
	assert.True(t, msgs[0].Read)
	assert.False(t, msgs[1].Read)
}

func TestBroadcastReachesPrivateChannelSubscriber(t *testing.T) {
	_, ts := newTestHub(t)
	admin := apiClient(t, ts, "tok-admin")
	cust := apiClient(t, ts, "tok-cust")

	rt := rtClient(t, ts, admin)
	got := make(chan []byte, 4)
	rt.Subscribe(models.TicketChannel(7)).Bind(models.EventMessageSent, func(data []byte) { got <- data })

	// give the subscribe (with its auth round trip) a moment to land
	require.Eventually(t, func() bool {
		if _, err := cust.SendMessage(context.Background(), 7, "ping", models.KindText); err != nil {
			return false
		}
		select {
		case data := <-got:
			assert.Contains(t, string(data), `"ping"`)
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestBroadcastAuthRejectsForeignTicket(t *testing.T) {
	_, ts := newTestHub(t)
	admin := apiClient(t, ts, "tok-admin")
	cust := apiClient(t, ts, "tok-cust")

	// a ticket created by the admin is not the customer's to join
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/tickets", strings.NewReader(`{"subject":"internal"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok-admin")
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var ticket Ticket
	require.NoError(t, jsonDecode(res, &ticket))

	_, err = cust.AuthorizeChannel(context.Background(), "1.1", models.TicketChannel(ticket.ID))
	var apiErr *ticketapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	// the admin gets a signature
	sig, err := admin.AuthorizeChannel(context.Background(), "1.1", models.TicketChannel(ticket.ID))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "k1:"))
}

func TestForgedSubscribeSignatureRejected(t *testing.T) {
	srv, ts := newTestHub(t)
	_ = srv

	rt := rtClient(t, ts, forgedAuthorizer{})
	got := make(chan []byte, 1)
	var subErr error
	rt.OnError(func(err error) { subErr = err })
	rt.Subscribe(models.TicketChannel(7)).Bind(models.EventMessageSent, func(data []byte) { got <- data })

	admin := apiClient(t, ts, "tok-admin")
	_, err := admin.SendMessage(context.Background(), 7, "secret", models.KindText)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, got)
	_ = subErr
}

type forgedAuthorizer struct{}

func (forgedAuthorizer) AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error) {
	return "k1:deadbeefdeadbeef", nil
}

func TestTicketCreationNotifiesAssigneeAndAdmins(t *testing.T) {
	_, ts := newTestHub(t)
	admin := apiClient(t, ts, "tok-admin")
	cust := apiClient(t, ts, "tok-cust")

	adminRT := rtClient(t, ts, admin)
	custRT := rtClient(t, ts, cust)

	adminGot := make(chan []byte, 4)
	custGot := make(chan []byte, 4)
	adminRT.Subscribe(models.AdminChannel).Bind(models.EventTicketCreated, func(data []byte) { adminGot <- data })
	custRT.Subscribe(models.UserChannel(2)).Bind(models.EventTicketAssigned, func(data []byte) { custGot <- data })

	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/tickets",
			strings.NewReader(`{"subject":"printer on fire","assignee_id":2}`))
		req.Header.Set("Authorization", "Bearer tok-admin")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		res.Body.Close()
		ok := true
		select {
		case <-adminGot:
		case <-time.After(100 * time.Millisecond):
			ok = false
		}
		select {
		case data := <-custGot:
			assert.Contains(t, string(data), "ticket_assigned")
		case <-time.After(100 * time.Millisecond):
			ok = false
		}
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	// the assignee's history records it
	items, err := cust.ListNotifications(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, models.NotifTicketAssigned, items[0].Type)
	assert.False(t, items[0].Read)
}

func TestNotificationReadEndpoints(t *testing.T) {
	srv, ts := newTestHub(t)
	cust := apiClient(t, ts, "tok-cust")

	for i := 0; i < 3; i++ {
		srv.PublishNotification(models.NotificationEvent{
			Type:    models.NotifTicketUpdated,
			Title:   "Updated",
			Message: "status changed",
		}, models.EventTicketUpdated, 2)
	}

	items, err := cust.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NoError(t, cust.MarkNotificationRead(context.Background(), items[0].ID))
	items, err = cust.ListNotifications(context.Background())
	require.NoError(t, err)
	assert.True(t, items[0].Read)
	assert.False(t, items[1].Read)

	// unknown id is idempotent
	require.NoError(t, cust.MarkNotificationRead(context.Background(), "ghost"))

	require.NoError(t, cust.MarkAllNotificationsRead(context.Background()))
	items, err = cust.ListNotifications(context.Background())
	require.NoError(t, err)
	for _, it := range items {
		assert.True(t, it.Read)
	}
}

func TestUploadSpoolAndServe(t *testing.T) {
	_, ts := newTestHub(t)
	cust := apiClient(t, ts, "tok-cust")

	url, err := cust.UploadFile(context.Background(), 7, "notes.txt", strings.NewReader("attached"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/uploads/"))

	resp, err := http.Get(ts.URL + url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestHub(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func jsonDecode(res *http.Response, v any) error {
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(v)
}
