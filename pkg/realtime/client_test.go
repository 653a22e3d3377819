package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHub is a minimal in-process stand-in for the websocket endpoint,
// enough protocol to exercise the client: handshake, subscribe bookkeeping
// and event broadcast.
type fakeHub struct {
	srv *httptest.Server

	mu         sync.Mutex
	conns      []*websocket.Conn
	subscribes []string
	authSeen   map[string]string
	nextSocket int
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	h := &fakeHub{authSeen: make(map[string]string)}
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.nextSocket++
		socketID := fmt.Sprintf("111.%d", h.nextSocket)
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		est, _ := json.Marshal(map[string]any{"socket_id": socketID, "activity_timeout": 120})
		_ = conn.WriteJSON(map[string]any{"event": "pusher:connection_established", "data": string(est)})

		for {
			var f struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Event {
			case "pusher:subscribe":
				var p struct {
					Channel string `json:"channel"`
					Auth    string `json:"auth"`
				}
				_ = json.Unmarshal(f.Data, &p)
				h.mu.Lock()
				h.subscribes = append(h.subscribes, p.Channel)
				if p.Auth != "" {
					h.authSeen[p.Channel] = p.Auth
				}
				h.mu.Unlock()
				_ = conn.WriteJSON(map[string]any{
					"event":   "pusher_internal:subscription_succeeded",
					"channel": p.Channel,
					"data":    "{}",
				})
			case "pusher:ping":
				_ = conn.WriteJSON(map[string]any{"event": "pusher:pong"})
			}
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHub) clientConfig() Config {
	u, _ := url.Parse(h.srv.URL)
	port, _ := strconv.Atoi(u.Port())
	return Config{AppKey: "test-key", Host: u.Hostname(), Port: port, ReconnectDelay: 10 * time.Millisecond}
}

// broadcast double-encodes the payload the way the wire protocol does.
func (h *fakeHub) broadcast(channel, event string, payload any) {
	data, _ := json.Marshal(payload)
	h.mu.Lock()
	conns := append([]*websocket.Conn(nil), h.conns...)
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.WriteJSON(map[string]any{"event": event, "channel": channel, "data": string(data)})
	}
}

func (h *fakeHub) dropAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = nil
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (h *fakeHub) subscribedChannels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.subscribes...)
}

type staticAuthorizer struct {
	sig string

	mu    sync.Mutex
	calls []string
}

func (a *staticAuthorizer) AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, socketID+"|"+channel)
	a.mu.Unlock()
	return a.sig, nil
}

func TestClientConnectHandshake(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "111.1", c.SocketID())

	// connecting again is a no-op
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "111.1", c.SocketID())
}

func TestClientSubscribeAndDispatch(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	got := make(chan []byte, 4)
	ch := c.Subscribe("user.1")
	ch.Bind("notification.ticket.created", func(data []byte) { got <- data })

	require.Eventually(t, func() bool { return len(hub.subscribedChannels()) == 1 },
		time.Second, 5*time.Millisecond)

	hub.broadcast("user.1", "notification.ticket.created", map[string]string{"title": "hi"})
	select {
	case data := <-got:
		// the double-encoded data field arrives unwrapped
		var p struct {
			Title string `json:"title"`
		}
		require.NoError(t, json.Unmarshal(data, &p))
		assert.Equal(t, "hi", p.Title)
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}

	// an event for an unbound name is ignored
	hub.broadcast("user.1", "notification.ticket.deleted", map[string]string{})
	// events for channels we never subscribed are ignored
	hub.broadcast("user.2", "notification.ticket.created", map[string]string{})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got)
}

func TestClientSubscribeIdempotent(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	ch1 := c.Subscribe("user.1")
	ch2 := c.Subscribe("user.1")
	assert.Same(t, ch1, ch2)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"user.1"}, hub.subscribedChannels())
}

func TestClientPrivateChannelAuth(t *testing.T) {
	hub := newFakeHub(t)
	auth := &staticAuthorizer{sig: "test-key:deadbeef"}
	cfg := hub.clientConfig()
	cfg.Authorizer = auth
	c := New(cfg)
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	c.Subscribe("private-ticket.7")

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return hub.authSeen["private-ticket.7"] == "test-key:deadbeef"
	}, time.Second, 5*time.Millisecond)

	auth.mu.Lock()
	defer auth.mu.Unlock()
	require.Len(t, auth.calls, 1)
	assert.Equal(t, "111.1|private-ticket.7", auth.calls[0])
}

func TestClientUnbindStopsDelivery(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	got := make(chan []byte, 4)
	ch := c.Subscribe("user.1")
	b := ch.Bind("notification.ticket.created", func(data []byte) { got <- data })
	require.Eventually(t, func() bool { return len(hub.subscribedChannels()) == 1 },
		time.Second, 5*time.Millisecond)

	ch.Unbind(b)
	ch.Unbind(b) // double unbind is safe
	hub.broadcast("user.1", "notification.ticket.created", map[string]string{})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got)
}

func TestClientReconnectsWithFixedDelayAndResubscribes(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	t.Cleanup(c.Disconnect)

	var connects atomic32
	c.OnConnected(func() { connects.inc() })
	var sawError atomic32
	c.OnError(func(error) { sawError.inc() })

	require.NoError(t, c.Connect(context.Background()))
	c.Subscribe("user.1")
	require.Eventually(t, func() bool { return len(hub.subscribedChannels()) == 1 },
		time.Second, 5*time.Millisecond)

	hub.dropAll()

	// the client comes back on its own and re-announces the channel
	require.Eventually(t, func() bool { return c.State() == StateConnected && c.SocketID() == "111.2" },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(hub.subscribedChannels()) == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"user.1", "user.1"}, hub.subscribedChannels())
	require.Eventually(t, func() bool { return connects.get() >= 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, sawError.get(), int32(1))
}

func TestClientUnsubscribeUnknownChannelIsNoop(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	c.Unsubscribe("user.99")
	assert.Equal(t, StateConnected, c.State())
}

func TestClientDisconnectIsFinalAndIdempotent(t *testing.T) {
	hub := newFakeHub(t)
	c := New(hub.clientConfig())
	require.NoError(t, c.Connect(context.Background()))

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	require.Error(t, c.Connect(context.Background()))
	_ = hub
}

type atomic32 struct {
	mu sync.Mutex
	n  int32
}

func (a *atomic32) inc() {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *atomic32) get() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
