// Package realtime maintains the shared publish/subscribe connection:
// one live socket per authenticated viewer, channel-scoped event
// subscription, and fixed-delay reconnect. The transport guarantees no
// replay of missed events; owning controllers re-fetch authoritative
// state from the OnConnected hook.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deskchat/pkg/logger"
	"deskchat/pkg/metrics"
)

// State is the connection lifecycle state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Authorizer performs the broadcasting-auth handshake for private
// channels. Implemented by ticketapi.Client.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, socketID, channel string) (string, error)
}

// Config holds the transport settings.
type Config struct {
	AppKey   string
	Cluster  string
	ForceTLS bool
	// Host/Port override the cluster endpoint (dev hub, tests).
	Host string
	Port int
	// Authorizer is required to subscribe to private- channels.
	Authorizer Authorizer
	// ReconnectDelay between reconnect attempts. Defaults to one second.
	ReconnectDelay time.Duration
}

type dispatchItem struct {
	channel string
	event   string
	data    []byte
}

// Client is the transport client. It is shared process-wide: chat
// sessions and the notification feed subscribe to different channels on
// the same connection, so tearing one down must never disconnect the
// socket itself.
type Client struct {
	cfg Config
	url string

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	socketID    string
	channels    map[string]*Channel
	onConnected []func()
	onError     []func(error)
	closed      bool
	generation  int

	writeMu sync.Mutex
	events  chan dispatchItem
	done    chan struct{}
	bindSeq uint64
}

// New creates a transport client. No network happens until Connect.
func New(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	c := &Client{
		cfg:      cfg,
		url:      endpointURL(cfg),
		state:    StateDisconnected,
		channels: make(map[string]*Channel),
		events:   make(chan dispatchItem, 256),
		done:     make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SocketID returns the server-assigned socket id for the live connection,
// or empty when disconnected.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// OnConnected registers a hook invoked after every successful connect,
// including reconnects. Controllers use it to re-fetch authoritative
// state and close any event gap.
func (c *Client) OnConnected(fn func()) {
	c.mu.Lock()
	c.onConnected = append(c.onConnected, fn)
	c.mu.Unlock()
}

// OnError registers a hook for transport failures (connection loss,
// subscription auth failures). Hooks must not block.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// Connect establishes the connection. On failure the client lands in the
// error state; the caller owns user-visible reporting and may rely on a
// later Connect or the reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("realtime: client is closed")
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.setState(StateError)
		c.fireError(err)
		return err
	}
	return nil
}

// dial opens the socket, performs the handshake and starts the reader.
func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("realtime: dial: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		conn.Close()
		return fmt.Errorf("realtime: handshake read: %w", err)
	}
	if f.Event != evtConnEstablished {
		conn.Close()
		return fmt.Errorf("realtime: unexpected handshake event %q", f.Event)
	}
	var est connEstablishedPayload
	if err := json.Unmarshal(decodeData(f.Data), &est); err != nil || est.SocketID == "" {
		conn.Close()
		return fmt.Errorf("realtime: malformed handshake payload")
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("realtime: client is closed")
	}
	c.conn = conn
	c.socketID = est.SocketID
	c.state = StateConnected
	c.generation++
	gen := c.generation
	chans := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		ch.markUnsubscribed()
		chans = append(chans, ch)
	}
	hooks := append([]func(){}, c.onConnected...)
	c.mu.Unlock()

	metrics.ConnectionUp.Set(1)
	logger.Info("transport_connected", "socket_id", est.SocketID)

	go c.readLoop(conn, gen)

	for _, ch := range chans {
		c.sendSubscribe(ch)
	}
	// hooks re-fetch over REST; keep them off the caller's path
	go func() {
		for _, fn := range hooks {
			fn()
		}
	}()
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.handleDisconnect(conn, gen, err)
			return
		}
		switch f.Event {
		case evtPing:
			_ = c.send(outFrame{Event: evtPong})
		case evtPong:
			// keepalive answer, nothing to do
		case evtError:
			logger.Warn("transport_error_event", "data", string(f.Data))
			c.fireError(fmt.Errorf("realtime: server error: %s", decodeData(f.Data)))
		case evtSubSucceeded:
			logger.Debug("subscription_succeeded", "channel", f.Channel)
		default:
			if f.Channel == "" {
				continue
			}
			select {
			case c.events <- dispatchItem{channel: f.Channel, event: f.Event, data: decodeData(f.Data)}:
			case <-c.done:
				return
			}
		}
	}
}

// dispatchLoop is the single goroutine that runs event handlers, so all
// controller mutation triggered by the transport is serialized.
func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case item := <-c.events:
			c.mu.Lock()
			ch := c.channels[item.channel]
			c.mu.Unlock()
			if ch != nil {
				ch.dispatch(item.event, item.data)
			}
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, gen int, cause error) {
	c.mu.Lock()
	if c.closed || c.generation != gen {
		// deliberate close, or a stale reader from a replaced socket
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = nil
	c.socketID = ""
	c.state = StateDisconnected
	c.mu.Unlock()
	conn.Close()

	metrics.ConnectionUp.Set(0)
	logger.Warn("transport_disconnected", "error", cause)
	c.fireError(fmt.Errorf("realtime: connection lost: %w", cause))

	go c.reconnectLoop()
}

// reconnectLoop retries the connection at a fixed delay until the client
// is closed or a dial succeeds.
func (c *Client) reconnectLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		metrics.Reconnects.Inc()
		if err := c.dial(context.Background()); err == nil {
			return
		} else {
			logger.Warn("transport_reconnect_failed", "error", err)
			c.setState(StateError)
		}
	}
}

// Subscribe returns the channel handle for name, creating it if needed.
// Idempotent: repeated calls return the same handle and never duplicate
// event delivery. The subscribe frame is sent once per live connection.
func (c *Client) Subscribe(name string) *Channel {
	c.mu.Lock()
	ch, ok := c.channels[name]
	if !ok {
		ch = newChannel(c, name)
		c.channels[name] = ch
	}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected {
		c.sendSubscribe(ch)
	}
	return ch
}

// Unsubscribe releases the named channel. Safe to call for a channel that
// was never subscribed.
func (c *Client) Unsubscribe(name string) {
	c.mu.Lock()
	ch, ok := c.channels[name]
	if ok {
		delete(c.channels, name)
	}
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !ok {
		return
	}
	ch.UnbindAll()
	if connected {
		_ = c.send(outFrame{Event: evtUnsubscribe, Data: unsubscribePayload{Channel: name}})
	}
}

// sendSubscribe announces the channel on the live socket, running the
// broadcasting-auth handshake first for private channels.
func (c *Client) sendSubscribe(ch *Channel) {
	if !ch.claimSubscribe() {
		return
	}
	payload := subscribePayload{Channel: ch.name}
	if isPrivate(ch.name) {
		if c.cfg.Authorizer == nil {
			ch.markUnsubscribed()
			c.fireError(fmt.Errorf("realtime: no authorizer for private channel %s", ch.name))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		auth, err := c.cfg.Authorizer.AuthorizeChannel(ctx, c.SocketID(), ch.name)
		cancel()
		if err != nil {
			ch.markUnsubscribed()
			logger.Warn("subscription_auth_failed", "channel", ch.name, "error", err)
			c.fireError(fmt.Errorf("realtime: subscription auth for %s: %w", ch.name, err))
			return
		}
		payload.Auth = auth
	}
	if err := c.send(outFrame{Event: evtSubscribe, Data: payload}); err != nil {
		ch.markUnsubscribed()
		logger.Warn("subscribe_send_failed", "channel", ch.name, "error", err)
	}
}

// Disconnect releases all channels and the underlying connection. Safe to
// call multiple times; the client cannot be reused afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.socketID = ""
	c.state = StateDisconnected
	c.channels = make(map[string]*Channel)
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.Close()
	}
	metrics.ConnectionUp.Set(0)
	logger.Info("transport_disconnected_by_caller")
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) fireError(err error) {
	c.mu.Lock()
	hooks := append([]func(error){}, c.onError...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func isPrivate(name string) bool {
	return len(name) >= len(privatePrefix) && name[:len(privatePrefix)] == privatePrefix
}
