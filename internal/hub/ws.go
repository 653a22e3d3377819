package hub

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"deskchat/pkg/logger"
	"deskchat/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wire frame shapes; data is double-encoded on server-sent events the way
// the hosted protocol does it.
type wsFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wsOutFrame struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    string `json:"data,omitempty"`
}

type wsConn struct {
	socketID string
	conn     *websocket.Conn
	send     chan []byte
	sendOnce sync.Once

	mu   sync.Mutex
	subs map[string]bool
}

func (c *wsConn) closeSend() { c.sendOnce.Do(func() { close(c.send) }) }

func (c *wsConn) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[channel]
}

// Registry tracks live websocket connections and fans events out to
// channel subscribers.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*wsConn)}
}

func (reg *Registry) register(c *wsConn) {
	reg.mu.Lock()
	reg.conns[c.socketID] = c
	reg.mu.Unlock()
}

func (reg *Registry) unregister(socketID string) {
	reg.mu.Lock()
	if c, ok := reg.conns[socketID]; ok {
		c.closeSend()
		delete(reg.conns, socketID)
	}
	reg.mu.Unlock()
}

// Broadcast sends event to every connection subscribed to channel. Slow
// consumers are skipped rather than blocking the fan-out.
func (reg *Registry) Broadcast(channel, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("hub_broadcast_marshal_failed", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(wsOutFrame{Event: event, Channel: channel, Data: string(data)})
	if err != nil {
		return
	}
	reg.mu.RLock()
	targets := make([]*wsConn, 0, len(reg.conns))
	for _, c := range reg.conns {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	reg.mu.RUnlock()
	for _, c := range targets {
		select {
		case c.send <- frame:
		default:
		}
	}
	logger.Debug("hub_broadcast", "channel", channel, "event", event, "conns", len(targets))
}

func newSocketID() string {
	return fmt.Sprintf("%d.%d", rand.Int63n(1_000_000_000), rand.Int63n(1_000_000_000))
}

// serveWS upgrades the connection and speaks the protocol subset the
// client transport expects: connection_established, subscribe (with the
// broadcasting-auth signature on private- channels), unsubscribe and
// ping/pong.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["key"] != s.cfg.Hub.AppKey {
		http.Error(w, `{"error":"unknown app key"}`, http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{
		socketID: newSocketID(),
		conn:     conn,
		send:     make(chan []byte, 256),
		subs:     make(map[string]bool),
	}
	s.registry.register(c)
	defer s.registry.unregister(c.socketID)

	go c.writePump()

	est, _ := json.Marshal(map[string]any{"socket_id": c.socketID, "activity_timeout": 120})
	frame, _ := json.Marshal(wsOutFrame{Event: "pusher:connection_established", Data: string(est)})
	c.send <- frame
	logger.Info("hub_ws_connected", "socket_id", c.socketID)

	c.readPump(s)
	logger.Info("hub_ws_disconnected", "socket_id", c.socketID)
}

func (c *wsConn) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsConn) readPump(s *Server) {
	defer c.conn.Close()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f wsFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		switch f.Event {
		case "pusher:ping":
			pong, _ := json.Marshal(wsOutFrame{Event: "pusher:pong"})
			c.send <- pong
		case "pusher:subscribe":
			c.handleSubscribe(s, f.Data)
		case "pusher:unsubscribe":
			var p struct {
				Channel string `json:"channel"`
			}
			if json.Unmarshal(f.Data, &p) == nil && p.Channel != "" {
				c.mu.Lock()
				delete(c.subs, p.Channel)
				c.mu.Unlock()
			}
		}
	}
}

func (c *wsConn) handleSubscribe(s *Server, data json.RawMessage) {
	var p struct {
		Channel string `json:"channel"`
		Auth    string `json:"auth"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Channel == "" {
		c.sendError("malformed subscribe")
		return
	}
	if strings.HasPrefix(p.Channel, "private-") {
		if p.Auth != s.channelSignature(c.socketID, p.Channel) {
			logger.Warn("hub_subscribe_rejected", "socket_id", c.socketID, "channel", p.Channel)
			c.sendError("invalid auth signature for " + p.Channel)
			return
		}
	}
	c.mu.Lock()
	c.subs[p.Channel] = true
	c.mu.Unlock()
	frame, _ := json.Marshal(wsOutFrame{
		Event:   "pusher_internal:subscription_succeeded",
		Channel: p.Channel,
		Data:    "{}",
	})
	c.send <- frame
	logger.Debug("hub_subscribed", "socket_id", c.socketID, "channel", p.Channel)
}

func (c *wsConn) sendError(msg string) {
	data, _ := json.Marshal(map[string]any{"message": msg})
	frame, _ := json.Marshal(wsOutFrame{Event: "pusher:error", Data: string(data)})
	select {
	case c.send <- frame:
	default:
	}
}

// messagePayload is the broadcast shape for message.sent events.
type messagePayload struct {
	Message models.Message `json:"message"`
}
