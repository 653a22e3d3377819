package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol event names. The transport speaks the subset of the Pusher
// channels protocol the backend broadcasts on.
const (
	evtConnEstablished = "pusher:connection_established"
	evtSubscribe       = "pusher:subscribe"
	evtUnsubscribe     = "pusher:unsubscribe"
	evtPing            = "pusher:ping"
	evtPong            = "pusher:pong"
	evtError           = "pusher:error"
	evtSubSucceeded    = "pusher_internal:subscription_succeeded"
)

// privatePrefix marks channels that require the broadcasting-auth
// handshake before the subscribe frame is accepted.
const privatePrefix = "private-"

// frame is an inbound wire frame. Data arrives either as an object or as
// a JSON-encoded string containing the object (the protocol double-encodes
// server-sent payloads).
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// outFrame is a client-sent frame; data is sent as a plain object.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type subscribePayload struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

type unsubscribePayload struct {
	Channel string `json:"channel"`
}

type connEstablishedPayload struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

// decodeData unwraps the double-encoded data field when present.
func decodeData(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return []byte(raw)
}

// endpointURL builds the websocket URL from the transport config: either
// the cluster-derived hosted endpoint or an explicit host/port override.
func endpointURL(cfg Config) string {
	scheme := "ws"
	port := cfg.Port
	if cfg.ForceTLS {
		scheme = "wss"
		if port == 0 {
			port = 443
		}
	} else if port == 0 {
		port = 80
	}
	host := cfg.Host
	if host == "" {
		host = fmt.Sprintf("ws-%s.pusher.com", cfg.Cluster)
	}
	// keep explicit host:port except for the default TLS port
	hostPort := fmt.Sprintf("%s:%d", host, port)
	if scheme == "wss" && port == 443 {
		hostPort = host
	}
	if strings.Contains(host, ":") {
		// host override already carries a port
		hostPort = host
	}
	return fmt.Sprintf("%s://%s/app/%s?protocol=7&client=deskchat&version=1.0", scheme, hostPort, cfg.AppKey)
}
