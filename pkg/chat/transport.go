package chat

import "deskchat/pkg/realtime"

// Subscription is the slice of a realtime channel the session uses.
type Subscription interface {
	Bind(event string, fn func(data []byte)) realtime.Binding
	Unbind(b realtime.Binding)
}

// Transport is the slice of the shared realtime client the session uses.
// The session subscribes and unsubscribes channels but never owns the
// connection itself.
type Transport interface {
	Subscribe(name string) Subscription
	Unsubscribe(name string)
	OnConnected(fn func())
}

type clientTransport struct {
	c *realtime.Client
}

// WrapTransport adapts the concrete realtime client to the Transport
// interface.
func WrapTransport(c *realtime.Client) Transport {
	return clientTransport{c: c}
}

func (t clientTransport) Subscribe(name string) Subscription { return t.c.Subscribe(name) }
func (t clientTransport) Unsubscribe(name string)            { t.c.Unsubscribe(name) }
func (t clientTransport) OnConnected(fn func())              { t.c.OnConnected(fn) }
