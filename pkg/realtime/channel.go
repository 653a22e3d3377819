package realtime

import (
	"sync"
	"sync/atomic"
)

// Binding identifies one bound handler so it can be removed later.
type Binding struct {
	event string
	id    uint64
}

type handler struct {
	id uint64
	fn func(data []byte)
}

// Channel is a named event scope on the shared connection. Multiple binds
// on the same event are additive; all handlers run on the client's single
// dispatch goroutine.
type Channel struct {
	name   string
	client *Client

	mu         sync.Mutex
	bindings   map[string][]handler
	subscribed bool
}

func newChannel(c *Client, name string) *Channel {
	return &Channel{name: name, client: c, bindings: make(map[string][]handler)}
}

// Name returns the channel name.
func (ch *Channel) Name() string { return ch.name }

// Bind registers a handler for the named event and returns a Binding
// usable with Unbind.
func (ch *Channel) Bind(event string, fn func(data []byte)) Binding {
	id := atomic.AddUint64(&ch.client.bindSeq, 1)
	ch.mu.Lock()
	ch.bindings[event] = append(ch.bindings[event], handler{id: id, fn: fn})
	ch.mu.Unlock()
	return Binding{event: event, id: id}
}

// Unbind removes a previously bound handler. Safe to call with a Binding
// that was already removed.
func (ch *Channel) Unbind(b Binding) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	hs := ch.bindings[b.event]
	for i, h := range hs {
		if h.id == b.id {
			ch.bindings[b.event] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(ch.bindings[b.event]) == 0 {
		delete(ch.bindings, b.event)
	}
}

// UnbindAll drops every handler on the channel.
func (ch *Channel) UnbindAll() {
	ch.mu.Lock()
	ch.bindings = make(map[string][]handler)
	ch.mu.Unlock()
}

// dispatch invokes the handlers bound to event. Called from the client's
// dispatch goroutine only.
func (ch *Channel) dispatch(event string, data []byte) {
	ch.mu.Lock()
	hs := append([]handler(nil), ch.bindings[event]...)
	ch.mu.Unlock()
	for _, h := range hs {
		h.fn(data)
	}
}

// markUnsubscribed resets the subscribe state (used on reconnect so the
// channel is re-announced on the new socket).
func (ch *Channel) markUnsubscribed() {
	ch.mu.Lock()
	ch.subscribed = false
	ch.mu.Unlock()
}

// claimSubscribe flips the subscribed flag and reports whether this
// caller should send the subscribe frame.
func (ch *Channel) claimSubscribe() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.subscribed {
		return false
	}
	ch.subscribed = true
	return true
}
