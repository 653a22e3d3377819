// Package notify maintains the viewer's notification feed: the fetched
// history plus notifications synthesized from realtime ticket events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"deskchat/pkg/logger"
	"deskchat/pkg/metrics"
	"deskchat/pkg/models"
	"deskchat/pkg/notice"
	"deskchat/pkg/realtime"
)

// API is the slice of the ticket backend the feed talks to. Implemented
// by ticketapi.Client.
type API interface {
	ListNotifications(ctx context.Context) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Subscription is the slice of a realtime channel the feed uses.
type Subscription interface {
	Bind(event string, fn func(data []byte)) realtime.Binding
	Unbind(b realtime.Binding)
}

// Transport is the slice of the shared realtime client the feed uses.
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

type boundChannel struct {
	name     string
	sub      Subscription
	bindings []realtime.Binding
}

// Feed is the notification controller for one authenticated viewer. Every
// viewer listens on their user channel; admins additionally listen on the
// admin broadcast channel. Pushed events are prepended with synthesized
// ids; the authoritative history replaces them on the next refresh.
type Feed struct {
	viewer    models.User
	api       API
	transport Transport
	notifier  notice.Notifier

	mu       sync.Mutex
	items    []models.Notification
	channels []boundChannel
	closed   bool
}

// NewFeed wires a feed controller. Nothing is fetched or subscribed until
// Start.
func NewFeed(viewer models.User, api API, transport Transport, notifier notice.Notifier) *Feed {
	if notifier == nil {
		notifier = notice.LogNotifier{}
	}
	return &Feed{viewer: viewer, api: api, transport: transport, notifier: notifier}
}

// Start loads the notification history and subscribes the realtime
// channels for the viewer's role.
func (f *Feed) Start(ctx context.Context) error {
	var fetchErr error
	if err := f.Refresh(ctx); err != nil {
		fetchErr = err
		logger.Warn("notify_fetch_failed", "viewer", f.viewer.ID, "error", err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("notify: feed is closed")
	}

	// the per-user channel carries events about the viewer's own tickets
	userCh := f.transport.Subscribe(models.UserChannel(f.viewer.ID))
	user := boundChannel{name: models.UserChannel(f.viewer.ID), sub: userCh}
	for _, evt := range []string{models.EventTicketAssigned, models.EventTicketUpdated, models.EventTicketDeleted} {
		user.bindings = append(user.bindings, userCh.Bind(evt, f.onEvent))
	}
	f.channels = append(f.channels, user)

	// admins also get the org-wide broadcast channel, with creations
	if f.viewer.Role == models.RoleAdmin {
		adminCh := f.transport.Subscribe(models.AdminChannel)
		admin := boundChannel{name: models.AdminChannel, sub: adminCh}
		for _, evt := range []string{models.EventTicketCreated, models.EventTicketAssigned, models.EventTicketUpdated, models.EventTicketDeleted} {
			admin.bindings = append(admin.bindings, adminCh.Bind(evt, f.onEvent))
		}
		f.channels = append(f.channels, admin)
	}
	f.mu.Unlock()

	f.transport.OnConnected(func() {
		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.Refresh(ctx); err != nil {
			logger.Warn("notify_refetch_failed", "viewer", f.viewer.ID, "error", err)
		}
	})

	logger.Info("notify_feed_started", "viewer", f.viewer.ID, "role", f.viewer.Role)
	return fetchErr
}

// Refresh replaces the feed with the authoritative history.
func (f *Feed) Refresh(ctx context.Context) error {
	items, err := f.api.ListNotifications(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if !f.closed {
		f.items = items
	}
	f.mu.Unlock()
	return nil
}

// onEvent synthesizes a notification from a pushed ticket event and
// prepends it. Runs on the transport's dispatch goroutine.
func (f *Feed) onEvent(data []byte) {
	var ev models.NotificationEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		logger.Warn("notify_bad_event_payload", "viewer", f.viewer.ID)
		return
	}
	n := models.Notification{
		ID:        "realtime-" + uuid.NewString(),
		Type:      ev.Type,
		Title:     ev.Title,
		Message:   ev.Message,
		ActionURL: ev.ActionURL,
		Data:      ev.Data,
		Sender:    ev.Sender,
		CreatedAt: time.Now(),
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.items = append([]models.Notification{n}, f.items...)
	f.mu.Unlock()

	metrics.NotificationsReceived.Inc()
	f.notifier.Notify(notice.Notice{Title: n.Title, Body: n.Message, ActionURL: n.ActionURL})
}

// MarkAsRead flips one notification read locally and reports upstream in
// the background; a failure is logged, not retried. Synthesized realtime
// ids have no server record, so only the local flag changes for them.
func (f *Feed) MarkAsRead(id string) {
	f.mu.Lock()
	found := false
	synthetic := false
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			found = true
			synthetic = len(id) > 9 && id[:9] == "realtime-"
			break
		}
	}
	f.mu.Unlock()
	if !found || synthetic {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.api.MarkNotificationRead(ctx, id); err != nil {
			logger.Warn("notify_mark_read_failed", "id", id, "error", err)
		}
	}()
}

// MarkAllRead flips everything read locally and reports upstream in the
// background.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].Read = true
	}
	f.mu.Unlock()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.api.MarkAllNotificationsRead(ctx); err != nil {
			logger.Warn("notify_mark_all_read_failed", "error", err)
		}
	}()
}

// ClearAll empties the local feed. Nothing is sent upstream; the server
// history is untouched and returns on the next refresh.
func (f *Feed) ClearAll() {
	f.mu.Lock()
	f.items = nil
	f.mu.Unlock()
}

// Items returns a snapshot of the feed, newest first.
func (f *Feed) Items() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.items...)
}

// Unread returns the count of unread notifications.
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Badge renders the unread count for a compact indicator, capping at 9.
func (f *Feed) Badge() string {
	n := f.Unread()
	switch {
	case n <= 0:
		return ""
	case n > 9:
		return "9+"
	default:
		return fmt.Sprintf("%d", n)
	}
}

// Close unbinds and releases the feed's channels. The shared transport
// connection stays up. Safe to call multiple times.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	channels := f.channels
	f.channels = nil
	f.mu.Unlock()

	for _, bc := range channels {
		for _, b := range bc.bindings {
			bc.sub.Unbind(b)
		}
		f.transport.Unsubscribe(bc.name)
	}
	logger.Info("notify_feed_closed", "viewer", f.viewer.ID)
}
