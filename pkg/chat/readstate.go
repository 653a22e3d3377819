package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"deskchat/pkg/logger"
	"deskchat/pkg/metrics"
	"deskchat/pkg/models"
)

// ReadAPI is the slice of the ticket API the tracker needs.
type ReadAPI interface {
	MarkMessagesRead(ctx context.Context, ticketID int64) error
}

// ReadTracker decides when the conversation is reported read upstream.
// The rules follow the panel lifecycle: opening the panel marks read only
// when unread foreign messages exist, a message arriving while the panel
// is open is marked read immediately, and a message arriving while closed
// only bumps the local unread count.
type ReadTracker struct {
	ticketID int64
	viewerID int64
	api      ReadAPI
	store    *Store

	mu   sync.Mutex
	open bool
}

func NewReadTracker(ticketID, viewerID int64, api ReadAPI, store *Store) *ReadTracker {
	return &ReadTracker{ticketID: ticketID, viewerID: viewerID, api: api, store: store}
}

// Open records the panel as open and reconciles read state: when unread
// foreign messages exist they are marked read locally and upstream.
// Opening an already-read conversation sends nothing.
func (t *ReadTracker) Open() {
	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	if t.store.HasUnreadFrom(t.viewerID) {
		t.markRead()
	}
	t.publishUnread()
}

// Close records the panel as closed. Local state only.
func (t *ReadTracker) Close() {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
}

// IsOpen reports the panel state.
func (t *ReadTracker) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// OnMessage applies the read-state rules to a newly received message.
// Messages authored by the viewer never change read state.
func (t *ReadTracker) OnMessage(m models.Message) {
	if m.Author.ID == t.viewerID {
		return
	}
	if t.IsOpen() {
		t.markRead()
	}
	t.publishUnread()
}

// Unread returns the count of unread foreign messages.
func (t *ReadTracker) Unread() int {
	return t.store.UnreadFrom(t.viewerID)
}

// markRead flips local read state immediately and reports upstream in the
// background. A failed report is logged and not retried; the next open or
// received message triggers a fresh attempt.
func (t *ReadTracker) markRead() {
	t.store.MarkAllRead()
	metrics.MarkReadCalls.Inc()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.api.MarkMessagesRead(ctx, t.ticketID); err != nil {
			metrics.MarkReadFailures.Inc()
			logger.Warn("mark_read_failed", "ticket", t.ticketID, "error", err)
		}
	}()
}

func (t *ReadTracker) publishUnread() {
	metrics.UnreadMessages.WithLabelValues(strconv.FormatInt(t.ticketID, 10)).
		Set(float64(t.store.UnreadFrom(t.viewerID)))
}
