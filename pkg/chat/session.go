package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"deskchat/pkg/logger"
	"deskchat/pkg/metrics"
	"deskchat/pkg/models"
	"deskchat/pkg/notice"
	"deskchat/pkg/realtime"
)

// API is the slice of the ticket backend a chat session talks to.
// Implemented by ticketapi.Client.
type API interface {
	ListMessages(ctx context.Context, ticketID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, ticketID int64, message, kind string) (models.Message, error)
	MarkMessagesRead(ctx context.Context, ticketID int64) error
	UploadFile(ctx context.Context, ticketID int64, filename string, r io.Reader) (string, error)
}

// OpenState persists the open/closed panel choice per ticket across
// sessions. Implemented by localstate.
type OpenState interface {
	ChatOpen(ticketID int64) bool
	SetChatOpen(ticketID int64, open bool)
}

// Session is the controller for one ticket conversation. It owns the
// message store and read tracker, subscribes the ticket's private channel
// on the shared transport, and reconciles optimistic sends with broadcast
// echoes. Closing a session releases its channel but leaves the shared
// connection alive for other consumers.
type Session struct {
	ticketID  int64
	viewer    models.User
	api       API
	transport Transport
	openState OpenState
	notifier  notice.Notifier

	store   *Store
	tracker *ReadTracker

	mu      sync.Mutex
	sub     Subscription
	binding realtime.Binding
	closed  bool
}

// NewSession wires a controller for ticketID. Nothing is fetched or
// subscribed until Start.
func NewSession(ticketID int64, viewer models.User, api API, transport Transport, openState OpenState, notifier notice.Notifier) *Session {
	if notifier == nil {
		notifier = notice.LogNotifier{}
	}
	store := NewStore()
	return &Session{
		ticketID:  ticketID,
		viewer:    viewer,
		api:       api,
		transport: transport,
		openState: openState,
		notifier:  notifier,
		store:     store,
		tracker:   NewReadTracker(ticketID, viewer.ID, api, store),
	}
}

// Start restores the persisted panel state, loads the message history and
// subscribes the ticket channel. A fetch failure is reported but the
// subscription still goes up, so later broadcasts are not lost.
func (s *Session) Start(ctx context.Context) error {
	if s.openState != nil && s.openState.ChatOpen(s.ticketID) {
		s.tracker.Open()
	}

	var fetchErr error
	if err := s.refresh(ctx); err != nil {
		fetchErr = err
		s.notifier.Error("Failed to load messages")
		logger.Warn("chat_fetch_failed", "ticket", s.ticketID, "error", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("chat: session is closed")
	}
	s.sub = s.transport.Subscribe(models.TicketChannel(s.ticketID))
	s.binding = s.sub.Bind(models.EventMessageSent, s.onIncoming)
	s.mu.Unlock()

	// the transport replays nothing across reconnects, so close the gap
	// with a fresh fetch
	s.transport.OnConnected(func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.refresh(ctx); err != nil {
			logger.Warn("chat_refetch_failed", "ticket", s.ticketID, "error", err)
		}
	})

	logger.Info("chat_session_started", "ticket", s.ticketID, "viewer", s.viewer.ID)
	return fetchErr
}

// refresh replaces the store contents with the authoritative history and
// re-applies the open-panel read rule.
func (s *Session) refresh(ctx context.Context) error {
	msgs, err := s.api.ListMessages(ctx, s.ticketID)
	if err != nil {
		return err
	}
	// the closed check and the seed stay under one lock so a Close racing
	// the fetch completion cannot resurrect state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.store.Seed(msgs)
	if s.tracker.IsOpen() && s.store.HasUnreadFrom(s.viewer.ID) {
		s.tracker.Open()
	}
	return nil
}

// onIncoming handles a message.sent broadcast. Runs on the transport's
// dispatch goroutine.
func (s *Session) onIncoming(data []byte) {
	var payload struct {
		Message models.Message `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message.ID == 0 {
		// some backends broadcast the message object bare
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil || m.ID == 0 {
			logger.Warn("chat_bad_event_payload", "ticket", s.ticketID)
			return
		}
		payload.Message = m
	}
	metrics.MessagesReceived.Inc()
	if !s.store.Append(payload.Message) {
		metrics.DuplicatesDropped.Inc()
		return
	}
	s.tracker.OnMessage(payload.Message)
}

// Send posts a text message. The message appears in the local log
// immediately under a temporary id and is upgraded in place when the
// authoritative copy returns or is broadcast back. On failure the
// optimistic entry stays and the error is surfaced; there is no rollback.
func (s *Session) Send(ctx context.Context, body string) error {
	return s.send(ctx, body, models.KindText)
}

func (s *Session) send(ctx context.Context, body, kind string) error {
	if body == "" {
		return fmt.Errorf("chat: empty message")
	}
	optimistic := models.Message{
		LocalID:   uuid.NewString(),
		Body:      body,
		Kind:      kind,
		Read:      true,
		CreatedAt: time.Now(),
		Author:    s.viewer,
	}
	s.store.Append(optimistic)

	sent, err := s.api.SendMessage(ctx, s.ticketID, body, kind)
	if err != nil {
		s.notifier.Error("Failed to send message")
		logger.Warn("chat_send_failed", "ticket", s.ticketID, "error", err)
		return err
	}
	metrics.MessagesSent.Inc()
	// upgrades the optimistic entry, or no-ops if the broadcast echo
	// already did
	s.store.Append(sent)
	return nil
}

// SendFile uploads the attachment and posts its URL as a file message.
func (s *Session) SendFile(ctx context.Context, filename string, r io.Reader) error {
	url, err := s.api.UploadFile(ctx, s.ticketID, filename, r)
	if err != nil {
		s.notifier.Error("Failed to upload file")
		logger.Warn("chat_upload_failed", "ticket", s.ticketID, "error", err)
		return err
	}
	return s.send(ctx, url, models.KindFile)
}

// Toggle flips the panel open/closed, persists the choice for this ticket
// and applies the open-panel read rule. Opening also re-fetches the
// history in the background; broadcasts missed while the panel was closed
// are never replayed.
func (s *Session) Toggle() bool {
	open := !s.tracker.IsOpen()
	if open {
		s.tracker.Open()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.refresh(ctx); err != nil {
				logger.Warn("chat_refetch_failed", "ticket", s.ticketID, "error", err)
			}
		}()
	} else {
		s.tracker.Close()
	}
	if s.openState != nil {
		s.openState.SetChatOpen(s.ticketID, open)
	}
	return open
}

// IsOpen reports the panel state.
func (s *Session) IsOpen() bool { return s.tracker.IsOpen() }

// Messages returns the current log snapshot.
func (s *Session) Messages() []models.Message { return s.store.Messages() }

// Unread returns the count of unread foreign messages.
func (s *Session) Unread() int { return s.tracker.Unread() }

// Badge renders the unread count for a compact indicator, capping at 9.
func (s *Session) Badge() string {
	n := s.Unread()
	switch {
	case n <= 0:
		return ""
	case n > 9:
		return "9+"
	default:
		return fmt.Sprintf("%d", n)
	}
}

// Close unbinds and releases the ticket channel. The shared transport
// connection stays up; other sessions and the notification feed keep it.
// Safe to call multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	binding := s.binding
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unbind(binding)
	}
	s.transport.Unsubscribe(models.TicketChannel(s.ticketID))
	logger.Info("chat_session_closed", "ticket", s.ticketID)
}
