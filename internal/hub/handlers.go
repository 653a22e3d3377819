package hub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"deskchat/pkg/logger"
	"deskchat/pkg/models"
	"deskchat/pkg/ticketapi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func ticketIDFrom(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["ticket"], 10, 64)
}

// handleBroadcastAuth signs private channel subscriptions. The signature
// binds the socket id to the channel so it cannot be replayed for another
// connection.
func (s *Server) handleBroadcastAuth(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	var req struct {
		SocketID string `json:"socket_id"`
		Channel  string `json:"channel_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SocketID == "" || req.Channel == "" {
		writeError(w, http.StatusUnprocessableEntity, "socket_id and channel_name are required")
		return
	}
	const ticketPrefix = "private-ticket."
	if !strings.HasPrefix(req.Channel, ticketPrefix) {
		writeError(w, http.StatusForbidden, "unknown channel")
		return
	}
	ticketID, err := strconv.ParseInt(req.Channel[len(ticketPrefix):], 10, 64)
	if err != nil || !canJoin(u, ticketID) {
		logger.Warn("hub_channel_denied", "user", u.ID, "channel", req.Channel)
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth": s.channelSignature(req.SocketID, req.Channel)})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	ticketID, err := ticketIDFrom(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid ticket id")
		return
	}
	if !canJoin(u, ticketID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	msgs, err := ListMessages(ticketID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	logger.Debug("hub_messages_list", "ticket", ticketID, "count", len(msgs))
	writeJSON(w, http.StatusOK, msgs)
}

// handleCreateMessage persists the message and broadcasts it on the
// ticket's private channel. The broadcast goes to every subscriber,
// including the sender's own socket; clients de-duplicate by id.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	ticketID, err := ticketIDFrom(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid ticket id")
		return
	}
	if !canJoin(u, ticketID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}
	if req.Type == "" {
		req.Type = models.KindText
	}
	m := models.Message{
		Body:      req.Message,
		Kind:      req.Type,
		CreatedAt: time.Now().UTC(),
		Author:    u,
	}
	if err := SaveMessage(ticketID, &m); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.registry.Broadcast(models.TicketChannel(ticketID), models.EventMessageSent, messagePayload{Message: m})
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleMarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	ticketID, err := ticketIDFrom(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid ticket id")
		return
	}
	n, err := MarkMessagesRead(ticketID, u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Debug("hub_messages_marked_read", "ticket", ticketID, "user", u.ID, "updated", n)
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// handleUpload spools the file under the upload directory and returns the
// URL a follow-up file message should carry.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ticketID, err := ticketIDFrom(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid ticket id")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, ticketapi.MaxUploadSize+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "file is required (max 10 MiB)")
		return
	}
	defer file.Close()

	name := fmt.Sprintf("%d-%s-%s", ticketID, uuid.NewString(), filepath.Base(header.Filename))
	dst, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot spool upload")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large (max 10 MiB)")
		return
	}
	logger.Info("hub_file_uploaded", "ticket", ticketID, "name", name)
	writeJSON(w, http.StatusOK, map[string]string{"url": "/uploads/" + name})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	items, err := ListNotifications(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	if err := MarkNotificationRead(u.ID, mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	if err := MarkAllNotificationsRead(u.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateTicket registers a minimal ticket record and emits the
// created/assigned notifications so feed clients have something to
// receive in dev.
func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	u, _ := viewerFrom(r)
	var req struct {
		Subject    string `json:"subject"`
		AssigneeID int64  `json:"assignee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		writeError(w, http.StatusUnprocessableEntity, "subject is required")
		return
	}
	t := Ticket{Subject: req.Subject, CreatorID: u.ID, AssigneeID: req.AssigneeID}
	if err := SaveTicket(&t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.PublishNotification(models.NotificationEvent{
		Type:      models.NotifTicketCreated,
		Title:     "New ticket",
		Message:   fmt.Sprintf("%s opened %q", u.Name, t.Subject),
		ActionURL: fmt.Sprintf("/tickets/%d", t.ID),
		Sender:    &u,
	}, models.EventTicketCreated, 0)
	if t.AssigneeID != 0 {
		s.PublishNotification(models.NotificationEvent{
			Type:      models.NotifTicketAssigned,
			Title:     "Ticket assigned",
			Message:   fmt.Sprintf("You were assigned %q", t.Subject),
			ActionURL: fmt.Sprintf("/tickets/%d", t.ID),
			Sender:    &u,
		}, models.EventTicketAssigned, t.AssigneeID)
	}
	writeJSON(w, http.StatusCreated, t)
}

// PublishNotification persists and broadcasts a ticket notification.
// userID 0 targets the admin broadcast channel only; a concrete id also
// lands on that user's channel and in their stored history.
func (s *Server) PublishNotification(ev models.NotificationEvent, event string, userID int64) {
	n := models.Notification{
		ID:        uuid.NewString(),
		Type:      ev.Type,
		Title:     ev.Title,
		Message:   ev.Message,
		ActionURL: ev.ActionURL,
		Data:      ev.Data,
		Sender:    ev.Sender,
		CreatedAt: time.Now().UTC(),
	}
	if userID != 0 {
		if err := SaveNotification(userID, n); err != nil {
			logger.Warn("hub_save_notification_failed", "user", userID, "error", err)
		}
		s.registry.Broadcast(models.UserChannel(userID), event, ev)
	}
	s.registry.Broadcast(models.AdminChannel, event, ev)
}
