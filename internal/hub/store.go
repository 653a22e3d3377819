package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"deskchat/pkg/logger"
	"deskchat/pkg/models"
)

var db *pebble.DB

// seq reduces key collisions when multiple writes share a nanosecond
// timestamp.
var seq uint64

// OpenStore opens (or creates) the hub database at path and keeps a
// global handle for simple usage in this package.
func OpenStore(path string) error {
	var err error
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("hub_store_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("hub_store_opened", "path", path)
	return nil
}

// CloseStore closes the hub database if present.
func CloseStore() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("hub_store_closed")
	return nil
}

// StoreReady reports whether the hub database is opened.
func StoreReady() bool {
	return db != nil
}

func nextID() int64 {
	return time.Now().UTC().UnixNano() + int64(atomic.AddUint64(&seq, 1))
}

// SaveMessage persists a chat message under a sortable timestamp key so
// listing returns insertion order. The assigned id is written back into
// the message.
func SaveMessage(ticketID int64, msg *models.Message) error {
	if db == nil {
		return fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	if msg.ID == 0 {
		msg.ID = nextID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	ts := msg.CreatedAt.UnixNano()
	s := atomic.AddUint64(&seq, 1)
	// Key format: ticket:<id>:msg:<unix_nano_padded>-<seq>
	key := fmt.Sprintf("ticket:%d:msg:%020d-%06d", ticketID, ts, s)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("hub_save_message_failed", "ticket", ticketID, "key", key, "error", err)
		return err
	}
	logger.Debug("hub_message_saved", "ticket", ticketID, "id", msg.ID)
	return nil
}

// ListMessages returns all messages for a ticket in insertion order.
func ListMessages(ticketID int64) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	prefix := []byte(fmt.Sprintf("ticket:%d:msg:", ticketID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// MarkMessagesRead flips the read flag on every message in the ticket not
// authored by readerID. Returns the number of messages updated.
func MarkMessagesRead(ticketID, readerID int64) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	prefix := []byte(fmt.Sprintf("ticket:%d:msg:", ticketID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	updated := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Read || m.Author.ID == readerID {
			continue
		}
		m.Read = true
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		key := append([]byte(nil), iter.Key()...)
		if err := db.Set(key, data, pebble.Sync); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, iter.Error()
}

// Ticket is the minimal ticket record the hub keeps for channel
// authorization and notification routing.
type Ticket struct {
	ID         int64  `json:"id"`
	Subject    string `json:"subject"`
	CreatorID  int64  `json:"creator_id"`
	AssigneeID int64  `json:"assignee_id,omitempty"`
}

func ticketKey(id int64) []byte {
	return []byte(fmt.Sprintf("ticket:%d:meta", id))
}

// SaveTicket persists a ticket record, assigning an id when missing.
func SaveTicket(t *Ticket) error {
	if db == nil {
		return fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	if t.ID == 0 {
		t.ID = nextID()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return db.Set(ticketKey(t.ID), data, pebble.Sync)
}

// GetTicket loads a ticket record. Returns false when unknown.
func GetTicket(id int64) (Ticket, bool, error) {
	if db == nil {
		return Ticket{}, false, fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	val, closer, err := db.Get(ticketKey(id))
	if err == pebble.ErrNotFound {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, err
	}
	defer closer.Close()
	var t Ticket
	if err := json.Unmarshal(val, &t); err != nil {
		return Ticket{}, false, err
	}
	return t, true, nil
}

// SaveNotification persists a notification for one recipient.
func SaveNotification(userID int64, n models.Notification) error {
	if db == nil {
		return fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	ts := n.CreatedAt.UnixNano()
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("notif:%d:%020d-%06d", userID, ts, s)
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		return err
	}
	// index by id for single mark-read
	idx := fmt.Sprintf("notifidx:%d:%s", userID, n.ID)
	return db.Set([]byte(idx), []byte(key), pebble.Sync)
}

// ListNotifications returns the recipient's notifications newest first.
func ListNotifications(userID int64) ([]models.Notification, error) {
	if db == nil {
		return nil, fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	prefix := []byte(fmt.Sprintf("notif:%d:", userID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Notification
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			continue
		}
		// prepend: storage is oldest first, the API serves newest first
		out = append([]models.Notification{n}, out...)
	}
	return out, iter.Error()
}

// MarkNotificationRead flips one notification read. Unknown ids are a
// no-op, matching the backend's idempotent endpoint.
func MarkNotificationRead(userID int64, id string) error {
	if db == nil {
		return fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	idx := fmt.Sprintf("notifidx:%d:%s", userID, id)
	keyVal, closer, err := db.Get([]byte(idx))
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	key := append([]byte(nil), keyVal...)
	closer.Close()

	val, closer, err := db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil
		}
		return err
	}
	var n models.Notification
	uerr := json.Unmarshal(val, &n)
	closer.Close()
	if uerr != nil {
		return uerr
	}
	n.Read = true
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return db.Set(key, data, pebble.Sync)
}

// MarkAllNotificationsRead flips every notification for the recipient.
func MarkAllNotificationsRead(userID int64) error {
	if db == nil {
		return fmt.Errorf("hub store not opened; call hub.OpenStore first")
	}
	prefix := []byte(fmt.Sprintf("notif:%d:", userID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			continue
		}
		if n.Read {
			continue
		}
		n.Read = true
		data, err := json.Marshal(n)
		if err != nil {
			continue
		}
		key := append([]byte(nil), iter.Key()...)
		if err := db.Set(key, data, pebble.Sync); err != nil {
			return err
		}
	}
	return iter.Error()
}
