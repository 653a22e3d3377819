// Package localstate persists small per-viewer UI state (open chat
// panels, cached session info) in a Pebble database under the state
// directory. It stands in for the browser's localStorage: best effort,
// never on a hot path, survives restarts.
package localstate

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"deskchat/pkg/logger"
)

var db *pebble.DB

// Open opens (or creates) the Pebble database at path and keeps a global
// handle for simple usage in this package.
func Open(path string) error {
	var err error
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("localstate_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("localstate_opened", "path", path)
	return nil
}

// Close closes the opened database if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("localstate_closed")
	return nil
}

// Ready reports whether the store is opened.
func Ready() bool {
	return db != nil
}

func chatOpenKey(ticketID int64) []byte {
	return []byte(fmt.Sprintf("chat:%d:open", ticketID))
}

// SetChatOpen persists the open/closed panel choice for a ticket. Write
// failures are logged and swallowed; the panel state is not worth failing
// an operation over.
func SetChatOpen(ticketID int64, open bool) {
	if db == nil {
		return
	}
	val := []byte("0")
	if open {
		val = []byte("1")
	}
	if err := db.Set(chatOpenKey(ticketID), val, pebble.Sync); err != nil {
		logger.Warn("localstate_set_failed", "ticket", ticketID, "error", err)
	}
}

// ChatOpen returns the persisted panel choice for a ticket, defaulting to
// closed.
func ChatOpen(ticketID int64) bool {
	if db == nil {
		return false
	}
	val, closer, err := db.Get(chatOpenKey(ticketID))
	if err != nil {
		return false
	}
	open := len(val) == 1 && val[0] == '1'
	_ = closer.Close()
	return open
}

// ClearChatState drops all persisted panel choices. Used on logout.
func ClearChatState() error {
	if db == nil {
		return nil
	}
	return db.DeleteRange([]byte("chat:"), []byte("chat:\xff"), pebble.Sync)
}

// SetSession caches the authenticated viewer's profile so the daemon can
// render identity before the first API round trip.
func SetSession(v any) error {
	if db == nil {
		return fmt.Errorf("localstate not opened; call localstate.Open first")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.Set([]byte("session:viewer"), data, pebble.Sync)
}

// Session loads the cached viewer profile into out. Returns false when no
// session is cached.
func Session(out any) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("localstate not opened; call localstate.Open first")
	}
	val, closer, err := db.Get([]byte("session:viewer"))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return false, err
	}
	return true, nil
}

// ClearSession drops the cached viewer profile. Used on logout together
// with ClearChatState.
func ClearSession() error {
	if db == nil {
		return nil
	}
	return db.Delete([]byte("session:viewer"), pebble.Sync)
}

// Handle adapts the package-level store to the per-ticket OpenState
// interface consumed by chat sessions.
type Handle struct{}

func (Handle) ChatOpen(ticketID int64) bool          { return ChatOpen(ticketID) }
func (Handle) SetChatOpen(ticketID int64, open bool) { SetChatOpen(ticketID, open) }
