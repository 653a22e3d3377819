// Package chat holds the client-side state for one ticket conversation:
// the ordered message log, the read-state tracker, and the session
// controller that ties them to the REST API and the realtime transport.
package chat

import (
	"sync"

	"deskchat/pkg/models"
)

// Store is the ordered message log for one conversation. Insertion is
// idempotent on the authoritative id; the store never reorders or deletes
// entries itself. All methods are safe for concurrent use: the transport
// dispatch goroutine and fetch completions both mutate it.
type Store struct {
	mu      sync.Mutex
	msgs    []models.Message
	version uint64
}

func NewStore() *Store {
	return &Store{}
}

// Seed replaces the contents with a fetched snapshot. Used on initial
// load and on reconnect-triggered refresh.
func (s *Store) Seed(msgs []models.Message) {
	s.mu.Lock()
	s.msgs = append([]models.Message(nil), msgs...)
	s.version++
	s.mu.Unlock()
}

// Append inserts m at the end unless an entry with the same authoritative
// id already exists. When m carries an authoritative id and a pending
// optimistic entry matches it by author and body, that entry is upgraded
// in place instead of appending a duplicate. Returns false when the
// message was dropped as a duplicate.
func (s *Store) Append(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// duplicate-event tolerance: same id twice must not corrupt the log
	if m.ID != 0 {
		for _, existing := range s.msgs {
			if existing.ID == m.ID {
				s.version++
				return false
			}
		}
		// best-effort optimistic reconciliation by content match; a small
		// window where both copies coexist is accepted
		for i, existing := range s.msgs {
			if existing.Pending() && existing.Author.ID == m.Author.ID &&
				existing.Body == m.Body && existing.Kind == m.Kind {
				m.LocalID = ""
				s.msgs[i] = m
				s.version++
				return true
			}
		}
	}
	s.msgs = append(s.msgs, m)
	s.version++
	return true
}

// MarkAllRead sets the read flag on every entry.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	for i := range s.msgs {
		s.msgs[i].Read = true
	}
	s.version++
	s.mu.Unlock()
}

// Messages returns a copy of the log in order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs...)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Version increments on every mutation, so reactive consumers can observe
// changes that do not alter length (MarkAllRead, reconciliation).
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// HasUnreadFrom reports whether any entry authored by someone other than
// viewerID is unread.
func (s *Store) HasUnreadFrom(viewerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if !m.Read && m.Author.ID != viewerID {
			return true
		}
	}
	return false
}

// UnreadFrom counts unread entries authored by someone other than
// viewerID.
func (s *Store) UnreadFrom(viewerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if !m.Read && m.Author.ID != viewerID {
			n++
		}
	}
	return n
}
