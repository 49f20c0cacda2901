package session

import (
	"fmt"
	"sync"

	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/sessionid"
)

// DefaultMaxSessions is the default capacity of a Table.
const DefaultMaxSessions = 1024

// Table is a directory of live sessions keyed by identity. Factories
// register the sessions they build; Dispose unregisters them.
type Table struct {
	sessions    map[sessionid.ID]*Session
	maxSessions int

	mu sync.RWMutex
}

// NewTable creates a new session table.
// maxSessions limits the number of registered sessions (0 uses DefaultMaxSessions).
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Table{
		sessions:    make(map[sessionid.ID]*Session),
		maxSessions: maxSessions,
	}
}

// Add registers s under its identity.
func (t *Table) Add(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) >= t.maxSessions {
		return ErrSessionTableFull
	}
	if _, exists := t.sessions[s.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, s.id)
	}
	t.sessions[s.id] = s
	return nil
}

// Remove unregisters id. No error is returned if it is not registered.
func (t *Table) Remove(id sessionid.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// removeIf unregisters id only while it still maps to s.
func (t *Table) removeIf(id sessionid.ID, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessions[id] == s {
		delete(t.sessions, id)
	}
}

// Find looks up a session. Returns nil if not found.
func (t *Table) Find(id sessionid.ID) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// Count returns the number of registered sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// IsFull returns true if no more sessions can be added.
func (t *Table) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions) >= t.maxSessions
}

// ForEach calls fn for each session until fn returns false.
// The callback should not modify the table.
func (t *Table) ForEach(fn func(*Session) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		if !fn(s) {
			return
		}
	}
}

// Clear unregisters every session.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[sessionid.ID]*Session)
}

// SendToTarget sends msg through the session named by its header
// (BeginString, SenderCompID, TargetCompID and the optional sub-IDs).
func (t *Table) SendToTarget(msg *message.Message) error {
	id := sessionid.FromHeader(&msg.Header)
	s := t.Find(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s.Send(msg)
}
