package config

import (
	"fmt"
	"sync"

	"github.com/backkem/fix/pkg/sessionid"
)

// SessionSettings holds the defaults dictionary and one dictionary per
// session, in insertion order. It is safe for concurrent use.
type SessionSettings struct {
	mu       sync.RWMutex
	defaults *Dictionary
	sessions map[sessionid.ID]*Dictionary
	order    []sessionid.ID
}

// NewSessionSettings creates empty settings.
func NewSessionSettings() *SessionSettings {
	return &SessionSettings{
		defaults: NewDictionary(),
		sessions: make(map[sessionid.ID]*Dictionary),
	}
}

// Defaults returns a copy of the defaults dictionary.
func (s *SessionSettings) Defaults() *Dictionary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults.Clone()
}

// SetDefaults replaces the defaults dictionary.
func (s *SessionSettings) SetDefaults(d *Dictionary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = d.Clone()
}

// Get returns the dictionary of id.
func (s *SessionSettings) Get(id sessionid.ID) (*Dictionary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return d, nil
}

// Has reports whether id is registered.
func (s *SessionSettings) Has(id sessionid.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Set registers the dictionary of id. The identity keys of id are written
// into the stored copy and missing keys are filled from the defaults.
// Registering an existing id is an error.
func (s *SessionSettings) Set(id sessionid.ID, d *Dictionary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	c := d.Clone()
	c.Merge(s.defaults)
	applyIdentity(id, c)
	s.sessions[id] = c
	s.order = append(s.order, id)
	return nil
}

// Remove unregisters id. Removing an unknown id is a no-op.
func (s *SessionSettings) Remove(id sessionid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// SessionIDs returns the registered ids in insertion order.
func (s *SessionSettings) SessionIDs() []sessionid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sessionid.ID, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of registered sessions.
func (s *SessionSettings) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IDFromDictionary derives a session identity from the identity keys of d.
// BeginString, SenderCompID and TargetCompID are required.
func IDFromDictionary(d *Dictionary) (sessionid.ID, error) {
	var id sessionid.ID
	for _, req := range []struct {
		key string
		dst *string
	}{
		{BeginString, &id.BeginString},
		{SenderCompID, &id.SenderCompID},
		{TargetCompID, &id.TargetCompID},
	} {
		v, err := d.String(req.key)
		if err != nil {
			return sessionid.ID{}, err
		}
		if v == "" {
			return sessionid.ID{}, fmt.Errorf("%w: %s is empty", ErrInvalidSetting, req.key)
		}
		*req.dst = v
	}
	id.SenderSubID = d.StringDefault(SenderSubID, sessionid.NotSet)
	id.SenderLocationID = d.StringDefault(SenderLocationID, sessionid.NotSet)
	id.TargetSubID = d.StringDefault(TargetSubID, sessionid.NotSet)
	id.TargetLocationID = d.StringDefault(TargetLocationID, sessionid.NotSet)
	id.Qualifier = d.StringDefault(SessionQualifier, sessionid.NotSet)
	return id, nil
}

func applyIdentity(id sessionid.ID, d *Dictionary) {
	d.Set(BeginString, id.BeginString)
	d.Set(SenderCompID, id.SenderCompID)
	d.Set(TargetCompID, id.TargetCompID)
	for key, v := range map[string]string{
		SenderSubID:      id.SenderSubID,
		SenderLocationID: id.SenderLocationID,
		TargetSubID:      id.TargetSubID,
		TargetLocationID: id.TargetLocationID,
		SessionQualifier: id.Qualifier,
	} {
		if sessionid.IsSet(v) {
			d.Set(key, v)
		}
	}
}
