package store

import (
	"sync"
	"time"

	"github.com/backkem/fix/pkg/sessionid"
)

// MemoryStore is an in-memory MessageStore. Data is lost when the process
// exits.
//
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	messages     map[int]string
	nextSender   int
	nextTarget   int
	creationTime time.Time
}

// NewMemoryStore creates an empty store with both counters at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:     make(map[int]string),
		nextSender:   1,
		nextTarget:   1,
		creationTime: now(),
	}
}

// Get implements MessageStore.
func (s *MemoryStore) Get(start, end int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for seq := start; seq <= end; seq++ {
		if msg, ok := s.messages[seq]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Set implements MessageStore.
func (s *MemoryStore) Set(seq int, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[seq] = msg
	return nil
}

// NextSenderMsgSeqNum implements MessageStore.
func (s *MemoryStore) NextSenderMsgSeqNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSender
}

// NextTargetMsgSeqNum implements MessageStore.
func (s *MemoryStore) NextTargetMsgSeqNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextTarget
}

// SetNextSenderMsgSeqNum implements MessageStore.
func (s *MemoryStore) SetNextSenderMsgSeqNum(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSender = seq
	return nil
}

// SetNextTargetMsgSeqNum implements MessageStore.
func (s *MemoryStore) SetNextTargetMsgSeqNum(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTarget = seq
	return nil
}

// IncrNextSenderMsgSeqNum implements MessageStore.
func (s *MemoryStore) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSender++
	return nil
}

// IncrNextTargetMsgSeqNum implements MessageStore.
func (s *MemoryStore) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTarget++
	return nil
}

// CreationTime implements MessageStore.
func (s *MemoryStore) CreationTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creationTime
}

func (s *MemoryStore) setCreationTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creationTime = t
}

// Reset implements MessageStore.
func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[int]string)
	s.nextSender = 1
	s.nextTarget = 1
	s.creationTime = now()
	return nil
}

// Refresh is a no-op; memory has nothing to reload from.
func (s *MemoryStore) Refresh() error {
	return nil
}

// Close implements MessageStore.
func (s *MemoryStore) Close() error {
	return nil
}

// MemoryStoreFactory creates a fresh MemoryStore per session.
type MemoryStoreFactory struct{}

// NewMemoryStoreFactory creates a factory.
func NewMemoryStoreFactory() *MemoryStoreFactory {
	return &MemoryStoreFactory{}
}

// Create implements Factory.
func (f *MemoryStoreFactory) Create(sessionid.ID) (MessageStore, error) {
	return NewMemoryStore(), nil
}
