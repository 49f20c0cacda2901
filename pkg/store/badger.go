package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/fix/pkg/sessionid"
	"github.com/dgraph-io/badger/v3"
)

// Key layout inside the shared database:
//
//	<prefix>/seqnums        "%020d : %020d  "
//	<prefix>/created        creation time
//	<prefix>/msg/<%020d>    raw message
const (
	keySeqNums = "/seqnums"
	keyCreated = "/created"
	keyMsg     = "/msg/"
)

// BadgerStore is a MessageStore kept in a BadgerDB shared by all sessions
// of a BadgerStoreFactory. Each session owns the keys under its Prefix.
type BadgerStore struct {
	mu     sync.Mutex
	db     *badger.DB
	prefix string
	cache  *MemoryStore
	closed bool
}

func newBadgerStore(db *badger.DB, id sessionid.ID) (*BadgerStore, error) {
	s := &BadgerStore{
		db:     db,
		prefix: Prefix(id),
		cache:  NewMemoryStore(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BadgerStore) key(suffix string) []byte {
	return []byte(s.prefix + suffix)
}

func (s *BadgerStore) msgKey(seq int) []byte {
	return []byte(fmt.Sprintf("%s%s%020d", s.prefix, keyMsg, seq))
}

// load reads counters and creation time, persisting a fresh creation time
// when none exists.
func (s *BadgerStore) load() error {
	var seqNums, created string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if seqNums, err = getString(txn, s.key(keySeqNums)); err != nil {
			return err
		}
		created, err = getString(txn, s.key(keyCreated))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrStoreIO, s.prefix, err)
	}

	if seqNums != "" {
		sender, target, err := parseSeqNums(seqNums)
		if err != nil {
			return fmt.Errorf("%s: %w", s.prefix, err)
		}
		s.cache.SetNextSenderMsgSeqNum(sender)
		s.cache.SetNextTargetMsgSeqNum(target)
	}

	if created != "" {
		t, err := parseCreationTime(created)
		if err != nil {
			return fmt.Errorf("%s: %w", s.prefix, err)
		}
		s.cache.setCreationTime(t)
		return nil
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(keyCreated), []byte(formatCreationTime(s.cache.CreationTime())))
	})
	if err != nil {
		return fmt.Errorf("%w: write creation time: %w", ErrStoreIO, err)
	}
	return nil
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// Get implements MessageStore.
func (s *BadgerStore) Get(start, end int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if start > end {
		return nil, nil
	}

	var out []string
	msgPrefix := s.key(keyMsg)
	last := string(s.msgKey(end))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = msgPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(s.msgKey(start)); it.ValidForPrefix(msgPrefix); it.Next() {
			item := it.Item()
			if string(item.Key()) > last {
				break
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %d..%d: %w", ErrStoreIO, start, end, err)
	}
	return out, nil
}

// Set implements MessageStore.
func (s *BadgerStore) Set(seq int, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.msgKey(seq), []byte(msg))
	})
	if err != nil {
		return fmt.Errorf("%w: set %d: %w", ErrStoreIO, seq, err)
	}
	return nil
}

func (s *BadgerStore) writeSeqNums(sender, target int) error {
	if s.closed {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(keySeqNums), []byte(formatSeqNums(sender, target)))
	})
	if err != nil {
		return fmt.Errorf("%w: write seqnums: %w", ErrStoreIO, err)
	}
	s.cache.SetNextSenderMsgSeqNum(sender)
	s.cache.SetNextTargetMsgSeqNum(target)
	return nil
}

// NextSenderMsgSeqNum implements MessageStore.
func (s *BadgerStore) NextSenderMsgSeqNum() int {
	return s.cache.NextSenderMsgSeqNum()
}

// NextTargetMsgSeqNum implements MessageStore.
func (s *BadgerStore) NextTargetMsgSeqNum() int {
	return s.cache.NextTargetMsgSeqNum()
}

// SetNextSenderMsgSeqNum implements MessageStore.
func (s *BadgerStore) SetNextSenderMsgSeqNum(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(seq, s.cache.NextTargetMsgSeqNum())
}

// SetNextTargetMsgSeqNum implements MessageStore.
func (s *BadgerStore) SetNextTargetMsgSeqNum(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(s.cache.NextSenderMsgSeqNum(), seq)
}

// IncrNextSenderMsgSeqNum implements MessageStore.
func (s *BadgerStore) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(s.cache.NextSenderMsgSeqNum()+1, s.cache.NextTargetMsgSeqNum())
}

// IncrNextTargetMsgSeqNum implements MessageStore.
func (s *BadgerStore) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(s.cache.NextSenderMsgSeqNum(), s.cache.NextTargetMsgSeqNum()+1)
}

// CreationTime implements MessageStore.
func (s *BadgerStore) CreationTime() time.Time {
	return s.cache.CreationTime()
}

// Reset implements MessageStore. Every key of the session is dropped.
func (s *BadgerStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.DropPrefix([]byte(s.prefix + "/")); err != nil {
		return fmt.Errorf("%w: drop %s: %w", ErrStoreIO, s.prefix, err)
	}
	s.cache.Reset()
	return s.load()
}

// Refresh implements MessageStore.
func (s *BadgerStore) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.Reset()
	return s.load()
}

// Close detaches the store. The shared database stays open until the
// factory is closed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// BadgerStoreFactory owns one BadgerDB and hands out a BadgerStore per
// session.
type BadgerStoreFactory struct {
	db *badger.DB
}

// NewBadgerStoreFactory opens the database at path. An empty path opens an
// in-memory database.
func NewBadgerStoreFactory(path string) (*BadgerStoreFactory, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger db: %w", ErrStoreIO, err)
	}
	return &BadgerStoreFactory{db: db}, nil
}

// Create implements Factory.
func (f *BadgerStoreFactory) Create(id sessionid.ID) (MessageStore, error) {
	return newBadgerStore(f.db, id)
}

// Close closes the database.
func (f *BadgerStoreFactory) Close() error {
	return f.db.Close()
}
