package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/pion/logging"
)

// File suffixes of a FileStore.
const (
	seqNumsSuffix = ".seqnums"
	bodySuffix    = ".body"
	headerSuffix  = ".header"
	sessionSuffix = ".session"
)

// msgDef locates one message inside the body file.
type msgDef struct {
	offset int64
	size   int
}

// FileStore is a MessageStore backed by four files per session:
//
//	<prefix>.seqnums  "%020d : %020d  " sender and target counters, rewritten in place
//	<prefix>.body     raw messages, appended
//	<prefix>.header   one "seq,offset,size" line per stored message
//	<prefix>.session  creation time, written once
//
// Counters live in memory and are written through on every change.
type FileStore struct {
	mu sync.Mutex

	cache   *MemoryStore
	offsets map[int]msgDef

	seqNumsPath string
	bodyPath    string
	headerPath  string
	sessionPath string

	seqNumsFile *os.File
	bodyFile    *os.File
	headerFile  *os.File

	closed bool
	log    logging.LeveledLogger
}

// NewFileStore opens (creating if needed) the files of id under dir and
// loads any persisted state.
func NewFileStore(dir string, id sessionid.ID, loggerFactory logging.LoggerFactory) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStoreIO, dir, err)
	}
	prefix := filepath.Join(dir, Prefix(id))
	s := &FileStore{
		cache:       NewMemoryStore(),
		offsets:     make(map[int]msgDef),
		seqNumsPath: prefix + seqNumsSuffix,
		bodyPath:    prefix + bodySuffix,
		headerPath:  prefix + headerSuffix,
		sessionPath: prefix + sessionSuffix,
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("store")
	}
	if err := s.open(); err != nil {
		s.closeFiles()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) open() error {
	s.closeFiles()
	s.offsets = make(map[int]msgDef)

	if err := s.loadSeqNums(); err != nil {
		return err
	}
	if err := s.loadOffsets(); err != nil {
		return err
	}
	if err := s.loadCreationTime(); err != nil {
		return err
	}

	var err error
	if s.seqNumsFile, err = os.OpenFile(s.seqNumsPath, os.O_RDWR|os.O_CREATE, 0o644); err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStoreIO, s.seqNumsPath, err)
	}
	if s.bodyFile, err = os.OpenFile(s.bodyPath, os.O_RDWR|os.O_CREATE, 0o644); err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStoreIO, s.bodyPath, err)
	}
	if s.headerFile, err = os.OpenFile(s.headerPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644); err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStoreIO, s.headerPath, err)
	}
	s.closed = false

	if s.log != nil {
		s.log.Debugf("opened %s: sender=%d target=%d messages=%d",
			s.seqNumsPath, s.cache.NextSenderMsgSeqNum(), s.cache.NextTargetMsgSeqNum(), len(s.offsets))
	}
	return nil
}

func (s *FileStore) loadSeqNums() error {
	data, err := os.ReadFile(s.seqNumsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStoreIO, s.seqNumsPath, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	sender, target, err := parseSeqNums(text)
	if err != nil {
		return fmt.Errorf("%s: %w", s.seqNumsPath, err)
	}
	s.cache.SetNextSenderMsgSeqNum(sender)
	s.cache.SetNextTargetMsgSeqNum(target)
	return nil
}

func parseSeqNums(text string) (sender, target int, err error) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: seqnums %q", ErrCorrupt, text)
	}
	if sender, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, fmt.Errorf("%w: sender seqnum: %w", ErrCorrupt, err)
	}
	if target, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return 0, 0, fmt.Errorf("%w: target seqnum: %w", ErrCorrupt, err)
	}
	return sender, target, nil
}

func formatSeqNums(sender, target int) string {
	return fmt.Sprintf("%020d : %020d  ", sender, target)
}

func (s *FileStore) loadOffsets() error {
	f, err := os.Open(s.headerPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStoreIO, s.headerPath, err)
	}
	defer f.Close()

	// Entries reaching past the body file were never completely written.
	var bodySize int64
	if fi, err := os.Stat(s.bodyPath); err == nil {
		bodySize = fi.Size()
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Split(strings.TrimSpace(sc.Text()), ",")
		if len(parts) != 3 {
			continue
		}
		seq, err1 := strconv.Atoi(parts[0])
		offset, err2 := strconv.ParseInt(parts[1], 10, 64)
		size, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if offset < 0 || size < 0 || offset+int64(size) > bodySize {
			continue
		}
		s.offsets[seq] = msgDef{offset: offset, size: size}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStoreIO, s.headerPath, err)
	}
	return nil
}

func (s *FileStore) loadCreationTime() error {
	data, err := os.ReadFile(s.sessionPath)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		t, err := parseCreationTime(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", s.sessionPath, err)
		}
		s.cache.setCreationTime(t)
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: read %s: %w", ErrStoreIO, s.sessionPath, err)
	}
	if err := os.WriteFile(s.sessionPath, []byte(formatCreationTime(s.cache.CreationTime())), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, s.sessionPath, err)
	}
	return nil
}

func (s *FileStore) closeFiles() {
	for _, f := range []**os.File{&s.seqNumsFile, &s.bodyFile, &s.headerFile} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	s.closed = true
}

func (s *FileStore) purge() error {
	for _, p := range []string{s.seqNumsPath, s.bodyPath, s.headerPath, s.sessionPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %w", ErrStoreIO, p, err)
		}
	}
	return nil
}

// Get implements MessageStore.
func (s *FileStore) Get(start, end int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out []string
	for seq := start; seq <= end; seq++ {
		def, ok := s.offsets[seq]
		if !ok {
			continue
		}
		buf := make([]byte, def.size)
		if _, err := s.bodyFile.ReadAt(buf, def.offset); err != nil {
			return nil, fmt.Errorf("%w: read message %d: %w", ErrStoreIO, seq, err)
		}
		out = append(out, string(buf))
	}
	return out, nil
}

// Set implements MessageStore.
func (s *FileStore) Set(seq int, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	offset, err := s.bodyFile.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("%w: seek %s: %w", ErrStoreIO, s.bodyPath, err)
	}
	// Body before index: a torn write leaves unindexed bytes, never an
	// index entry past the end of the body file.
	if _, err := s.bodyFile.WriteString(msg); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, s.bodyPath, err)
	}
	if err := s.bodyFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrStoreIO, s.bodyPath, err)
	}
	line := fmt.Sprintf("%d,%d,%d\n", seq, offset, len(msg))
	if _, err := s.headerFile.WriteString(line); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, s.headerPath, err)
	}
	if err := s.headerFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrStoreIO, s.headerPath, err)
	}
	s.offsets[seq] = msgDef{offset: offset, size: len(msg)}
	return nil
}

// writeSeqNums persists the counters and only then publishes them.
func (s *FileStore) writeSeqNums(sender, target int) error {
	if s.closed {
		return ErrClosed
	}
	if _, err := s.seqNumsFile.WriteAt([]byte(formatSeqNums(sender, target)), 0); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, s.seqNumsPath, err)
	}
	if err := s.seqNumsFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrStoreIO, s.seqNumsPath, err)
	}
	s.cache.SetNextSenderMsgSeqNum(sender)
	s.cache.SetNextTargetMsgSeqNum(target)
	return nil
}

// NextSenderMsgSeqNum implements MessageStore.
func (s *FileStore) NextSenderMsgSeqNum() int {
	return s.cache.NextSenderMsgSeqNum()
}

// NextTargetMsgSeqNum implements MessageStore.
func (s *FileStore) NextTargetMsgSeqNum() int {
	return s.cache.NextTargetMsgSeqNum()
}

// SetNextSenderMsgSeqNum implements MessageStore.
func (s *FileStore) SetNextSenderMsgSeqNum(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(seq, s.cache.NextTargetMsgSeqNum())
}

// SetNextTargetMsgSeqNum implements MessageStore.
func (s *FileStore) SetNextTargetMsgSeqNum(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(s.cache.NextSenderMsgSeqNum(), seq)
}

// IncrNextSenderMsgSeqNum implements MessageStore.
func (s *FileStore) IncrNextSenderMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(s.cache.NextSenderMsgSeqNum()+1, s.cache.NextTargetMsgSeqNum())
}

// IncrNextTargetMsgSeqNum implements MessageStore.
func (s *FileStore) IncrNextTargetMsgSeqNum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSeqNums(s.cache.NextSenderMsgSeqNum(), s.cache.NextTargetMsgSeqNum()+1)
}

// CreationTime implements MessageStore.
func (s *FileStore) CreationTime() time.Time {
	return s.cache.CreationTime()
}

// Reset implements MessageStore. All four files are removed and recreated.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Reset()
	s.closeFiles()
	if err := s.purge(); err != nil {
		return err
	}
	return s.open()
}

// Refresh implements MessageStore by reloading counters, offsets and the
// creation time from disk.
func (s *FileStore) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Reset()
	return s.open()
}

// Close releases the file handles. Further operations return ErrClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFiles()
	return nil
}

// FileStoreFactory creates FileStores in the directory named by each
// session's FileStorePath setting.
type FileStoreFactory struct {
	settings      *config.SessionSettings
	loggerFactory logging.LoggerFactory
}

// NewFileStoreFactory creates a factory reading FileStorePath from settings.
// loggerFactory may be nil.
func NewFileStoreFactory(settings *config.SessionSettings, loggerFactory logging.LoggerFactory) *FileStoreFactory {
	return &FileStoreFactory{settings: settings, loggerFactory: loggerFactory}
}

// Create implements Factory.
func (f *FileStoreFactory) Create(id sessionid.ID) (MessageStore, error) {
	d, err := f.settings.Get(id)
	if err != nil {
		return nil, err
	}
	dir, err := d.String(config.FileStorePath)
	if err != nil {
		return nil, config.NewError("file store", err)
	}
	return NewFileStore(dir, id, f.loggerFactory)
}
