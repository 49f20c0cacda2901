// Package store persists FIX sequence numbers and sent messages per
// session so that resend requests can be answered across restarts.
//
// Three implementations are provided:
//   - MemoryStore keeps everything in process memory
//   - FileStore keeps four files per session in a directory
//   - BadgerStore keeps all sessions in one BadgerDB key space
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/backkem/fix/pkg/sessionid"
)

// Store errors.
var (
	ErrStoreIO = errors.New("store: i/o failure")
	ErrCorrupt = errors.New("store: corrupt persisted state")
	ErrClosed  = errors.New("store: closed")
)

// MessageStore persists per-session sequence numbers and sent messages.
// Implementations must be safe for concurrent use.
//
// A counter change returns only after it is durable; readers never observe
// a counter value that was not persisted.
type MessageStore interface {
	// Get returns the stored messages with sequence numbers in
	// [start, end], ascending. Missing sequence numbers are skipped;
	// an error is returned only for I/O failures.
	Get(start, end int) ([]string, error)

	// Set stores msg under seq, replacing any previous message.
	Set(seq int, msg string) error

	NextSenderMsgSeqNum() int
	NextTargetMsgSeqNum() int
	SetNextSenderMsgSeqNum(seq int) error
	SetNextTargetMsgSeqNum(seq int) error
	IncrNextSenderMsgSeqNum() error
	IncrNextTargetMsgSeqNum() error

	// CreationTime is the UTC time the store's current contents began.
	CreationTime() time.Time

	// Reset discards all messages, sets both counters to 1 and records a
	// new creation time.
	Reset() error

	// Refresh reloads state from the backing medium.
	Refresh() error

	Close() error
}

// Factory creates the store of a session.
type Factory interface {
	Create(id sessionid.ID) (MessageStore, error)
}

// Prefix returns the name under which a session's state is persisted:
// BeginString-Sender[_SubID][_LocationID]-Target[_SubID][_LocationID][-Qualifier].
func Prefix(id sessionid.ID) string {
	var b strings.Builder
	b.WriteString(id.BeginString)
	b.WriteByte('-')
	b.WriteString(id.SenderCompID)
	if sessionid.IsSet(id.SenderSubID) {
		b.WriteString("_" + id.SenderSubID)
	}
	if sessionid.IsSet(id.SenderLocationID) {
		b.WriteString("_" + id.SenderLocationID)
	}
	b.WriteByte('-')
	b.WriteString(id.TargetCompID)
	if sessionid.IsSet(id.TargetSubID) {
		b.WriteString("_" + id.TargetSubID)
	}
	if sessionid.IsSet(id.TargetLocationID) {
		b.WriteString("_" + id.TargetLocationID)
	}
	if sessionid.IsSet(id.Qualifier) {
		b.WriteString("-" + id.Qualifier)
	}
	return b.String()
}

// creationTimeLayout is the FIX UTCTimestamp layout used to persist the
// creation time.
const creationTimeLayout = "20060102-15:04:05.000"

func formatCreationTime(t time.Time) string {
	return t.UTC().Format(creationTimeLayout)
}

func parseCreationTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(creationTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, errors.Join(ErrCorrupt, err)
	}
	return t, nil
}

// now returns the current UTC time truncated to the persisted precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
