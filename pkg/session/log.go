package session

import (
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/pion/logging"
)

// Log records the raw traffic and events of one session.
// Implementations must be safe for concurrent use.
type Log interface {
	// Clear removes any persisted log data.
	Clear()

	OnIncoming(raw string)
	OnOutgoing(raw string)
	OnEvent(text string)
	OnErrorEvent(text string)
}

// LogFactory creates the Log of a session.
type LogFactory interface {
	Create(id sessionid.ID) Log
}

// NullLog discards everything.
type NullLog struct{}

func (NullLog) Clear()              {}
func (NullLog) OnIncoming(string)   {}
func (NullLog) OnOutgoing(string)   {}
func (NullLog) OnEvent(string)      {}
func (NullLog) OnErrorEvent(string) {}

// NullLogFactory creates NullLogs.
type NullLogFactory struct{}

// Create implements LogFactory.
func (NullLogFactory) Create(sessionid.ID) Log { return NullLog{} }

// LeveledLog writes "<incoming>", "<outgoing>" and "<event>" lines to a pion
// logger scoped to the session. Traffic and events are logged at Info,
// error events at Error. Each category can be switched off.
type LeveledLog struct {
	log      logging.LeveledLogger
	incoming bool
	outgoing bool
	events   bool
}

// NewLeveledLog creates a log writing to l.
func NewLeveledLog(l logging.LeveledLogger, incoming, outgoing, events bool) *LeveledLog {
	return &LeveledLog{log: l, incoming: incoming, outgoing: outgoing, events: events}
}

// Clear is a no-op; lines already written cannot be withdrawn.
func (l *LeveledLog) Clear() {}

// OnIncoming implements Log.
func (l *LeveledLog) OnIncoming(raw string) {
	if l.incoming {
		l.log.Infof("<incoming> %s", printable(raw))
	}
}

// OnOutgoing implements Log.
func (l *LeveledLog) OnOutgoing(raw string) {
	if l.outgoing {
		l.log.Infof("<outgoing> %s", printable(raw))
	}
}

// OnEvent implements Log.
func (l *LeveledLog) OnEvent(text string) {
	if l.events {
		l.log.Infof("<event> %s", text)
	}
}

// OnErrorEvent implements Log.
func (l *LeveledLog) OnErrorEvent(text string) {
	if l.events {
		l.log.Errorf("<event> %s", text)
	}
}

// printable renders SOH as '|' for log output.
func printable(raw string) string {
	b := []byte(raw)
	for i, c := range b {
		if c == '\x01' {
			b[i] = '|'
		}
	}
	return string(b)
}

// LeveledLogFactory creates LeveledLogs whose loggers are named after the
// session identity.
type LeveledLogFactory struct {
	loggerFactory logging.LoggerFactory
	incoming      bool
	outgoing      bool
	events        bool
}

// NewLeveledLogFactory creates a factory. A nil loggerFactory uses pion's
// default factory.
func NewLeveledLogFactory(loggerFactory logging.LoggerFactory, incoming, outgoing, events bool) *LeveledLogFactory {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &LeveledLogFactory{
		loggerFactory: loggerFactory,
		incoming:      incoming,
		outgoing:      outgoing,
		events:        events,
	}
}

// Create implements LogFactory.
func (f *LeveledLogFactory) Create(id sessionid.ID) Log {
	return NewLeveledLog(f.loggerFactory.NewLogger(id.String()), f.incoming, f.outgoing, f.events)
}
