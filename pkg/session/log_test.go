package session

import (
	"bytes"
	"testing"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
)

func newBufferFactory(buf *bytes.Buffer) *logging.DefaultLoggerFactory {
	return &logging.DefaultLoggerFactory{
		Writer:          buf,
		DefaultLogLevel: logging.LogLevelInfo,
		ScopeLevels:     map[string]logging.LogLevel{},
	}
}

func TestLeveledLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLeveledLogFactory(newBufferFactory(&buf), true, true, true).Create(testID)

	l.OnIncoming("8=FIX.4.4\x019=5\x0135=0\x0110=000\x01")
	l.OnOutgoing("8=FIX.4.4\x0135=1\x01")
	l.OnEvent("Created session")
	l.OnErrorEvent("Store failure")
	l.Clear()

	out := buf.String()
	assert.Contains(t, out, "<incoming> 8=FIX.4.4|9=5|35=0|10=000|")
	assert.Contains(t, out, "<outgoing> 8=FIX.4.4|35=1|")
	assert.Contains(t, out, "<event> Created session")
	assert.Contains(t, out, "<event> Store failure")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, testID.String())
}

func TestLeveledLogCategories(t *testing.T) {
	var buf bytes.Buffer
	l := NewLeveledLogFactory(newBufferFactory(&buf), false, true, false).Create(testID)

	l.OnIncoming("in")
	l.OnEvent("event")
	l.OnErrorEvent("error")
	assert.Empty(t, buf.String())

	l.OnOutgoing("out")
	assert.Contains(t, buf.String(), "<outgoing> out")
}

func TestNullLogFactory(t *testing.T) {
	l := NullLogFactory{}.Create(testID)
	assert.NotPanics(t, func() {
		l.OnIncoming("x")
		l.OnOutgoing("x")
		l.OnEvent("x")
		l.OnErrorEvent("x")
		l.Clear()
	})
}
