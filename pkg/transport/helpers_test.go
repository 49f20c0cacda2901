package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

var testID = sessionid.ID{BeginString: message.BeginStringFIX44, SenderCompID: "BUY", TargetCompID: "SELL"}

func sessionDict(host, port string) *config.Dictionary {
	return config.DictionaryFrom(map[string]string{
		config.ConnectionType:    config.ConnectionTypeInitiator,
		config.BeginString:       testID.BeginString,
		config.SenderCompID:      testID.SenderCompID,
		config.TargetCompID:      testID.TargetCompID,
		config.HeartBtInt:        "30",
		config.SocketConnectHost: host,
		config.SocketConnectPort: port,
	})
}

func newSession(t *testing.T, d *config.Dictionary) *session.Session {
	t.Helper()
	s, err := session.NewFactory(session.FactoryConfig{}).Create(testID, d)
	require.NoError(t, err)
	t.Cleanup(func() { s.Dispose() })
	return s
}

// recordingNotifier records connector state reports.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(e string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) SetPending(sessionid.ID)      { n.record("pending") }
func (n *recordingNotifier) SetConnected(sessionid.ID)    { n.record("connected") }
func (n *recordingNotifier) SetDisconnected(sessionid.ID) { n.record("disconnected") }

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return ""
	}
	return n.events[len(n.events)-1]
}

// counterparty plays the acceptor side of a connection.
type counterparty struct {
	t    *testing.T
	conn net.Conn
	w    *message.StreamWriter
	msgs chan string
	seq  int
}

func newCounterparty(t *testing.T, conn net.Conn) *counterparty {
	t.Helper()
	c := &counterparty{
		t:    t,
		conn: conn,
		w:    message.NewStreamWriter(conn),
		msgs: make(chan string, 64),
	}
	go func() {
		defer close(c.msgs)
		r := message.NewStreamReader(conn)
		for {
			raw, err := r.Read()
			if err != nil {
				return
			}
			c.msgs <- raw
		}
	}()
	return c
}

// expect waits for the next message and checks its type.
func (c *counterparty) expect(msgType string) *message.Message {
	c.t.Helper()
	select {
	case raw, ok := <-c.msgs:
		require.True(c.t, ok, "connection closed while waiting for %s", msgType)
		m, err := message.Parse(raw, message.ParseOptions{})
		require.NoError(c.t, err)
		require.Equal(c.t, msgType, m.MsgType(), raw)
		return m
	case <-time.After(waitFor):
		c.t.Fatalf("timed out waiting for %s", msgType)
		return nil
	}
}

// expectClosed waits for the initiator to drop the connection.
func (c *counterparty) expectClosed() {
	c.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-c.msgs:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("connection not closed")
		}
	}
}

func (c *counterparty) send(msgType string, body ...message.Field) {
	c.t.Helper()
	c.seq++
	m := message.NewWithType(testID.BeginString, msgType)
	m.Header.SetField(message.TagSenderCompID, testID.TargetCompID)
	m.Header.SetField(message.TagTargetCompID, testID.SenderCompID)
	m.Header.SetInt(message.TagMsgSeqNum, c.seq)
	m.Header.SetField(message.TagSendingTime, time.Now().UTC().Format("20060102-15:04:05.000"))
	for _, f := range body {
		m.Body.SetField(f.Tag, f.Value)
	}
	require.NoError(c.t, c.w.WriteMessage(m))
}

// acceptLogon answers the initiator's Logon.
func (c *counterparty) acceptLogon() {
	c.t.Helper()
	c.expect(message.MsgTypeLogon)
	c.send(message.MsgTypeLogon,
		message.Field{Tag: message.TagEncryptMethod, Value: "0"},
		message.Field{Tag: message.TagHeartBtInt, Value: "30"})
}

func receivePeer(t *testing.T, d *PipeDialer) *PipeConn {
	t.Helper()
	select {
	case p := <-d.Peers:
		return p
	case <-time.After(waitFor):
		t.Fatal("no dial")
		return nil
	}
}
