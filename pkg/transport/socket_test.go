package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/initiator"
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tagClOrdID message.Tag = 11

func newPipeConnector(t *testing.T) (*SocketConnector, *PipeDialer, *recordingNotifier) {
	t.Helper()
	d := NewPipeDialer(4)
	c := NewSocketConnector(SocketConfig{
		Dialer:       d,
		TickInterval: 10 * time.Millisecond,
	})
	n := &recordingNotifier{}
	require.NoError(t, c.Configure(config.NewSessionSettings(), n))
	t.Cleanup(c.Stop)
	return c, d, n
}

func TestSocketConnectorLogon(t *testing.T) {
	c, d, n := newPipeConnector(t)
	s := newSession(t, sessionDict("127.0.0.1", "9878"))

	require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))
	peer := newCounterparty(t, receivePeer(t, d))
	assert.Equal(t, "127.0.0.1:9878", <-d.Addrs())

	peer.acceptLogon()
	require.Eventually(t, s.IsLoggedOn, waitFor, 5*time.Millisecond)
	assert.True(t, c.Connected(testID))
	assert.Equal(t, []string{"pending", "connected"}, n.snapshot())

	// Application traffic flows both ways.
	order := message.NewWithType(testID.BeginString, "D")
	order.Body.SetField(tagClOrdID, "ORD-1")
	require.NoError(t, s.Send(order))
	got := peer.expect("D")
	v, _ := got.Body.Get(tagClOrdID)
	assert.Equal(t, "ORD-1", v)

	// The counterparty logs out; the session answers and drops the link.
	peer.send(message.MsgTypeLogout)
	peer.expect(message.MsgTypeLogout)
	peer.expectClosed()

	require.Eventually(t, func() bool { return n.last() == "disconnected" }, waitFor, 5*time.Millisecond)
	assert.False(t, s.IsLoggedOn())
	assert.False(t, c.Connected(testID))
}

func TestSocketConnectorHeartbeatTimeout(t *testing.T) {
	c, d, n := newPipeConnector(t)
	dict := sessionDict("127.0.0.1", "9878")
	dict.Set(config.HeartBtInt, "1")
	s := newSession(t, dict)

	require.NoError(t, c.Connect(s, dict))
	peer := newCounterparty(t, receivePeer(t, d))
	peer.expect(message.MsgTypeLogon)
	peer.send(message.MsgTypeLogon,
		message.Field{Tag: message.TagEncryptMethod, Value: "0"},
		message.Field{Tag: message.TagHeartBtInt, Value: "1"})
	require.Eventually(t, s.IsLoggedOn, waitFor, 5*time.Millisecond)

	// A silent counterparty gets a heartbeat, a test request, then the
	// connection is dropped.
	peer.expect(message.MsgTypeHeartbeat)
	peer.expect(message.MsgTypeTestRequest)
	peer.expectClosed()
	require.Eventually(t, func() bool { return n.last() == "disconnected" }, waitFor, 5*time.Millisecond)
}

func TestSocketConnectorBadFraming(t *testing.T) {
	c, d, _ := newPipeConnector(t)
	s := newSession(t, sessionDict("127.0.0.1", "9878"))

	require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))
	conn := receivePeer(t, d)
	peer := newCounterparty(t, conn)
	peer.expect(message.MsgTypeLogon)

	_, err := conn.Write([]byte("8=FIX.4.4\x019=abc\x0135=0\x01"))
	require.NoError(t, err)
	peer.send(message.MsgTypeLogon,
		message.Field{Tag: message.TagEncryptMethod, Value: "0"},
		message.Field{Tag: message.TagHeartBtInt, Value: "30"})

	require.Eventually(t, s.IsLoggedOn, waitFor, 5*time.Millisecond)
}

func TestSocketConnectorDialFailure(t *testing.T) {
	refused := errors.New("connection refused")
	c := NewSocketConnector(SocketConfig{
		Dialer: DialerFunc(func(context.Context, string, string) (net.Conn, error) {
			return nil, refused
		}),
	})
	n := &recordingNotifier{}
	require.NoError(t, c.Configure(config.NewSessionSettings(), n))
	defer c.Stop()

	s := newSession(t, sessionDict("127.0.0.1", "9878"))
	require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))

	require.Eventually(t, func() bool { return n.last() == "disconnected" }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"pending", "disconnected"}, n.snapshot())
	assert.False(t, c.Connected(testID))

	// A finished run frees the session for the next attempt.
	require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))
}

func TestSocketConnectorResolveFailure(t *testing.T) {
	c, d, n := newPipeConnector(t)
	s := newSession(t, sessionDict("127.0.0.1", "9878"))

	require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "0")))
	require.Eventually(t, func() bool { return n.last() == "disconnected" }, waitFor, 5*time.Millisecond)
	assert.Zero(t, d.Dials())
}

func TestSocketConnectorErrors(t *testing.T) {
	s := newSession(t, sessionDict("127.0.0.1", "9878"))

	t.Run("not configured", func(t *testing.T) {
		c := NewSocketConnector(SocketConfig{Dialer: NewPipeDialer(1)})
		assert.ErrorIs(t, c.Connect(s, sessionDict("127.0.0.1", "9878")), ErrNotConfigured)
	})

	t.Run("configure needs notifier", func(t *testing.T) {
		c := NewSocketConnector(SocketConfig{})
		assert.ErrorIs(t, c.Configure(config.NewSessionSettings(), nil), config.ErrConfig)
	})

	t.Run("invalid settings", func(t *testing.T) {
		c, _, _ := newPipeConnector(t)
		d := sessionDict("127.0.0.1", "9878")
		d.Set(config.SocketUseSSL, "maybe")
		assert.ErrorIs(t, c.Connect(s, d), config.ErrInvalidSetting)
	})

	t.Run("already connected", func(t *testing.T) {
		c, d, _ := newPipeConnector(t)
		require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))
		receivePeer(t, d)
		assert.ErrorIs(t, c.Connect(s, sessionDict("127.0.0.1", "9878")), ErrAlreadyConnected)
		c.Remove(testID)
	})

	t.Run("stopped and re-armed", func(t *testing.T) {
		c, _, n := newPipeConnector(t)
		c.Stop()
		assert.ErrorIs(t, c.Connect(s, sessionDict("127.0.0.1", "9878")), ErrClosed)

		require.NoError(t, c.Configure(config.NewSessionSettings(), n))
		require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))
	})
}

func TestSocketConnectorRemove(t *testing.T) {
	c, d, n := newPipeConnector(t)
	s := newSession(t, sessionDict("127.0.0.1", "9878"))

	require.NoError(t, c.Connect(s, sessionDict("127.0.0.1", "9878")))
	peer := newCounterparty(t, receivePeer(t, d))
	peer.acceptLogon()
	require.Eventually(t, s.IsLoggedOn, waitFor, 5*time.Millisecond)

	c.Remove(testID)

	// Remove returns only after the reader has reported.
	assert.Equal(t, "disconnected", n.last())
	assert.False(t, c.Connected(testID))
	assert.False(t, s.IsLoggedOn())
	peer.expectClosed()

	// Unknown sessions are ignored.
	c.Remove(testID)
}

func TestSocketConnectorLoopbackTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := NewSocketConnector(SocketConfig{TickInterval: 10 * time.Millisecond})
	n := &recordingNotifier{}
	require.NoError(t, c.Configure(config.NewSessionSettings(), n))
	defer c.Stop()

	dict := sessionDict("127.0.0.1", port)
	s := newSession(t, dict)
	require.NoError(t, c.Connect(s, dict))

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
	}
	defer conn.Close()

	peer := newCounterparty(t, conn)
	peer.acceptLogon()
	require.Eventually(t, s.IsLoggedOn, waitFor, 5*time.Millisecond)

	// Closing the socket from the far side ends the session.
	conn.Close()
	require.Eventually(t, func() bool { return n.last() == "disconnected" }, waitFor, 5*time.Millisecond)
	assert.False(t, s.IsLoggedOn())
}

func TestInitiatorOverPipe(t *testing.T) {
	d := NewPipeDialer(4)
	settings := config.NewSessionSettings()
	settings.SetDefaults(config.DictionaryFrom(map[string]string{config.ReconnectInterval: "1"}))
	require.NoError(t, settings.Set(testID, sessionDict("127.0.0.1", "9878")))

	app := &logonRecorder{}
	in, err := initiator.New(initiator.Config{
		Settings:       settings,
		Connector:      NewSocketConnector(SocketConfig{Dialer: d, TickInterval: 10 * time.Millisecond}),
		SessionFactory: session.NewFactory(session.FactoryConfig{Application: app}),
		TickInterval:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, in.Start())
	defer in.Close()

	// First connection: logon, then the counterparty drops the line.
	first := receivePeer(t, d)
	peer := newCounterparty(t, first)
	peer.acceptLogon()
	require.Eventually(t, in.IsLoggedOn, waitFor, 5*time.Millisecond)
	assert.Equal(t, session.StateConnected, in.Session(testID).ConnectionState())

	first.Close()
	require.Eventually(t, func() bool {
		return in.Session(testID).ConnectionState() == session.StateDisconnected
	}, waitFor, 5*time.Millisecond)

	// The reconnect sweep dials again; sequence numbers carry over.
	seq := peer.seq
	peer = newCounterparty(t, receivePeer(t, d))
	peer.seq = seq
	peer.acceptLogon()
	require.Eventually(t, in.IsLoggedOn, waitFor, 5*time.Millisecond)

	// Graceful stop logs out first.
	stopped := make(chan error, 1)
	go func() { stopped <- in.Stop(false) }()
	peer.expect(message.MsgTypeLogout)
	peer.send(message.MsgTypeLogout)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}
	assert.True(t, in.IsStopped())
	assert.Equal(t, 2, app.count())
}

// logonRecorder counts logons.
type logonRecorder struct {
	session.NullApplication
	mu     sync.Mutex
	logons int
}

func (a *logonRecorder) OnLogon(sessionid.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logons++
}

func (a *logonRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logons
}
