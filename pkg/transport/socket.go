// Package transport connects initiator sessions to their counterparties over
// TCP or TLS, and provides in-memory pipes for tests.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/initiator"
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DefaultTickInterval is how often a connected session's timers are driven.
const DefaultTickInterval = time.Second

// Dialer opens stream connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext calls f.
func (f DialerFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// SocketConfig configures a SocketConnector.
type SocketConfig struct {
	// Dialer opens connections.
	// Default: &net.Dialer{}
	Dialer Dialer

	// Endpoints picks the address to dial for each attempt.
	// Default: NewEndpointResolver with the system DNS resolver
	Endpoints *EndpointResolver

	// TLSConfig is the base TLS configuration for sessions with
	// SocketUseSSL=Y. It is cloned per connection; SocketServerName and
	// SocketInsecureSkipVerify override it.
	TLSConfig *tls.Config

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// TickInterval drives session.Next. Default: DefaultTickInterval
	TickInterval time.Duration

	// WriteTimeout bounds each write. Default: DefaultWriteTimeout
	WriteTimeout time.Duration
}

// SocketConnector implements initiator.Connector over TCP and TLS. Every
// connected session gets one reader goroutine, plus a ticker driving its
// heartbeat and timeout checks.
type SocketConnector struct {
	config SocketConfig
	log    logging.LeveledLogger

	mu       sync.Mutex
	notifier initiator.StateNotifier
	conns    map[sessionid.ID]*socketConn
	closed   bool
	wg       sync.WaitGroup
}

// socketConn is the bookkeeping of one connection run.
type socketConn struct {
	connID  uuid.UUID
	session *session.Session
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// attach records conn unless the run was closed while dialing.
func (sc *socketConn) attach(conn net.Conn) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return false
	}
	sc.conn = conn
	return true
}

// close aborts the dial or closes the connection.
func (sc *socketConn) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	sc.cancel()
	if sc.conn != nil {
		sc.conn.Close()
	}
}

// dialSettings are the per-session transport settings, read at dispatch.
type dialSettings struct {
	connectTimeout time.Duration
	useTLS         bool
	serverName     string
	insecure       bool
	noDelay        bool
	maxMessageSize int
}

func readDialSettings(d *config.Dictionary) (dialSettings, error) {
	var ds dialSettings
	var err error

	if ds.connectTimeout, err = d.Seconds(config.SocketConnectTimeout, config.DefaultSocketConnectTimeout*time.Second); err != nil {
		return ds, err
	}
	if ds.useTLS, err = d.BoolDefault(config.SocketUseSSL, false); err != nil {
		return ds, err
	}
	if ds.insecure, err = d.BoolDefault(config.SocketInsecureSkipVerify, false); err != nil {
		return ds, err
	}
	if ds.noDelay, err = d.BoolDefault(config.SocketNodelay, true); err != nil {
		return ds, err
	}
	if ds.maxMessageSize, err = d.IntDefault(config.MaxMessageSize, message.DefaultMaxMessageSize); err != nil {
		return ds, err
	}
	ds.serverName = d.StringDefault(config.SocketServerName, "")
	return ds, nil
}

// NewSocketConnector creates a new SocketConnector.
func NewSocketConnector(cfg SocketConfig) *SocketConnector {
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = NewEndpointResolver(EndpointResolverConfig{})
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	c := &SocketConnector{
		config: cfg,
		conns:  make(map[sessionid.ID]*socketConn),
	}
	if cfg.LoggerFactory != nil {
		c.log = cfg.LoggerFactory.NewLogger("transport-socket")
	}
	return c
}

// Configure implements initiator.Connector. It re-arms a stopped connector.
func (c *SocketConnector) Configure(settings *config.SessionSettings, notifier initiator.StateNotifier) error {
	if settings == nil || notifier == nil {
		return config.NewError("socket connector requires settings and a notifier", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = notifier
	c.closed = false
	return nil
}

// Connect implements initiator.Connector.
func (c *SocketConnector) Connect(s *session.Session, d *config.Dictionary) error {
	ds, err := readDialSettings(d)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.notifier == nil {
		return ErrNotConfigured
	}
	if c.closed {
		return ErrClosed
	}
	id := s.ID()
	if _, ok := c.conns[id]; ok {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := &socketConn{
		connID:  uuid.New(),
		session: s,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.conns[id] = sc

	c.wg.Add(1)
	go c.run(ctx, sc, c.notifier, d.Clone(), ds)
	return nil
}

// Remove implements initiator.Connector.
func (c *SocketConnector) Remove(id sessionid.ID) {
	c.mu.Lock()
	sc := c.conns[id]
	c.mu.Unlock()

	c.config.Endpoints.Forget(id)
	if sc == nil {
		return
	}
	sc.close()
	<-sc.done
}

// Stop implements initiator.Connector.
func (c *SocketConnector) Stop() {
	c.mu.Lock()
	c.closed = true
	for _, sc := range c.conns {
		sc.close()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Connected reports whether id has a running connection.
func (c *SocketConnector) Connected(id sessionid.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.conns[id]
	if !ok {
		return false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn != nil && !sc.closed
}

// run owns one connection attempt from dial to disconnect.
func (c *SocketConnector) run(ctx context.Context, sc *socketConn, notifier initiator.StateNotifier, d *config.Dictionary, ds dialSettings) {
	s := sc.session
	id := s.ID()

	defer func() {
		sc.close()
		c.mu.Lock()
		if c.conns[id] == sc {
			delete(c.conns, id)
		}
		c.mu.Unlock()

		// Outside c.mu: the notifier takes the initiator lock, which is held
		// while Connect takes c.mu.
		notifier.SetDisconnected(id)
		close(sc.done)
		c.wg.Done()
	}()

	notifier.SetPending(id)

	conn, err := c.dial(ctx, sc, d, ds)
	if err != nil {
		if ctx.Err() == nil {
			s.Log().OnErrorEvent("Connection failed: " + err.Error())
			if c.log != nil {
				c.log.Warnf("[%s] %s: %v", sc.connID, id, err)
			}
		}
		return
	}
	if !sc.attach(conn) {
		conn.Close()
		return
	}

	notifier.SetConnected(id)

	r := newResponder(conn, c.config.WriteTimeout)
	if err := s.Connect(r); err != nil {
		s.Log().OnErrorEvent("Session connect failed: " + err.Error())
		r.Disconnect()
		return
	}

	var tick sync.WaitGroup
	stopTick := make(chan struct{})
	tick.Add(1)
	go func() {
		defer tick.Done()
		ticker := time.NewTicker(c.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopTick:
				return
			case <-ticker.C:
				s.Next()
			}
		}
	}()

	c.readLoop(sc, conn, ds.maxMessageSize)

	close(stopTick)
	tick.Wait()

	if !s.Disposed() {
		s.Disconnect("Socket closed")
	}
	r.Disconnect()
}

// dial resolves the next endpoint and opens the connection.
func (c *SocketConnector) dial(ctx context.Context, sc *socketConn, d *config.Dictionary, ds dialSettings) (net.Conn, error) {
	s := sc.session

	ep, err := c.config.Endpoints.Next(ctx, s.ID(), d)
	if err != nil {
		return nil, err
	}

	s.Log().OnEvent(fmt.Sprintf("Connecting to %s", ep.Addr))
	if c.log != nil {
		c.log.Infof("[%s] connecting %s to %s", sc.connID, s.ID(), ep.Addr)
	}

	dctx, cancel := context.WithTimeout(ctx, ds.connectTimeout)
	defer cancel()

	conn, err := c.config.Dialer.DialContext(dctx, "tcp", ep.Addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(ds.noDelay)
	}

	if !ds.useTLS {
		return conn, nil
	}

	tc := tls.Client(conn, c.tlsConfig(ep, ds))
	if err := tc.HandshakeContext(dctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", ep.Addr, err)
	}
	return tc, nil
}

func (c *SocketConnector) tlsConfig(ep Endpoint, ds dialSettings) *tls.Config {
	var cfg *tls.Config
	if c.config.TLSConfig != nil {
		cfg = c.config.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	switch {
	case ds.serverName != "":
		cfg.ServerName = ds.serverName
	case cfg.ServerName == "":
		cfg.ServerName = ep.Host
	}
	if ds.insecure {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// readLoop feeds framed messages to the session until the connection ends.
func (c *SocketConnector) readLoop(sc *socketConn, conn net.Conn, maxSize int) {
	s := sc.session
	reader := message.NewStreamReaderSize(conn, maxSize)

	for {
		raw, err := reader.Read()
		if err != nil {
			if errors.Is(err, message.ErrBadFraming) || errors.Is(err, message.ErrMessageTooLong) {
				s.Log().OnErrorEvent("Discarded bytes: " + err.Error())
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.Log().OnEvent("Connection lost: " + err.Error())
			}
			if c.log != nil {
				c.log.Debugf("[%s] %s read loop ended: %v", sc.connID, s.ID(), err)
			}
			return
		}
		s.NextMessage(raw)
	}
}

// Verify SocketConnector implements initiator.Connector.
var _ initiator.Connector = (*SocketConnector)(nil)
