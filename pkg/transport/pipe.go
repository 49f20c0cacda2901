package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/transport/v3/test"
)

// DefaultProcessInterval is how often a Pipe delivers queued writes.
const DefaultProcessInterval = time.Millisecond

// Pipe provides a bidirectional in-memory stream between two endpoints.
// It wraps pion's test.Bridge and delivers queued writes in a background
// goroutine.
//
// Closing either PipeConn closes the whole pipe, so the peer observes
// end-of-stream like a TCP close.
type Pipe struct {
	bridge *test.Bridge
	conns  [2]*PipeConn

	mu       sync.Mutex
	closed   bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	interval time.Duration
}

// NewPipe creates a new pipe delivering every DefaultProcessInterval.
func NewPipe() *Pipe {
	return NewPipeInterval(DefaultProcessInterval)
}

// NewPipeInterval creates a new pipe delivering every interval.
func NewPipeInterval(interval time.Duration) *Pipe {
	if interval <= 0 {
		interval = DefaultProcessInterval
	}
	p := &Pipe{
		bridge:   test.NewBridge(),
		stopCh:   make(chan struct{}),
		interval: interval,
	}
	p.conns[0] = &PipeConn{
		conn:       p.bridge.GetConn0(),
		pipe:       p,
		localAddr:  PipeAddr{ID: 0},
		remoteAddr: PipeAddr{ID: 1},
	}
	p.conns[1] = &PipeConn{
		conn:       p.bridge.GetConn1(),
		pipe:       p,
		localAddr:  PipeAddr{ID: 1},
		remoteAddr: PipeAddr{ID: 0},
	}

	p.wg.Add(1)
	go p.autoProcess()
	return p
}

func (p *Pipe) autoProcess() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for p.bridge.Tick() > 0 {
			}
		}
	}
}

// Conn0 returns the connection for endpoint 0.
func (p *Pipe) Conn0() *PipeConn { return p.conns[0] }

// Conn1 returns the connection for endpoint 1.
func (p *Pipe) Conn1() *PipeConn { return p.conns[1] }

// Closed reports whether the pipe has been closed.
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	// The bridge must not tick into closed connections.
	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int // Endpoint ID (0 or 1)
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// PipeConn is one end of a Pipe.
type PipeConn struct {
	conn       net.Conn
	pipe       *Pipe
	localAddr  PipeAddr
	remoteAddr PipeAddr
}

// Read reads data from the connection.
func (c *PipeConn) Read(b []byte) (int, error) {
	return c.conn.Read(b)
}

// Write writes data to the connection.
func (c *PipeConn) Write(b []byte) (int, error) {
	if c.pipe.Closed() {
		return 0, net.ErrClosed
	}
	return c.conn.Write(b)
}

// Close closes the whole pipe.
func (c *PipeConn) Close() error {
	return c.pipe.Close()
}

// LocalAddr returns the local network address.
func (c *PipeConn) LocalAddr() net.Addr { return c.localAddr }

// RemoteAddr returns the remote network address.
func (c *PipeConn) RemoteAddr() net.Addr { return c.remoteAddr }

// SetDeadline sets the read and write deadlines.
func (c *PipeConn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline.
func (c *PipeConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline.
func (c *PipeConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// Verify PipeConn implements net.Conn.
var _ net.Conn = (*PipeConn)(nil)

// PipeDialer is a Dialer backed by in-memory pipes. Every dial creates a
// Pipe, returns endpoint 0 and publishes endpoint 1 on Peers, where a test
// plays the counterparty.
type PipeDialer struct {
	// Peers receives the counterparty end of each dialed pipe.
	Peers chan *PipeConn

	dials atomic.Int32
	addrs chan string
}

// NewPipeDialer creates a PipeDialer buffering up to backlog undelivered
// peers.
func NewPipeDialer(backlog int) *PipeDialer {
	return &PipeDialer{
		Peers: make(chan *PipeConn, backlog),
		addrs: make(chan string, backlog),
	}
}

// DialContext implements Dialer.
func (d *PipeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := NewPipe()
	select {
	case d.Peers <- p.Conn1():
	default:
		p.Close()
		return nil, &net.OpError{Op: "dial", Net: network, Err: fmt.Errorf("pipe backlog full dialing %s", addr)}
	}
	select {
	case d.addrs <- addr:
	default:
	}
	d.dials.Add(1)
	return p.Conn0(), nil
}

// Dials returns the number of successful dials.
func (d *PipeDialer) Dials() int {
	return int(d.dials.Load())
}

// Addrs receives the address of each successful dial.
func (d *PipeDialer) Addrs() <-chan string {
	return d.addrs
}
