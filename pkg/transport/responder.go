package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/session"
)

// DefaultWriteTimeout bounds a single write to the counterparty.
const DefaultWriteTimeout = 10 * time.Second

// responder attaches a connection to a session.
type responder struct {
	conn    net.Conn
	writer  *message.StreamWriter
	timeout time.Duration

	mu     sync.Mutex // Protects writes
	closed atomic.Bool
}

func newResponder(conn net.Conn, timeout time.Duration) *responder {
	return &responder{
		conn:    conn,
		writer:  message.NewStreamWriter(conn),
		timeout: timeout,
	}
}

// Send implements session.Responder.
func (r *responder) Send(raw string) bool {
	if r.closed.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timeout > 0 {
		r.conn.SetWriteDeadline(time.Now().Add(r.timeout))
	}
	return r.writer.WriteString(raw) == nil
}

// Disconnect implements session.Responder. It does not wait for a
// blocked write; closing the connection unblocks it.
func (r *responder) Disconnect() {
	if r.closed.CompareAndSwap(false, true) {
		r.conn.Close()
	}
}

var _ session.Responder = (*responder)(nil)
