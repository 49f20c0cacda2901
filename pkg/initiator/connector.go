package initiator

import (
	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
)

// StateNotifier receives connection state transitions from a Connector.
// Its methods take the initiator's structural lock; a Connector must only
// call them from its own goroutines, never from inside Connect or Remove.
type StateNotifier interface {
	SetPending(id sessionid.ID)
	SetConnected(id sessionid.ID)
	SetDisconnected(id sessionid.ID)
}

// Connector opens and services transport connections for sessions.
type Connector interface {
	// Configure is called once per Start, before the control loop runs.
	Configure(settings *config.SessionSettings, notifier StateNotifier) error

	// Connect dispatches a connection attempt for s. It must not block on
	// network I/O: the attempt and the read loop run on a goroutine owned
	// by the connector, which reports SetConnected when the transport is up
	// and SetDisconnected when the loop ends, on every exit path.
	Connect(s *session.Session, settings *config.Dictionary) error

	// Remove blocks until the read loop of id, if any, has exited.
	Remove(id sessionid.ID)

	// Stop closes every connection and waits for the read loops.
	Stop()
}
