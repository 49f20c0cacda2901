package session

import "errors"

// Session package errors.
var (
	// ErrNoStore is returned by New without a MessageStore.
	ErrNoStore = errors.New("session: message store required")

	// ErrDisposed is returned by operations on a disposed session.
	ErrDisposed = errors.New("session: disposed")

	// ErrNotConnected is returned when a message must be transmitted but
	// no responder is attached.
	ErrNotConnected = errors.New("session: not connected")

	// ErrDoNotSend is returned by Application.ToApp to veto an outbound
	// application message.
	ErrDoNotSend = errors.New("session: do not send")

	// ErrUnknownSession is returned by SendToTarget when no session with
	// the message's identity is registered.
	ErrUnknownSession = errors.New("session: unknown session")

	// ErrSessionTableFull is returned when no more sessions can be registered.
	ErrSessionTableFull = errors.New("session: session table full")

	// ErrDuplicateSession is returned when registering an existing identity.
	ErrDuplicateSession = errors.New("session: duplicate session ID")

	// ErrInvalidSchedule is returned for malformed StartTime/EndTime/TimeZone.
	ErrInvalidSchedule = errors.New("session: invalid schedule")
)
