package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a stopped connector.
	ErrClosed = errors.New("transport: closed")

	// ErrNotConfigured is returned by Connect before Configure was called.
	ErrNotConfigured = errors.New("transport: not configured")

	// ErrAlreadyConnected is returned when a session still has a running
	// connection.
	ErrAlreadyConnected = errors.New("transport: session already connected")
)
