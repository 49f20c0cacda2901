package initiator

import "errors"

// Package-level errors.
var (
	// ErrDisposed is returned by Start, Stop and AddSession after Close.
	ErrDisposed = errors.New("initiator: disposed")

	// ErrAlreadyStarted is returned when Start is called on a running initiator.
	ErrAlreadyStarted = errors.New("initiator: already started")

	// ErrNoConnector is returned when Config.Connector is nil.
	ErrNoConnector = errors.New("initiator: connector is required")

	// ErrNoSettings is returned when Config.Settings is nil.
	ErrNoSettings = errors.New("initiator: settings are required")
)
