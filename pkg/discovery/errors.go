package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrServiceNotFound is returned when a requested service is not found.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("discovery: operation timed out")

	// ErrNoAddresses is returned when a service resolved without any usable
	// IP address.
	ErrNoAddresses = errors.New("discovery: no addresses")

	// ErrInvalidInstanceName is returned for an empty instance name.
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name")
)
