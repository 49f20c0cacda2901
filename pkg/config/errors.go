package config

import (
	"errors"
	"fmt"
)

// ErrConfig is the sentinel all configuration failures unwrap to.
var ErrConfig = errors.New("config: configuration error")

// Configuration errors.
var (
	ErrMissingSetting   = fmt.Errorf("%w: missing setting", ErrConfig)
	ErrInvalidSetting   = fmt.Errorf("%w: invalid setting value", ErrConfig)
	ErrDuplicateSession = fmt.Errorf("%w: duplicate session", ErrConfig)
	ErrUnknownSession   = fmt.Errorf("%w: unknown session", ErrConfig)
	ErrNoSessions       = fmt.Errorf("%w: no sessions defined", ErrConfig)
)

// Error carries a descriptive message for a configuration failure.
type Error struct {
	Msg string
	Err error
}

// NewError creates a configuration error. err may be nil.
func NewError(msg string, err error) *Error {
	return &Error{Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "config: " + e.Msg
	}
	return "config: " + e.Msg + ": " + e.Err.Error()
}

// Unwrap returns the cause, or ErrConfig when there is none.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfig}
	}
	return []error{ErrConfig, e.Err}
}
