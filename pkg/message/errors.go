package message

import (
	"errors"
	"fmt"
)

// Message layer errors.
var (
	// Parse errors
	ErrParse                            = errors.New("message: parse error")
	ErrInvalidMessage                   = errors.New("message: invalid message")
	ErrMissingGroupDelimiter            = errors.New("message: missing group delimiter")
	ErrRepeatedTagWithoutGroupDelimiter = errors.New("message: repeated tag without group delimiter")

	// Field access errors
	ErrFieldNotFound = errors.New("message: field not found")
	ErrFieldConvert  = errors.New("message: field value conversion failed")
	ErrGroupNotFound = errors.New("message: group entry not found")

	// Stream errors
	ErrMessageTooLong   = errors.New("message: exceeds maximum size")
	ErrStreamReadFailed = errors.New("message: failed to read from stream")
	ErrBadFraming       = errors.New("message: bad stream framing")

	// Export errors
	ErrJSON = errors.New("message: invalid JSON document")
)

// ParseError reports a malformed field at a byte position of the raw text.
type ParseError struct {
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("message: parse error at position %d: %s", e.Pos, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// InvalidMessageError reports a message that parsed but failed validation.
// Expected, Received and SeqNum are populated for BodyLength and CheckSum
// mismatches.
type InvalidMessageError struct {
	Reason   string
	Expected string
	Received string
	SeqNum   string
}

func (e *InvalidMessageError) Error() string {
	if e.Expected == "" {
		return "message: invalid message: " + e.Reason
	}
	return fmt.Sprintf("message: invalid message: %s (expected %s, received %s, MsgSeqNum %s)",
		e.Reason, e.Expected, e.Received, e.SeqNum)
}

func (e *InvalidMessageError) Unwrap() error { return ErrInvalidMessage }

// MissingGroupDelimiterError is returned when the first field following a
// NumInGroup counter is not the group's delimiter.
type MissingGroupDelimiterError struct {
	GroupTag Tag
	DelimTag Tag
}

func (e *MissingGroupDelimiterError) Error() string {
	return fmt.Sprintf("message: group %d: expected delimiter %d", e.GroupTag, e.DelimTag)
}

func (e *MissingGroupDelimiterError) Unwrap() error { return ErrMissingGroupDelimiter }

// RepeatedTagWithoutGroupDelimiterError is returned when a group member
// appears twice inside one entry without a new delimiter in between.
type RepeatedTagWithoutGroupDelimiterError struct {
	GroupTag Tag
	Tag      Tag
}

func (e *RepeatedTagWithoutGroupDelimiterError) Error() string {
	return fmt.Sprintf("message: group %d: tag %d repeated without delimiter", e.GroupTag, e.Tag)
}

func (e *RepeatedTagWithoutGroupDelimiterError) Unwrap() error {
	return ErrRepeatedTagWithoutGroupDelimiter
}
