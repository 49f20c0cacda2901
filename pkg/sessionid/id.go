// Package sessionid defines the identity tuple of a FIX session.
package sessionid

import (
	"strings"

	"github.com/backkem/fix/pkg/message"
)

// NotSet marks an optional identity component as absent.
const NotSet = ""

// ID identifies a session. It is a comparable value type and can be used as
// a map key; two IDs are equal when every component is equal.
type ID struct {
	BeginString      string
	SenderCompID     string
	SenderSubID      string
	SenderLocationID string
	TargetCompID     string
	TargetSubID      string
	TargetLocationID string
	Qualifier        string
}

// IsSet reports whether an optional component carries a value.
func IsSet(v string) bool {
	return v != NotSet
}

// IsFIXT reports whether the session uses the FIXT transport version.
func (id ID) IsFIXT() bool {
	return strings.HasPrefix(id.BeginString, "FIXT")
}

// IsZero reports whether no component is set.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String renders BeginString:Sender/SubID/LocationID->Target/SubID/LocationID:Qualifier,
// omitting absent parts.
func (id ID) String() string {
	var b strings.Builder
	b.WriteString(id.BeginString)
	b.WriteByte(':')
	b.WriteString(id.SenderCompID)
	if IsSet(id.SenderSubID) {
		b.WriteString("/" + id.SenderSubID)
	}
	if IsSet(id.SenderLocationID) {
		b.WriteString("/" + id.SenderLocationID)
	}
	b.WriteString("->")
	b.WriteString(id.TargetCompID)
	if IsSet(id.TargetSubID) {
		b.WriteString("/" + id.TargetSubID)
	}
	if IsSet(id.TargetLocationID) {
		b.WriteString("/" + id.TargetLocationID)
	}
	if IsSet(id.Qualifier) {
		b.WriteString(":" + id.Qualifier)
	}
	return b.String()
}

// FromHeader builds the ID of the sender's session as seen in h.
func FromHeader(h *message.Header) ID {
	get := func(t message.Tag) string {
		v, _ := h.Get(t)
		return v
	}
	return ID{
		BeginString:      get(message.TagBeginString),
		SenderCompID:     get(message.TagSenderCompID),
		SenderSubID:      get(message.TagSenderSubID),
		SenderLocationID: get(message.TagSenderLocationID),
		TargetCompID:     get(message.TagTargetCompID),
		TargetSubID:      get(message.TagTargetSubID),
		TargetLocationID: get(message.TagTargetLocationID),
	}
}

// ReverseFromHeader builds the ID of the receiving side's session, i.e.
// FromHeader with sender and target swapped.
func ReverseFromHeader(h *message.Header) ID {
	return FromHeader(h).Reverse()
}

// Reverse swaps the sender and target components.
func (id ID) Reverse() ID {
	return ID{
		BeginString:      id.BeginString,
		SenderCompID:     id.TargetCompID,
		SenderSubID:      id.TargetSubID,
		SenderLocationID: id.TargetLocationID,
		TargetCompID:     id.SenderCompID,
		TargetSubID:      id.SenderSubID,
		TargetLocationID: id.SenderLocationID,
		Qualifier:        id.Qualifier,
	}
}

// Apply writes the identity of id into h. Optional components are written
// only when set.
func Apply(id ID, h *message.Header) {
	h.SetField(message.TagBeginString, id.BeginString)
	h.SetField(message.TagSenderCompID, id.SenderCompID)
	h.SetField(message.TagTargetCompID, id.TargetCompID)
	if IsSet(id.SenderSubID) {
		h.SetField(message.TagSenderSubID, id.SenderSubID)
	}
	if IsSet(id.SenderLocationID) {
		h.SetField(message.TagSenderLocationID, id.SenderLocationID)
	}
	if IsSet(id.TargetSubID) {
		h.SetField(message.TagTargetSubID, id.TargetSubID)
	}
	if IsSet(id.TargetLocationID) {
		h.SetField(message.TagTargetLocationID, id.TargetLocationID)
	}
}
