// Package session implements the FIX session layer: sequence numbering,
// logon/logout, heartbeats, test requests, resend and gap fill.
//
// A Session owns its MessageStore and event Log. Transport code hands it a
// Responder on connect and feeds it raw inbound messages through
// NextMessage and timer ticks through Next. The connection lifecycle
// (when to dial, when to give up) belongs to pkg/initiator, which drives
// sessions through ConnectionState.
package session

// ConnectionState is the transport-level state of a session as tracked by
// the lifecycle manager.
type ConnectionState int

const (
	// StateNone means the session is not managed (removed or never added).
	StateNone ConnectionState = iota

	// StateDisconnected means no connection exists and one may be attempted.
	StateDisconnected

	// StatePending means a connection attempt is in progress.
	StatePending

	// StateConnected means the transport is up; the protocol may or may
	// not be logged on.
	StateConnected
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateDisconnected:
		return "Disconnected"
	case StatePending:
		return "Pending"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the state is a defined value.
func (s ConnectionState) IsValid() bool {
	return s >= StateNone && s <= StateConnected
}

// RejectReason is a SessionRejectReason (373) value.
type RejectReason int

const (
	RejectInvalidTagNumber                   RejectReason = 0
	RejectRequiredTagMissing                 RejectReason = 1
	RejectTagNotDefinedForMsgType            RejectReason = 2
	RejectUndefinedTag                       RejectReason = 3
	RejectTagSpecifiedWithoutValue           RejectReason = 4
	RejectValueIsIncorrect                   RejectReason = 5
	RejectIncorrectDataFormat                RejectReason = 6
	RejectDecryptionProblem                  RejectReason = 7
	RejectSignatureProblem                   RejectReason = 8
	RejectCompIDProblem                      RejectReason = 9
	RejectSendingTimeAccuracyProblem         RejectReason = 10
	RejectInvalidMsgType                     RejectReason = 11
	RejectXMLValidationError                 RejectReason = 12
	RejectTagAppearsMoreThanOnce             RejectReason = 13
	RejectTagSpecifiedOutOfRequiredOrder     RejectReason = 14
	RejectRepeatingGroupFieldsOutOfOrder     RejectReason = 15
	RejectIncorrectNumInGroupCount           RejectReason = 16
	RejectNonDataValueIncludesFieldDelimiter RejectReason = 17
	RejectOther                              RejectReason = 99
)

var rejectReasonText = map[RejectReason]string{
	RejectInvalidTagNumber:                   "Invalid tag number",
	RejectRequiredTagMissing:                 "Required tag missing",
	RejectTagNotDefinedForMsgType:            "Tag not defined for this message type",
	RejectUndefinedTag:                       "Undefined Tag",
	RejectTagSpecifiedWithoutValue:           "Tag specified without a value",
	RejectValueIsIncorrect:                   "Value is incorrect (out of range) for this tag",
	RejectIncorrectDataFormat:                "Incorrect data format for value",
	RejectDecryptionProblem:                  "Decryption problem",
	RejectSignatureProblem:                   "Signature problem",
	RejectCompIDProblem:                      "CompID problem",
	RejectSendingTimeAccuracyProblem:         "SendingTime accuracy problem",
	RejectInvalidMsgType:                     "Invalid MsgType",
	RejectXMLValidationError:                 "XML Validation error",
	RejectTagAppearsMoreThanOnce:             "Tag appears more than once",
	RejectTagSpecifiedOutOfRequiredOrder:     "Tag specified out of required order",
	RejectRepeatingGroupFieldsOutOfOrder:     "Repeating group fields out of order",
	RejectIncorrectNumInGroupCount:           "Incorrect NumInGroup count for repeating group",
	RejectNonDataValueIncludesFieldDelimiter: "Non Data value includes field delimiter (SOH character)",
	RejectOther:                              "Other",
}

// String returns the standard description of the reason.
func (r RejectReason) String() string {
	if s, ok := rejectReasonText[r]; ok {
		return s
	}
	return "Unknown"
}
