// Package message implements the FIX tag=value wire format: ordered field
// maps with nested repeating groups, the header/body/trailer message model,
// parsing and serialization with BodyLength and CheckSum, reverse routing,
// and XML/JSON export.
//
// The package provides:
//   - FieldMap and Group containers that preserve insertion order
//   - Message parsing with optional dictionary-driven group recognition
//   - Serialization that recomputes BodyLength and CheckSum
//   - Stream framing for reading whole messages off a connection
package message

// SOH is the field terminator byte.
const SOH = '\x01'

// BeginString values.
const (
	BeginStringFIX40  = "FIX.4.0"
	BeginStringFIX41  = "FIX.4.1"
	BeginStringFIX42  = "FIX.4.2"
	BeginStringFIX43  = "FIX.4.3"
	BeginStringFIX44  = "FIX.4.4"
	BeginStringFIXT11 = "FIXT.1.1"
)

// Administrative MsgType values.
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSequenceReset = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
	MsgTypeXMLNonFIX     = "n"
)

// IsAdminMsgType reports whether msgType is one of the single-character
// session-level message types.
func IsAdminMsgType(msgType string) bool {
	if len(msgType) != 1 {
		return false
	}
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeReject,
		MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon, MsgTypeXMLNonFIX:
		return true
	}
	return false
}

// MsgTypeName returns a human-readable name for administrative message types.
func MsgTypeName(msgType string) string {
	switch msgType {
	case MsgTypeHeartbeat:
		return "Heartbeat"
	case MsgTypeTestRequest:
		return "TestRequest"
	case MsgTypeResendRequest:
		return "ResendRequest"
	case MsgTypeReject:
		return "Reject"
	case MsgTypeSequenceReset:
		return "SequenceReset"
	case MsgTypeLogout:
		return "Logout"
	case MsgTypeLogon:
		return "Logon"
	case MsgTypeXMLNonFIX:
		return "XMLnonFIX"
	default:
		return "Unknown"
	}
}
