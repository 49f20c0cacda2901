package message

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	headerOrder  = []Tag{TagBeginString, TagBodyLength, TagMsgType}
	trailerOrder = []Tag{TagSignatureLength, TagSignature}
)

// Header is the standard header section. BeginString, BodyLength and
// MsgType always serialize first, in that order.
type Header struct {
	FieldMap
}

// Trailer is the standard trailer section. SignatureLength and Signature
// serialize before CheckSum, which is always last.
type Trailer struct {
	FieldMap
}

// Message is a FIX message composed of header, body and trailer sections.
//
// A message carries a structural-validity flag set during parsing when a
// header field appears after the body, a body field appears inside the
// trailer, or a field appears after CheckSum. The first offending tag is
// recorded; interpreting the flag is left to the session layer.
type Message struct {
	Header  Header
	Body    FieldMap
	Trailer Trailer

	validStructure bool
	badFieldTag    Tag
	receivedRaw    string
}

// New creates an empty message.
func New() *Message {
	return &Message{validStructure: true}
}

// NewWithType creates a message with BeginString and MsgType set.
func NewWithType(beginString, msgType string) *Message {
	m := New()
	m.Header.SetField(TagBeginString, beginString)
	m.Header.SetField(TagMsgType, msgType)
	return m
}

// HasValidStructure reports whether the parsed layout was in order. When it
// was not, the first out-of-place tag is returned.
func (m *Message) HasValidStructure() (bool, Tag) {
	return m.validStructure, m.badFieldTag
}

func (m *Message) markInvalidStructure(tag Tag) {
	if m.validStructure {
		m.validStructure = false
		m.badFieldTag = tag
	}
}

// MsgType returns the MsgType header field, or "" if absent.
func (m *Message) MsgType() string {
	v, _ := m.Header.Get(TagMsgType)
	return v
}

// IsAdmin reports whether the message is a session-level message.
func (m *Message) IsAdmin() bool {
	return IsAdminMsgType(m.MsgType())
}

// IsApp reports whether the message is an application message.
func (m *Message) IsApp() bool {
	return m.Header.Has(TagMsgType) && !m.IsAdmin()
}

// SeqNum returns MsgSeqNum, or 0 when absent or malformed.
func (m *Message) SeqNum() int {
	n, err := m.Header.GetInt(TagMsgSeqNum)
	if err != nil {
		return 0
	}
	return n
}

// RawString returns the text the message was parsed from, if any.
func (m *Message) RawString() string {
	return m.receivedRaw
}

// Clear empties every section and resets the structural flag.
func (m *Message) Clear() {
	m.Header.Clear()
	m.Body.Clear()
	m.Trailer.Clear()
	m.validStructure = true
	m.badFieldTag = 0
	m.receivedRaw = ""
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := New()
	c.Header.CopyFrom(&m.Header.FieldMap)
	c.Body.CopyFrom(&m.Body)
	c.Trailer.CopyFrom(&m.Trailer.FieldMap)
	c.validStructure = m.validStructure
	c.badFieldTag = m.badFieldTag
	c.receivedRaw = m.receivedRaw
	return c
}

// bodyText returns everything BodyLength covers: the header without
// BeginString and BodyLength, the body, and the trailer without CheckSum.
func (m *Message) bodyText() string {
	var b strings.Builder
	m.Header.writeTo(&b, headerOrder, TagBeginString, TagBodyLength)
	m.Body.writeTo(&b, nil)
	m.Trailer.writeTo(&b, trailerOrder, TagCheckSum)
	return b.String()
}

// BodyLength computes the BodyLength value for the current contents.
func (m *Message) BodyLength() int {
	return len(m.bodyText())
}

// CheckSum computes the CheckSum value for the current contents, after
// BodyLength has been brought up to date.
func (m *Message) CheckSum() int {
	s := m.String()
	return checksum(s[:strings.LastIndex(s, "10=")])
}

// String serializes the message. BodyLength and CheckSum are recomputed and
// stored back into the header and trailer.
func (m *Message) String() string {
	body := m.bodyText()
	m.Header.SetInt(TagBodyLength, len(body))

	var b strings.Builder
	b.Grow(len(body) + 32)
	if v, ok := m.Header.Get(TagBeginString); ok {
		b.WriteString("8=")
		b.WriteString(v)
		b.WriteByte(SOH)
	}
	b.WriteString("9=")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteByte(SOH)
	b.WriteString(body)

	sum := FormatCheckSum(checksum(b.String()))
	m.Trailer.SetField(TagCheckSum, sum)
	b.WriteString("10=")
	b.WriteString(sum)
	b.WriteByte(SOH)
	return b.String()
}

// Bytes serializes the message.
func (m *Message) Bytes() []byte {
	return []byte(m.String())
}

// Validate checks the BodyLength and CheckSum fields as they were received
// against the values computed from the current contents. Both are compared
// as integers, so leading zeros are accepted.
func (m *Message) Validate() error {
	seq, _ := m.Header.Get(TagMsgSeqNum)

	lenText, hasLen := m.Header.Get(TagBodyLength)
	sumText, hasSum := m.Trailer.Get(TagCheckSum)
	if !hasLen || !hasSum {
		return &InvalidMessageError{Reason: "BodyLength or CheckSum missing", SeqNum: seq}
	}
	receivedLen, err := strconv.Atoi(lenText)
	if err != nil {
		return &InvalidMessageError{Reason: "BodyLength or CheckSum has wrong format", Received: lenText, SeqNum: seq}
	}
	receivedSum, err := strconv.Atoi(sumText)
	if err != nil {
		return &InvalidMessageError{Reason: "BodyLength or CheckSum has wrong format", Received: sumText, SeqNum: seq}
	}

	body := m.bodyText()
	if receivedLen != len(body) {
		return &InvalidMessageError{
			Reason:   "Incorrect BodyLength",
			Expected: strconv.Itoa(len(body)),
			Received: lenText,
			SeqNum:   seq,
		}
	}

	// The sum covers BodyLength as received.
	var b strings.Builder
	if v, ok := m.Header.Get(TagBeginString); ok {
		b.WriteString("8=" + v + string(SOH))
	}
	b.WriteString("9=" + lenText + string(SOH))
	b.WriteString(body)
	if expected := checksum(b.String()); receivedSum != expected {
		return &InvalidMessageError{
			Reason:   "Incorrect CheckSum",
			Expected: FormatCheckSum(expected),
			Received: sumText,
			SeqNum:   seq,
		}
	}
	return nil
}

// FormatCheckSum renders a checksum as three zero-padded digits.
func FormatCheckSum(sum int) string {
	return fmt.Sprintf("%03d", sum%256)
}

func checksum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += int(s[i])
	}
	return sum % 256
}
