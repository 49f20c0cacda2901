package message

import (
	"strconv"
	"strings"
)

// ParseOptions controls how raw text becomes a Message.
type ParseOptions struct {
	// Validate enables the header-order check and BodyLength/CheckSum
	// verification.
	Validate bool

	// SessionDictionary supplies custom header/trailer fields and
	// header/trailer groups. May be nil.
	SessionDictionary Dictionary

	// AppDictionary supplies body group layouts. May be nil, in which case
	// group counters are kept as plain fields and entries as repeated tags.
	AppDictionary Dictionary

	// IgnoreBody skips body fields; used when only routing information is
	// needed, e.g. to reject a message that failed to parse fully.
	IgnoreBody bool
}

// Parse parses raw into a new Message.
func Parse(raw string, opts ParseOptions) (*Message, error) {
	m := New()
	if err := m.parse(raw, opts); err != nil {
		return nil, err
	}
	return m, nil
}

// FromString clears m and refills it from raw.
func (m *Message) FromString(raw string, validate bool, sessionDict, appDict Dictionary) error {
	return m.parse(raw, ParseOptions{
		Validate:          validate,
		SessionDictionary: sessionDict,
		AppDictionary:     appDict,
	})
}

// FromStringHeader clears m and parses only the leading header fields,
// stopping at the first field that is not a header field.
func (m *Message) FromStringHeader(raw string) error {
	m.Clear()
	pos := 0
	for pos < len(raw) {
		f, next, err := ExtractField(raw, pos)
		if err != nil {
			return err
		}
		if !IsHeaderField(f.Tag, nil) {
			break
		}
		if !m.Header.SetFieldIfAbsent(f) {
			m.Header.RepeatedTags = append(m.Header.RepeatedTags, f)
		}
		pos = next
	}
	return nil
}

func (m *Message) parse(raw string, opts ParseOptions) error {
	m.Clear()
	m.receivedRaw = raw

	var (
		pos             int
		count           int
		msgType         string
		expectingHeader = true
		expectingBody   = true
		seenCheckSum    bool
		dataLen         = map[Tag]int{}
	)

	for pos < len(raw) {
		f, next, err := extractField(raw, pos, dataLen)
		if err != nil {
			return err
		}
		pos = next

		if opts.Validate && count < len(headerOrder) && f.Tag != headerOrder[count] {
			return &InvalidMessageError{Reason: "Header fields out of order"}
		}
		count++

		if seenCheckSum {
			m.markInvalidStructure(f.Tag)
		}
		trackDataLength(f, dataLen)

		switch {
		case IsHeaderField(f.Tag, opts.SessionDictionary):
			if !expectingHeader {
				m.markInvalidStructure(f.Tag)
			}
			if f.Tag == TagMsgType {
				msgType = f.Value
			}
			if !m.Header.SetFieldIfAbsent(f) {
				m.Header.RepeatedTags = append(m.Header.RepeatedTags, f)
			}
			if opts.SessionDictionary != nil {
				if spec, ok := opts.SessionDictionary.HeaderGroup(f.Tag); ok {
					if pos, err = parseGroup(raw, pos, f.Tag, spec, &m.Header.FieldMap); err != nil {
						return err
					}
				}
			}

		case IsTrailerField(f.Tag, opts.SessionDictionary):
			expectingHeader = false
			expectingBody = false
			if f.Tag == TagCheckSum {
				seenCheckSum = true
			}
			if !m.Trailer.SetFieldIfAbsent(f) {
				m.Trailer.RepeatedTags = append(m.Trailer.RepeatedTags, f)
			}
			if opts.SessionDictionary != nil {
				if spec, ok := opts.SessionDictionary.TrailerGroup(f.Tag); ok {
					if pos, err = parseGroup(raw, pos, f.Tag, spec, &m.Trailer.FieldMap); err != nil {
						return err
					}
				}
			}

		default:
			if !expectingBody {
				m.markInvalidStructure(f.Tag)
			}
			expectingHeader = false
			if opts.IgnoreBody {
				continue
			}
			if !m.Body.SetFieldIfAbsent(f) {
				m.Body.RepeatedTags = append(m.Body.RepeatedTags, f)
			}
			if opts.AppDictionary != nil {
				if spec, ok := opts.AppDictionary.BodyGroup(msgType, f.Tag); ok {
					if pos, err = parseGroup(raw, pos, f.Tag, spec, &m.Body); err != nil {
						return err
					}
				}
			}
		}
	}

	if opts.Validate {
		return m.Validate()
	}
	return nil
}

// parseGroup consumes the entries of the group counted by counter, starting
// right after the counter field. Parsing stops at the first field that is
// not a member; pos is rewound so the enclosing scope reads it.
func parseGroup(raw string, pos int, counter Tag, spec GroupSpec, parent *FieldMap) (int, error) {
	delim := spec.Delim()
	var entry *Group
	dataLen := map[Tag]int{}

	for pos < len(raw) {
		f, next, err := extractField(raw, pos, dataLen)
		if err != nil {
			return pos, err
		}

		if f.Tag == delim {
			if entry != nil {
				parent.addGroup(entry, false)
			}
			entry = NewGroup(counter, delim)
		} else if !spec.IsMember(f.Tag) {
			break
		}
		pos = next
		trackDataLength(f, dataLen)

		if entry == nil {
			return pos, &MissingGroupDelimiterError{GroupTag: counter, DelimTag: delim}
		}
		if !entry.SetFieldIfAbsent(f) {
			return pos, &RepeatedTagWithoutGroupDelimiterError{GroupTag: counter, Tag: f.Tag}
		}
		if nested, ok := spec.Nested(f.Tag); ok {
			if pos, err = parseGroup(raw, pos, f.Tag, nested, &entry.FieldMap); err != nil {
				return pos, err
			}
		}
	}

	if entry != nil {
		parent.addGroup(entry, false)
	}
	return pos, nil
}

// ExtractField reads one tag=value field starting at pos and returns it
// with the position just past its SOH terminator.
func ExtractField(raw string, pos int) (Field, int, error) {
	return extractField(raw, pos, nil)
}

// dataFields maps length fields to the data fields whose values may embed
// SOH and must be read by length.
var dataFields = map[Tag]Tag{
	TagSecureDataLen:   TagSecureData,
	TagXMLDataLen:      TagXMLData,
	TagSignatureLength: TagSignature,
}

func trackDataLength(f Field, dataLen map[Tag]int) {
	data, ok := dataFields[f.Tag]
	if !ok {
		delete(dataLen, f.Tag)
		return
	}
	if n, err := strconv.Atoi(f.Value); err == nil && n >= 0 {
		dataLen[data] = n
	}
}

func extractField(raw string, pos int, dataLen map[Tag]int) (Field, int, error) {
	if pos >= len(raw) {
		return Field{}, pos, &ParseError{Pos: pos, Reason: "unexpected end of message"}
	}
	eq := strings.IndexByte(raw[pos:], '=')
	if eq < 0 {
		return Field{}, pos, &ParseError{Pos: pos, Reason: "missing '=' separator"}
	}
	tagText := raw[pos : pos+eq]
	tag, err := strconv.Atoi(tagText)
	if err != nil || tag <= 0 {
		return Field{}, pos, &ParseError{Pos: pos, Reason: "invalid tag number " + strconv.Quote(tagText)}
	}
	start := pos + eq + 1

	if n, ok := dataLen[Tag(tag)]; ok {
		end := start + n
		if end < len(raw) && raw[end] == SOH {
			delete(dataLen, Tag(tag))
			return Field{Tag: Tag(tag), Value: raw[start:end]}, end + 1, nil
		}
	}

	soh := strings.IndexByte(raw[start:], SOH)
	if soh < 0 {
		return Field{}, pos, &ParseError{Pos: start, Reason: "missing field terminator"}
	}
	end := start + soh
	return Field{Tag: Tag(tag), Value: raw[start:end]}, end + 1, nil
}

// GetMsgType returns the MsgType value of raw without a full parse.
func GetMsgType(raw string) (string, error) {
	const marker = "\x0135="
	i := strings.Index(raw, marker)
	if i < 0 {
		return "", &InvalidMessageError{Reason: "MsgType missing"}
	}
	start := i + len(marker)
	end := strings.IndexByte(raw[start:], SOH)
	if end < 0 {
		return "", &ParseError{Pos: start, Reason: "missing field terminator"}
	}
	return raw[start : start+end], nil
}

// ExtractBeginString returns the BeginString value of raw, which must be the
// first field.
func ExtractBeginString(raw string) (string, error) {
	f, _, err := ExtractField(raw, 0)
	if err != nil {
		return "", err
	}
	if f.Tag != TagBeginString {
		return "", &InvalidMessageError{Reason: "BeginString must be the first field"}
	}
	return f.Value, nil
}
