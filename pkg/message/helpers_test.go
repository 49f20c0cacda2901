package message

import (
	"strconv"
	"strings"
)

// fix replaces '|' with SOH.
func fix(s string) string {
	return strings.ReplaceAll(s, "|", "\x01")
}

// frame builds a well-formed message from a pipe-delimited body that starts
// at MsgType and ends before CheckSum.
func frame(beginString, body string) string {
	b := fix(body)
	head := "8=" + beginString + "\x019=" + strconv.Itoa(len(b)) + "\x01"
	return head + b + "10=" + FormatCheckSum(checksum(head+b)) + "\x01"
}

// testDict is an in-memory Dictionary for codec tests.
type testDict struct {
	names      map[Tag]string
	values     map[Tag]map[string]string
	header     map[Tag]bool
	bodyGroups map[string]map[Tag]GroupSpec
}

const (
	tagSymbol       Tag = 55
	tagClOrdID      Tag = 11
	tagSide         Tag = 54
	tagNoMDEntries  Tag = 268
	tagMDEntryType  Tag = 269
	tagMDEntryPx    Tag = 270
	tagMDEntrySize  Tag = 271
	tagNoPartyIDs   Tag = 453
	tagPartyID      Tag = 448
	tagPartyIDSrc   Tag = 447
	tagPartyRole    Tag = 452
	tagCustomHeader Tag = 5000
)

func partySpec() *StaticGroupSpec {
	return NewGroupSpec(tagPartyID, tagPartyIDSrc, tagPartyRole)
}

func mdEntrySpec() *StaticGroupSpec {
	return NewGroupSpec(tagMDEntryType, tagMDEntryPx, tagMDEntrySize).
		WithNested(tagNoPartyIDs, partySpec())
}

func newTestDict() *testDict {
	return &testDict{
		names: map[Tag]string{
			TagBeginString:  "BeginString",
			TagBodyLength:   "BodyLength",
			TagMsgType:      "MsgType",
			TagSenderCompID: "SenderCompID",
			TagTargetCompID: "TargetCompID",
			TagMsgSeqNum:    "MsgSeqNum",
			TagCheckSum:     "CheckSum",
			tagSymbol:       "Symbol",
			tagNoMDEntries:  "NoMDEntries",
			tagMDEntryType:  "MDEntryType",
			tagMDEntryPx:    "MDEntryPx",
			tagMDEntrySize:  "MDEntrySize",
			tagNoPartyIDs:   "NoPartyIDs",
			tagPartyID:      "PartyID",
			tagPartyIDSrc:   "PartyIDSource",
		},
		values: map[Tag]map[string]string{
			tagMDEntryType: {"0": "BID", "1": "OFFER", "2": "TRADE"},
		},
		header: map[Tag]bool{tagCustomHeader: true},
		bodyGroups: map[string]map[Tag]GroupSpec{
			"W": {tagNoMDEntries: mdEntrySpec()},
		},
	}
}

func (d *testDict) IsHeaderField(t Tag) bool  { return d.header[t] }
func (d *testDict) IsTrailerField(t Tag) bool { return false }

func (d *testDict) FieldName(t Tag) (string, bool) {
	n, ok := d.names[t]
	return n, ok
}

func (d *testDict) FieldTag(name string) (Tag, bool) {
	for t, n := range d.names {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

func (d *testDict) ValueName(t Tag, v string) (string, bool) {
	n, ok := d.values[t][v]
	return n, ok
}

func (d *testDict) HeaderGroup(Tag) (GroupSpec, bool)  { return nil, false }
func (d *testDict) TrailerGroup(Tag) (GroupSpec, bool) { return nil, false }

func (d *testDict) BodyGroup(msgType string, t Tag) (GroupSpec, bool) {
	g, ok := d.bodyGroups[msgType][t]
	return g, ok
}
