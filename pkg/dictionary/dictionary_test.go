package dictionary

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/backkem/fix/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marketData = `
fields:
  - {tag: 55, name: Symbol}
  - tag: 269
    name: MDEntryType
    values: {"0": BID, "1": OFFER}
  - {tag: 268, name: NoMDEntries}
  - {tag: 270, name: MDEntryPx}
  - {tag: 453, name: NoPartyIDs}
  - {tag: 448, name: PartyID}
  - {tag: 5000, name: GatewayTag}
header: [5000]
messages:
  W:
    name: MarketDataSnapshotFullRefresh
    groups:
      - counter: 268
        delim: 269
        members: [269, 270]
        groups:
          - counter: 453
            delim: 448
            members: [448]
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(marketData))
	require.NoError(t, err)

	name, ok := d.FieldName(55)
	assert.True(t, ok)
	assert.Equal(t, "Symbol", name)

	tag, ok := d.FieldTag("MDEntryType")
	assert.True(t, ok)
	assert.Equal(t, message.Tag(269), tag)

	tag, ok = d.FieldTag("9999")
	assert.True(t, ok)
	assert.Equal(t, message.Tag(9999), tag)

	_, ok = d.FieldTag("Nope")
	assert.False(t, ok)

	v, ok := d.ValueName(269, "1")
	assert.True(t, ok)
	assert.Equal(t, "OFFER", v)

	assert.True(t, d.IsHeaderField(5000))
	assert.False(t, d.IsTrailerField(5000))

	n, ok := d.MessageName("W")
	assert.True(t, ok)
	assert.Equal(t, "MarketDataSnapshotFullRefresh", n)

	g, ok := d.BodyGroup("W", 268)
	require.True(t, ok)
	assert.Equal(t, message.Tag(269), g.Delim())
	assert.True(t, g.IsMember(270))
	assert.True(t, g.IsMember(453))
	nested, ok := g.Nested(453)
	require.True(t, ok)
	assert.Equal(t, message.Tag(448), nested.Delim())

	_, ok = d.BodyGroup("X", 268)
	assert.False(t, ok)
}

func TestParseDrivesCodec(t *testing.T) {
	d, err := Parse([]byte(marketData))
	require.NoError(t, err)

	m := message.NewWithType(message.BeginStringFIX44, "W")
	m.Header.SetField(message.TagSenderCompID, "A")
	m.Header.SetField(message.TagTargetCompID, "B")
	m.Header.SetInt(message.TagMsgSeqNum, 1)
	m.Body.SetField(55, "EUR/USD")
	for _, px := range []string{"1.1", "1.2"} {
		g := message.NewGroup(268, 269)
		g.SetField(269, "0")
		g.SetField(270, px)
		m.Body.AddGroup(g)
	}

	parsed, err := message.Parse(m.String(), message.ParseOptions{
		Validate:          true,
		SessionDictionary: d,
		AppDictionary:     d,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.Body.GroupCount(268))
	entry, err := parsed.Body.Group(2, 268)
	require.NoError(t, err)
	px, _ := entry.Get(270)
	assert.Equal(t, "1.2", px)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "fields: [\n"},
		{"field without name", "fields:\n  - {tag: 1}\n"},
		{"duplicate field", "fields:\n  - {tag: 1, name: A}\n  - {tag: 1, name: B}\n"},
		{"group without delim", "messages:\n  W:\n    groups:\n      - {counter: 268}\n"},
		{"nested group without counter", "header_groups:\n  - {counter: 627, delim: 628, groups: [{delim: 1}]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix44.yaml")
	require.NoError(t, os.WriteFile(path, []byte(marketData), 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	_, ok := d.FieldName(448)
	assert.True(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrRead))
}
