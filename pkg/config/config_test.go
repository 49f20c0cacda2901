package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/backkem/fix/pkg/sessionid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsYAML = `
default:
  ConnectionType: initiator
  ReconnectInterval: 5
  HeartBtInt: 20
  SocketUseSSL: false
sessions:
  - BeginString: FIX.4.4
    SenderCompID: BUY
    TargetCompID: SELL
    SocketConnectHost: 127.0.0.1
    SocketConnectPort: 9878
    SocketConnectHost1: 10.0.0.2
    SocketConnectPort1: 9879
  - BeginString: FIX.4.2
    SenderCompID: BUY
    TargetCompID: OTHER
    SessionQualifier: q1
    ConnectionType: acceptor
    HeartBtInt: 45
`

func TestDictionary(t *testing.T) {
	d := NewDictionary()
	d.Set("HeartBtInt", "30")
	d.SetBool("ResetOnLogon", true)
	d.Set("Name", "x")

	assert.True(t, d.Has("heartbtint"))
	assert.True(t, d.Has("HEARTBTINT"))

	n, err := d.Int(HeartBtInt)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	b, err := d.Bool(ResetOnLogon)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = d.Int("Name")
	assert.True(t, errors.Is(err, ErrInvalidSetting))
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = d.String("Missing")
	assert.True(t, errors.Is(err, ErrMissingSetting))

	n, err = d.IntDefault("Missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	dur, err := d.Seconds(HeartBtInt, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, dur)

	other := DictionaryFrom(map[string]string{"heartbtint": "99", "extra": "1"})
	d.Merge(other)
	n, _ = d.Int(HeartBtInt)
	assert.Equal(t, 30, n)
	assert.True(t, d.Has("Extra"))

	c := d.Clone()
	c.Set("Name", "y")
	assert.Equal(t, "x", d.StringDefault("Name", ""))
}

func TestSessionSettings(t *testing.T) {
	s := NewSessionSettings()
	id := sessionid.ID{BeginString: "FIX.4.4", SenderCompID: "A", TargetCompID: "B"}

	require.NoError(t, s.Set(id, NewDictionary()))
	err := s.Set(id, NewDictionary())
	assert.True(t, errors.Is(err, ErrDuplicateSession))

	d, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "A", d.StringDefault(SenderCompID, ""))
	assert.False(t, d.Has(SenderSubID))

	s.Remove(id)
	assert.False(t, s.Has(id))
	_, err = s.Get(id)
	assert.True(t, errors.Is(err, ErrUnknownSession))
	assert.Empty(t, s.SessionIDs())
}

func TestSessionSettingsMergesDefaults(t *testing.T) {
	s := NewSessionSettings()
	defaults := NewDictionary()
	defaults.Set(HeartBtInt, "30")
	defaults.Set(ReconnectInterval, "5")
	s.SetDefaults(defaults)

	own := NewDictionary()
	own.Set(HeartBtInt, "10")
	id := sessionid.ID{BeginString: "FIX.4.4", SenderCompID: "A", TargetCompID: "B"}
	require.NoError(t, s.Set(id, own))

	d, err := s.Get(id)
	require.NoError(t, err)
	hb, err := d.Int(HeartBtInt)
	require.NoError(t, err)
	assert.Equal(t, 10, hb)
	ri, err := d.Int(ReconnectInterval)
	require.NoError(t, err)
	assert.Equal(t, 5, ri)
	assert.False(t, own.Has(ReconnectInterval))
}

func TestIDFromDictionary(t *testing.T) {
	d := DictionaryFrom(map[string]string{
		BeginString:      "FIX.4.4",
		SenderCompID:     "A",
		SenderSubID:      "S",
		TargetCompID:     "B",
		SessionQualifier: "q",
	})
	id, err := IDFromDictionary(d)
	require.NoError(t, err)
	assert.Equal(t, sessionid.ID{
		BeginString: "FIX.4.4", SenderCompID: "A", SenderSubID: "S", TargetCompID: "B", Qualifier: "q",
	}, id)

	d.Remove(TargetCompID)
	_, err = IDFromDictionary(d)
	assert.True(t, errors.Is(err, ErrMissingSetting))
}

func TestLoadReader(t *testing.T) {
	s, err := LoadReader(strings.NewReader(settingsYAML), "yaml")
	require.NoError(t, err)

	ids := s.SessionIDs()
	require.Len(t, ids, 2)
	assert.Equal(t, sessionid.ID{BeginString: "FIX.4.4", SenderCompID: "BUY", TargetCompID: "SELL"}, ids[0])
	assert.Equal(t, "q1", ids[1].Qualifier)

	first, err := s.Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeInitiator, first.StringDefault(ConnectionType, ""))
	hb, _ := first.Int(HeartBtInt)
	assert.Equal(t, 20, hb)
	port, _ := first.Int("SocketConnectPort1")
	assert.Equal(t, 9879, port)
	ssl, err := first.Bool(SocketUseSSL)
	require.NoError(t, err)
	assert.False(t, ssl)

	second, err := s.Get(ids[1])
	require.NoError(t, err)
	assert.Equal(t, ConnectionTypeAcceptor, second.StringDefault(ConnectionType, ""))
	hb, _ = second.Int(HeartBtInt)
	assert.Equal(t, 45, hb)

	ri, _ := s.Defaults().Int(ReconnectInterval)
	assert.Equal(t, 5, ri)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FIX_DEFAULT_RECONNECTINTERVAL", "11")
	s, err := LoadReader(strings.NewReader(settingsYAML), "yaml")
	require.NoError(t, err)
	ri, _ := s.Defaults().Int(ReconnectInterval)
	assert.Equal(t, 11, ri)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	doc := `{"default":{"ConnectionType":"initiator"},"sessions":[{"BeginString":"FIX.4.4","SenderCompID":"A","TargetCompID":"B"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing target", "sessions:\n  - BeginString: FIX.4.4\n    SenderCompID: A\n"},
		{"duplicate", "sessions:\n  - {BeginString: FIX.4.4, SenderCompID: A, TargetCompID: B}\n  - {BeginString: FIX.4.4, SenderCompID: A, TargetCompID: B}\n"},
		{"not a list", "sessions: foo\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReader(strings.NewReader(tt.doc), "yaml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
		})
	}
}
