package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/dictionary"
	"github.com/backkem/fix/pkg/message"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCreate(t *testing.T) {
	table := NewTable(0)
	app := &recordingApp{}
	f := NewFactory(FactoryConfig{Application: app, Table: table})

	s, err := f.Create(testID, config.DictionaryFrom(map[string]string{
		config.HeartBtInt: "20",
		config.StartTime:  "08:00:00",
		config.EndTime:    "17:00:00",
	}))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, s.HeartBtInt())
	assert.False(t, s.Schedule().NonStop)
	assert.True(t, s.settings.PersistMessages)
	assert.True(t, s.settings.ValidateIncoming)
	assert.Equal(t, DefaultLogonTimeout, s.settings.LogonTimeout)
	assert.Same(t, s, table.Find(testID))
}

func TestFactoryCreateErrors(t *testing.T) {
	fixt := sessionid.ID{BeginString: message.BeginStringFIXT11, SenderCompID: "BUY", TargetCompID: "SELL"}

	tests := []struct {
		name   string
		id     sessionid.ID
		values map[string]string
		want   error
	}{
		{"bad heartbeat", testID, map[string]string{config.HeartBtInt: "often"}, config.ErrInvalidSetting},
		{"negative timeout", testID, map[string]string{config.LogonTimeout: "-1"}, config.ErrInvalidSetting},
		{"bad flag", testID, map[string]string{config.ResetOnLogon: "perhaps"}, config.ErrInvalidSetting},
		{"FIXT needs DefaultApplVerID", fixt, map[string]string{}, config.ErrMissingSetting},
		{"bad schedule", testID, map[string]string{config.StartTime: "x", config.EndTime: "17:00:00"}, ErrInvalidSchedule},
		{"missing dictionary", testID, map[string]string{config.DataDictionary: "/nonexistent/fix.yaml"}, dictionary.ErrRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFactory(FactoryConfig{})
			_, err := f.Create(tt.id, config.DictionaryFrom(tt.values))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, config.ErrConfig)
		})
	}
}

func TestFactoryFIXT(t *testing.T) {
	fixt := sessionid.ID{BeginString: message.BeginStringFIXT11, SenderCompID: "BUY", TargetCompID: "SELL"}
	f := NewFactory(FactoryConfig{})
	s, err := f.Create(fixt, config.DictionaryFrom(map[string]string{config.DefaultApplVerID: "9"}))
	require.NoError(t, err)

	r := &fakeResponder{}
	require.NoError(t, s.Connect(r))
	sent := r.take(t)
	require.Len(t, sent, 1)
	assert.Equal(t, "9", get(sent[0], message.TagDefaultApplVerID))
}

func TestFactoryLoadsDictionaryOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields:\n  - {tag: 55, name: Symbol}\n"), 0o600))

	f := NewFactory(FactoryConfig{})
	values := map[string]string{config.DataDictionary: path}

	a, err := f.Create(testID, config.DictionaryFrom(values))
	require.NoError(t, err)
	other := testID
	other.TargetCompID = "OTHER"
	b, err := f.Create(other, config.DictionaryFrom(values))
	require.NoError(t, err)

	require.NotNil(t, a.dict)
	assert.Same(t, a.dict, b.dict)
	assert.Len(t, f.dicts, 1)
}
