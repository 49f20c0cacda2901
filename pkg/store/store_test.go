package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = sessionid.ID{BeginString: "FIX.4.4", SenderCompID: "BUY", TargetCompID: "SELL"}

func TestPrefix(t *testing.T) {
	tests := []struct {
		id   sessionid.ID
		want string
	}{
		{testID, "FIX.4.4-BUY-SELL"},
		{sessionid.ID{
			BeginString: "FIX.4.2", SenderCompID: "A", SenderSubID: "S", SenderLocationID: "L",
			TargetCompID: "B", TargetSubID: "T", Qualifier: "q",
		}, "FIX.4.2-A_S_L-B_T-q"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Prefix(tt.id))
	}
}

// storeCases builds one fresh store per implementation.
func storeCases(t *testing.T) map[string]MessageStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), testID, nil)
	require.NoError(t, err)

	bf, err := NewBadgerStoreFactory("")
	require.NoError(t, err)
	t.Cleanup(func() { bf.Close() })
	bs, err := bf.Create(testID)
	require.NoError(t, err)

	stores := map[string]MessageStore{
		"memory": NewMemoryStore(),
		"file":   fs,
		"badger": bs,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestMessageStore(t *testing.T) {
	for name, s := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 1, s.NextSenderMsgSeqNum())
			assert.Equal(t, 1, s.NextTargetMsgSeqNum())
			assert.False(t, s.CreationTime().IsZero())

			require.NoError(t, s.Set(5, "msgA"))
			require.NoError(t, s.Set(7, "msgB"))

			got, err := s.Get(5, 7)
			require.NoError(t, err)
			assert.Equal(t, []string{"msgA", "msgB"}, got)

			got, err = s.Get(6, 6)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, s.Set(5, "msgA2"))
			got, err = s.Get(1, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"msgA2", "msgB"}, got)

			require.NoError(t, s.IncrNextSenderMsgSeqNum())
			require.NoError(t, s.IncrNextTargetMsgSeqNum())
			require.NoError(t, s.IncrNextTargetMsgSeqNum())
			assert.Equal(t, 2, s.NextSenderMsgSeqNum())
			assert.Equal(t, 3, s.NextTargetMsgSeqNum())

			require.NoError(t, s.SetNextSenderMsgSeqNum(42))
			require.NoError(t, s.SetNextTargetMsgSeqNum(17))
			assert.Equal(t, 42, s.NextSenderMsgSeqNum())
			assert.Equal(t, 17, s.NextTargetMsgSeqNum())

			require.NoError(t, s.Reset())
			assert.Equal(t, 1, s.NextSenderMsgSeqNum())
			assert.Equal(t, 1, s.NextTargetMsgSeqNum())
			got, err = s.Get(1, 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestFileStorePersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testID, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(1, "8=FIX.4.4\x01first"))
	require.NoError(t, s.Set(2, "8=FIX.4.4\x01second"))
	require.NoError(t, s.SetNextSenderMsgSeqNum(3))
	require.NoError(t, s.SetNextTargetMsgSeqNum(9))
	created := s.CreationTime()
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, "FIX.4.4-BUY-SELL.seqnums"))
	require.NoError(t, err)
	assert.Equal(t, "00000000000000000003 : 00000000000000000009  ", string(data))

	header, err := os.ReadFile(filepath.Join(dir, "FIX.4.4-BUY-SELL.header"))
	require.NoError(t, err)
	assert.Equal(t, "1,0,15\n2,15,16\n", string(header))

	s, err = NewFileStore(dir, testID, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.NextSenderMsgSeqNum())
	assert.Equal(t, 9, s.NextTargetMsgSeqNum())
	assert.True(t, created.Equal(s.CreationTime()))

	got, err := s.Get(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"8=FIX.4.4\x01first", "8=FIX.4.4\x01second"}, got)
}

func TestFileStoreRefresh(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileStore(dir, testID, nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewFileStore(dir, testID, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.SetNextSenderMsgSeqNum(11))
	require.NoError(t, a.Set(10, "late"))
	assert.Equal(t, 1, b.NextSenderMsgSeqNum())

	require.NoError(t, b.Refresh())
	assert.Equal(t, 11, b.NextSenderMsgSeqNum())
	got, err := b.Get(10, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, got)
}

func TestFileStoreCorruptSeqNums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Prefix(testID)+".seqnums")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := NewFileStore(dir, testID, nil)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestFileStoreSkipsMalformedHeaderLines(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, Prefix(testID))
	require.NoError(t, os.WriteFile(prefix+".body", []byte("abcdef"), 0o644))
	require.NoError(t, os.WriteFile(prefix+".header", []byte("1,0,3\nbroken\n2,3\n3,3,3\n"), 0o644))

	s, err := NewFileStore(dir, testID, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, got)
}

func TestFileStoreTornWrite(t *testing.T) {
	t.Run("unindexed body bytes", func(t *testing.T) {
		dir := t.TempDir()
		prefix := filepath.Join(dir, Prefix(testID))
		require.NoError(t, os.WriteFile(prefix+".body", []byte("abcXYZ"), 0o644))
		require.NoError(t, os.WriteFile(prefix+".header", []byte("1,0,3\n"), 0o644))

		s, err := NewFileStore(dir, testID, nil)
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, s.Set(2, "def"))
		got, err := s.Get(1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"abc", "def"}, got)

		header, err := os.ReadFile(prefix + ".header")
		require.NoError(t, err)
		assert.Equal(t, "1,0,3\n2,6,3\n", string(header))
	})

	t.Run("index past end of body", func(t *testing.T) {
		dir := t.TempDir()
		prefix := filepath.Join(dir, Prefix(testID))
		require.NoError(t, os.WriteFile(prefix+".body", []byte("abcdef"), 0o644))
		require.NoError(t, os.WriteFile(prefix+".header", []byte("1,0,3\n2,3,10\n"), 0o644))

		s, err := NewFileStore(dir, testID, nil)
		require.NoError(t, err)
		defer s.Close()

		got, err := s.Get(1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"abc"}, got)
	})
}

func TestFileStoreClosed(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), testID, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set(1, "x"), ErrClosed)
	_, err = s.Get(1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.IncrNextSenderMsgSeqNum(), ErrClosed)
}

func TestFileStoreFactory(t *testing.T) {
	settings := config.NewSessionSettings()
	d := config.NewDictionary()
	dir := filepath.Join(t.TempDir(), "nested", "store")
	d.Set(config.FileStorePath, dir)
	require.NoError(t, settings.Set(testID, d))

	other := sessionid.ID{BeginString: "FIX.4.4", SenderCompID: "X", TargetCompID: "Y"}
	require.NoError(t, settings.Set(other, config.NewDictionary()))

	f := NewFileStoreFactory(settings, nil)
	s, err := f.Create(testID)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "FIX.4.4-BUY-SELL.session"))
	assert.NoError(t, err)

	_, err = f.Create(other)
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestBadgerStoreSharedDatabase(t *testing.T) {
	f, err := NewBadgerStoreFactory(t.TempDir())
	require.NoError(t, err)
	defer f.Close()

	qualified := testID
	qualified.Qualifier = "q"

	a, err := f.Create(testID)
	require.NoError(t, err)
	b, err := f.Create(qualified)
	require.NoError(t, err)

	require.NoError(t, a.Set(1, "a1"))
	require.NoError(t, b.Set(1, "b1"))
	require.NoError(t, a.SetNextSenderMsgSeqNum(5))

	require.NoError(t, a.Reset())
	got, err := b.Get(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, got)
	assert.Equal(t, 1, a.NextSenderMsgSeqNum())

	require.NoError(t, b.SetNextTargetMsgSeqNum(8))
	again, err := f.Create(qualified)
	require.NoError(t, err)
	assert.Equal(t, 8, again.NextTargetMsgSeqNum())
	assert.True(t, b.CreationTime().Equal(again.CreationTime()))
}

func TestMemoryStoreFactory(t *testing.T) {
	f := NewMemoryStoreFactory()
	a, err := f.Create(testID)
	require.NoError(t, err)
	b, err := f.Create(testID)
	require.NoError(t, err)
	require.NoError(t, a.Set(1, "x"))
	got, _ := b.Get(1, 1)
	assert.Empty(t, got)
	assert.NoError(t, b.Refresh())
}

func TestSeqNumsFormat(t *testing.T) {
	text := formatSeqNums(12, 345)
	assert.True(t, strings.HasSuffix(text, "  "))
	s, tg, err := parseSeqNums(strings.TrimSpace(text))
	require.NoError(t, err)
	assert.Equal(t, 12, s)
	assert.Equal(t, 345, tg)
}
