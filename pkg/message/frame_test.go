package message

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReader(t *testing.T) {
	msg1 := frame("FIX.4.4", "35=A|49=A|56=B|34=1|98=0|108=30|")
	msg2 := frame("FIX.4.4", "35=0|49=A|56=B|34=2|")

	t.Run("whole messages", func(t *testing.T) {
		sr := NewStreamReader(strings.NewReader(msg1 + msg2))
		got, err := sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg1, got)
		got, err = sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg2, got)
		_, err = sr.Read()
		assert.True(t, errors.Is(err, io.EOF))
	})

	t.Run("one byte at a time", func(t *testing.T) {
		sr := NewStreamReader(iotest.OneByteReader(strings.NewReader(msg1 + msg2)))
		for _, want := range []string{msg1, msg2} {
			got, err := sr.Read()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("leading garbage", func(t *testing.T) {
		sr := NewStreamReader(strings.NewReader("junk\x01" + msg1))
		got, err := sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg1, got)
	})

	t.Run("partial message survives timeout", func(t *testing.T) {
		half := len(msg1) / 2
		r := iotest.TimeoutReader(strings.NewReader(msg1[:half]))
		sr := NewStreamReader(r)
		_, err := sr.Read()
		require.Error(t, err)
		assert.Equal(t, half, sr.Buffered())

		sr.r = strings.NewReader(msg1[half:])
		got, err := sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg1, got)
	})

	t.Run("bad body length", func(t *testing.T) {
		sr := NewStreamReader(strings.NewReader(fix("8=FIX.4.4|9=x|35=0|10=000|") + msg2))
		_, err := sr.Read()
		assert.True(t, errors.Is(err, ErrBadFraming))
		got, err := sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg2, got)
	})

	t.Run("too long", func(t *testing.T) {
		sr := NewStreamReaderSize(strings.NewReader(msg1), 16)
		_, err := sr.Read()
		assert.True(t, errors.Is(err, ErrMessageTooLong))
	})

	t.Run("body length overflows", func(t *testing.T) {
		head := fix("8=FIX.4.4|9=9223372036854775800|35=0|")
		sr := NewStreamReader(strings.NewReader(head + strings.Repeat("x", 40) + msg2))
		_, err := sr.Read()
		assert.True(t, errors.Is(err, ErrMessageTooLong))
		got, err := sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg2, got)
	})

	t.Run("body length above limit", func(t *testing.T) {
		sr := NewStreamReaderSize(strings.NewReader(fix("8=FIX.4.4|9=5000|35=0|")+msg2), 256)
		_, err := sr.Read()
		assert.True(t, errors.Is(err, ErrMessageTooLong))
		got, err := sr.Read()
		require.NoError(t, err)
		assert.Equal(t, msg2, got)
	})
}

func TestStreamWriter(t *testing.T) {
	var buf bytes.Buffer
	sw := NewStreamWriter(&buf)

	m := NewWithType(BeginStringFIX44, "0")
	require.NoError(t, sw.WriteMessage(m))

	sr := NewStreamReader(&buf)
	got, err := sr.Read()
	require.NoError(t, err)

	parsed, err := Parse(got, ParseOptions{Validate: true})
	require.NoError(t, err)
	assert.Equal(t, "0", parsed.MsgType())
}
