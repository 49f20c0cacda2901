package message

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

// Stream framing constants.
const (
	// DefaultMaxMessageSize bounds a single framed message.
	DefaultMaxMessageSize = 1 << 20

	// readChunkSize is the size of one read from the underlying stream.
	// Packet-oriented test connections deliver whole writes per read, so it
	// must exceed any single write.
	readChunkSize = 64 * 1024

	// checkSumFieldLen is the length of "10=NNN\x01".
	checkSumFieldLen = 7
)

var beginStringPrefix = []byte("8=FIX")

// StreamReader splits a byte stream into whole FIX messages using the
// BodyLength field. Bytes belonging to an incomplete message are kept
// across calls, so a read deadline expiring mid-message loses nothing.
type StreamReader struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	maxSize int
}

// NewStreamReader creates a stream reader with DefaultMaxMessageSize.
func NewStreamReader(r io.Reader) *StreamReader {
	return NewStreamReaderSize(r, DefaultMaxMessageSize)
}

// NewStreamReaderSize creates a stream reader rejecting messages longer
// than maxSize bytes.
func NewStreamReaderSize(r io.Reader, maxSize int) *StreamReader {
	return &StreamReader{
		r:       r,
		chunk:   make([]byte, readChunkSize),
		maxSize: maxSize,
	}
}

// Read returns the next complete message. Errors from the underlying
// reader are returned as-is (including timeouts); buffered partial data is
// retained for the next call.
func (sr *StreamReader) Read() (string, error) {
	for {
		msg, err := sr.extract()
		if err != nil {
			return "", err
		}
		if msg != "" {
			return msg, nil
		}

		n, err := sr.r.Read(sr.chunk)
		if n > 0 {
			sr.buf = append(sr.buf, sr.chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				continue
			}
			return "", err
		}
	}
}

// Buffered returns the number of bytes held for an incomplete message.
func (sr *StreamReader) Buffered() int {
	return len(sr.buf)
}

// extract pops one message off the buffer. It returns "" with a nil error
// when more bytes are needed.
func (sr *StreamReader) extract() (string, error) {
	// Discard garbage before the next BeginString.
	start := bytes.Index(sr.buf, beginStringPrefix)
	if start < 0 {
		if keep := len(beginStringPrefix) - 1; len(sr.buf) > keep {
			sr.buf = sr.buf[len(sr.buf)-keep:]
		}
		return "", nil
	}
	if start > 0 {
		sr.buf = sr.buf[start:]
	}

	soh1 := bytes.IndexByte(sr.buf, SOH)
	if soh1 < 0 {
		return "", sr.overflow()
	}
	rest := sr.buf[soh1+1:]
	if len(rest) < 2 {
		return "", nil
	}
	if !bytes.HasPrefix(rest, []byte("9=")) {
		sr.buf = sr.buf[soh1+1:]
		return "", ErrBadFraming
	}
	soh2 := bytes.IndexByte(rest, SOH)
	if soh2 < 0 {
		return "", sr.overflow()
	}
	bodyLen, err := strconv.Atoi(string(rest[2:soh2]))
	if err != nil || bodyLen < 0 {
		sr.buf = rest[soh2+1:]
		return "", ErrBadFraming
	}
	if bodyLen > sr.maxSize {
		sr.buf = sr.buf[soh1+1:]
		return "", ErrMessageTooLong
	}

	total := soh1 + 1 + soh2 + 1 + bodyLen + checkSumFieldLen
	if err := sr.checkSize(total); err != nil {
		sr.buf = sr.buf[soh1+1:]
		return "", err
	}
	if len(sr.buf) < total {
		return "", nil
	}

	trailer := sr.buf[total-checkSumFieldLen : total]
	if !bytes.HasPrefix(trailer, []byte("10=")) || trailer[checkSumFieldLen-1] != SOH {
		sr.buf = sr.buf[soh1+1:]
		return "", ErrBadFraming
	}

	msg := string(sr.buf[:total])
	sr.buf = sr.buf[total:]
	return msg, nil
}

// overflow drops the buffer when an unterminated prefix grows past the
// size limit.
func (sr *StreamReader) overflow() error {
	if err := sr.checkSize(len(sr.buf)); err != nil {
		sr.buf = nil
		return err
	}
	return nil
}

func (sr *StreamReader) checkSize(n int) error {
	if n > sr.maxSize {
		return ErrMessageTooLong
	}
	return nil
}

// StreamWriter writes serialized messages to a stream.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a stream writer.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteMessage serializes m and writes it in a single call.
func (sw *StreamWriter) WriteMessage(m *Message) error {
	return sw.WriteString(m.String())
}

// WriteString writes an already serialized message in a single call.
func (sw *StreamWriter) WriteString(raw string) error {
	_, err := io.WriteString(sw.w, raw)
	return err
}
