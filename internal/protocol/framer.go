package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPending bounds the bytes buffered while waiting for a complete message.
const DefaultMaxPending = 1 << 20

// Framer splits a TCP byte stream into complete JSON values. Messages
// coalesced into one read or split across reads are both handled.
type Framer struct {
	buf        []byte
	maxPending int
}

// NewFramer creates a framer. maxPending <= 0 selects DefaultMaxPending.
func NewFramer(maxPending int) *Framer {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Framer{maxPending: maxPending}
}

// Push appends received bytes.
func (f *Framer) Push(b []byte) {
	f.buf = append(f.buf, b...)
}

// Pending returns the number of buffered bytes.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Next returns the next complete JSON value. It returns (nil, nil) when more
// bytes are needed. On a syntax error the bad bytes are skipped up to the
// next object that parses (or may still complete) and ErrMalformed is
// returned once; later messages stay buffered. An oversized partial message
// discards the buffer.
func (f *Framer) Next() (json.RawMessage, error) {
	trimmed := bytes.TrimLeft(f.buf, " \t\r\n")
	if len(trimmed) == 0 {
		f.Reset()
		return nil, nil
	}
	skipped := len(f.buf) - len(trimmed)

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var raw json.RawMessage
	err := dec.Decode(&raw)
	switch {
	case err == nil:
		consumed := skipped + int(dec.InputOffset())
		msg := make(json.RawMessage, len(raw))
		copy(msg, raw)
		f.buf = append(f.buf[:0], f.buf[consumed:]...)
		return msg, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if len(f.buf) > f.maxPending {
			f.Reset()
			return nil, fmt.Errorf("%w: partial message exceeds %d bytes", ErrMalformed, f.maxPending)
		}
		return nil, nil
	default:
		f.resync(trimmed)
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// resync drops bytes from the front of bad until what remains starts with an
// object that decodes or is incomplete. With no such object left the buffer
// is emptied.
func (f *Framer) resync(bad []byte) {
	rest := bad
	for {
		i := bytes.IndexByte(rest[1:], '{')
		if i < 0 {
			f.Reset()
			return
		}
		rest = rest[i+1:]
		var raw json.RawMessage
		err := json.NewDecoder(bytes.NewReader(rest)).Decode(&raw)
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			f.buf = append(f.buf[:0], rest...)
			return
		}
	}
}
