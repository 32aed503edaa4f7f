// Package wire implements the framed TCP protocol spoken between the server
// and audio satellites.
//
// Every frame is an 8-byte header followed by the payload: a 4-byte ASCII
// tag, a little-endian uint32 payload length, then exactly that many payload
// bytes. Zero-length payloads are valid (control frames carry none). Tags
// unknown to a receiver are skipped, not errors; that keeps old satellites
// talking to newer servers and vice versa.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Client-to-server frame tags.
const (
	// TagOpen requests channel open after an explicit user action.
	TagOpen = "OPEN"

	// TagWake requests channel open after an on-device wake word.
	TagWake = "WAKE"

	// TagAudio carries int16 little-endian mono PCM at 16 kHz.
	TagAudio = "AUD0"

	// TagInterrupt signals barge-in: cancel the in-flight response.
	TagInterrupt = "INT0"

	// TagStop forces end-of-utterance on whatever audio is buffered.
	TagStop = "STOP"
)

// Server-to-client frame tags.
const (
	// TagReady tells the satellite the server is listening again.
	TagReady = "RDY0"

	// TagSpeech carries synthesized int16 PCM for playback.
	TagSpeech = "TTS0"

	// TagBeep carries a short generated tone (checkpoint or closing cue).
	TagBeep = "BEEP"

	// TagClose announces channel teardown; the connection closes after it.
	TagClose = "CLOS"
)

// HeaderSize is the fixed byte length of a frame header.
const HeaderSize = 8

// TagSize is the fixed byte length of a frame tag.
const TagSize = 4

// DefaultMaxPayload bounds accepted payload lengths. A header announcing
// more is a protocol violation, not a large read: it kills the connection
// before any allocation.
const DefaultMaxPayload = 1 << 20

// ErrProtocol is wrapped by every framing failure: short headers, truncated
// payloads, bad tag lengths and oversized length fields. Callers branch on
// it with errors.Is to tell protocol violations from ordinary I/O errors.
var ErrProtocol = errors.New("wire: protocol violation")

// Encode builds a complete frame for tag and payload. The tag must be
// exactly 4 ASCII bytes. A nil payload encodes as length zero.
func Encode(tag string, payload []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag %q is %d bytes, want %d", ErrProtocol, tag, len(tag), TagSize)
	}
	buf := make([]byte, HeaderSize+len(payload))
	copy(buf[:TagSize], tag)
	binary.LittleEndian.PutUint32(buf[TagSize:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Write encodes and writes one frame to w. The single Write call keeps
// header and payload in one segment for small frames.
func Write(w io.Writer, tag string, payload []byte) error {
	buf, err := Encode(tag, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write %s frame: %w", tag, err)
	}
	return nil
}

// Reader decodes frames from a byte stream, enforcing a payload size limit.
// It is not safe for concurrent use; each connection owns one Reader.
type Reader struct {
	r          io.Reader
	maxPayload uint32
	header     [HeaderSize]byte
}

// NewReader returns a Reader over r. maxPayload bounds accepted payload
// lengths; zero selects DefaultMaxPayload.
func NewReader(r io.Reader, maxPayload uint32) *Reader {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Reader{r: r, maxPayload: maxPayload}
}

// Next reads one frame and returns its tag and payload. The payload slice
// is freshly allocated and owned by the caller.
//
// A clean close at a frame boundary returns io.EOF untouched so callers can
// treat it as a normal disconnect. A stream that ends inside a frame, or a
// header announcing more than the payload limit, returns an error wrapping
// ErrProtocol.
func (rd *Reader) Next() (tag string, payload []byte, err error) {
	if _, err := io.ReadFull(rd.r, rd.header[:]); err != nil {
		if err == io.EOF {
			return "", nil, io.EOF
		}
		return "", nil, fmt.Errorf("%w: truncated header: %v", ErrProtocol, err)
	}
	tag = string(rd.header[:TagSize])
	length := binary.LittleEndian.Uint32(rd.header[TagSize:])
	if length > rd.maxPayload {
		return tag, nil, fmt.Errorf("%w: %s frame announces %d bytes, limit %d", ErrProtocol, tag, length, rd.maxPayload)
	}
	if length == 0 {
		return tag, nil, nil
	}
	payload = make([]byte, length)
	if _, err := io.ReadFull(rd.r, payload); err != nil {
		return tag, nil, fmt.Errorf("%w: truncated %s payload after %d announced bytes: %v", ErrProtocol, tag, length, err)
	}
	return tag, payload, nil
}
