// Package protocol implements the length-prefixed frame codec spoken on every
// roomcast connection.
//
// Each frame is a 4-byte big-endian unsigned length N followed by N bytes of
// UTF-8 JSON encoding {"header": string, "body": any}.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	LengthSize = 4
	// DefaultMaxFrameSize fits a 50 MB attachment after base64 expansion.
	DefaultMaxFrameSize = 72 << 20
)

var (
	// ErrProtocol marks a malformed or truncated frame. The connection must be dropped.
	ErrProtocol      = errors.New("protocol error")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Frame is one decoded message. Body stays raw until a handler decodes it.
type Frame struct {
	Header string          `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// Decode unmarshals the body into v. A missing body decodes as null.
func (f Frame) Decode(v any) error {
	if len(f.Body) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(f.Body, v)
}

type envelope struct {
	Header string `json:"header"`
	Body   any    `json:"body"`
}

// Marshal returns the JSON payload of a frame without the length prefix.
func Marshal(header string, body any) ([]byte, error) {
	payload, err := json.Marshal(envelope{Header: header, Body: body})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", header, err)
	}
	return payload, nil
}

// Encode returns the full wire form: length prefix followed by the payload.
func Encode(header string, body any) ([]byte, error) {
	payload, err := Marshal(header, body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, LengthSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[LengthSize:], payload)
	return out, nil
}

// Unmarshal parses a payload (no length prefix) into a Frame.
func Unmarshal(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return f, nil
}

// WriteFrame encodes and writes one frame with a single Write call.
func WriteFrame(w io.Writer, header string, body any) error {
	data, err := Encode(header, body)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadFrame reads exactly one frame from r. maxSize of zero disables the limit.
//
// io.EOF is returned untouched when the stream ends cleanly between frames.
// A stream that ends inside a frame yields ErrProtocol wrapping io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxSize uint32) (Frame, error) {
	var prefix [LengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: truncated length prefix: %w", ErrProtocol, err)
		}
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if maxSize > 0 && n > maxSize {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: truncated payload: %w", ErrProtocol, io.ErrUnexpectedEOF)
		}
		return Frame{}, err
	}
	return Unmarshal(payload)
}

// SplitPrefixed validates a complete length-prefixed buffer (as carried in one
// WebSocket message) and returns its payload.
func SplitPrefixed(data []byte, maxSize uint32) ([]byte, error) {
	if len(data) < LengthSize {
		return nil, fmt.Errorf("%w: short message", ErrProtocol)
	}
	n := binary.BigEndian.Uint32(data[:LengthSize])
	if maxSize > 0 && n > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}
	if uint64(len(data)-LengthSize) != uint64(n) {
		return nil, fmt.Errorf("%w: length prefix %d does not match %d payload bytes", ErrProtocol, n, len(data)-LengthSize)
	}
	return data[LengthSize:], nil
}
