package chesslink

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// FrameSize is the fixed wire size of one frame. A frame carries the UTF-8
// bytes of a single move message followed by zero padding; there is no
// length prefix, checksum or delimiter. Both peers must agree on this value
// out of band.
const FrameSize = 32

var (
	// ErrMessageTooLong is returned when a message cannot fit in one frame.
	// The limit is FrameSize-1 bytes so at least one zero byte marks the end
	// of the message. This is a caller bug, never a truncation.
	ErrMessageTooLong = errors.New("message too long for frame")
	// ErrInvalidEncoding is returned when a frame's bytes before the first
	// zero are not valid UTF-8.
	ErrInvalidEncoding = errors.New("frame is not valid utf-8")
)

// ProtocolError reports a frame whose content could not be decoded. It is
// fatal to that single frame only; the connection stays usable and the
// transport worker drops the frame and carries on.
type ProtocolError struct {
	Cause error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Cause)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Codec is the interface for translating move messages to and from their
// wire representation.
//
// Decode reads from an io.Reader so the codec controls exactly how many
// bytes make up one message, which handles TCP stream reassembly.
type Codec interface {
	// Decode reads and decodes exactly one message from the reader.
	// A *ProtocolError marks the frame as malformed but the stream as
	// still aligned; any other error is a transport failure.
	Decode(r io.Reader) (string, error)
	// Encode encodes one message into its wire bytes.
	Encode(msg string) ([]byte, error)
}

// FrameCodec is the fixed-size zero-padded frame format described above.
// The zero value is ready to use.
type FrameCodec struct{}

// Encode copies the message into a zero-initialized FrameSize buffer.
// Messages of FrameSize-1 bytes or more are rejected with ErrMessageTooLong.
func (FrameCodec) Encode(msg string) ([]byte, error) {
	if len(msg) > FrameSize-1 {
		return nil, errors.Wrapf(ErrMessageTooLong, "%d bytes", len(msg))
	}
	buf := make([]byte, FrameSize)
	copy(buf, msg)
	return buf, nil
}

// Decode reads exactly FrameSize bytes, trims at the first zero byte and
// validates the remainder as UTF-8 text.
func (FrameCodec) Decode(r io.Reader) (string, error) {
	var buf [FrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", err
	}
	text := buf[:]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	if !utf8.Valid(text) {
		return "", &ProtocolError{Cause: ErrInvalidEncoding}
	}
	return string(text), nil
}
