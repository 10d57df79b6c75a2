// Package protocol implements the frame format of WebExtensions native messaging.
//
// Every message travels as a 4-byte length in native byte order followed by
// exactly that many bytes of body. The receiver reads the header first to learn
// the body length, then reads the body with io.ReadFull.
//
// Frame format:
//
//	0         4
//	┌─────────┬────────────────────┐
//	│ bodyLen │      body ...      │
//	│ uint32  │   bodyLen bytes    │
//	└─────────┴────────────────────┘
//
// Browsers state the length is in "native byte order", which is why the
// header is not big-endian like most network protocols.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// HeaderSize is the size of the length prefix.
const HeaderSize = 4

// MaxFrameSize is the default limit for inbound frames. It protects the
// client from a buggy peer announcing an absurd length.
var MaxFrameSize uint32 = 1024 * 1024 * 1024

var (
	// ErrFrameTooLarge is returned when a frame exceeds the allowed size.
	ErrFrameTooLarge = errors.New("protocol: frame size is too large")
	// ErrEmptyFrame is returned when a zero-length frame is encoded.
	ErrEmptyFrame = errors.New("protocol: empty frame")
)

// Encode writes a complete frame (header + body) to w in a single Write call.
// The caller must serialize Encode calls on a shared writer, otherwise frames
// from different requests may interleave.
func Encode(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	if uint64(len(body)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}

	buf := make([]byte, HeaderSize+len(body))
	binary.NativeEndian.PutUint32(buf[:HeaderSize], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame from r and returns its body.
// Frames longer than maxSize are rejected before the body is read; a zero
// maxSize means MaxFrameSize.
func Decode(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = MaxFrameSize
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	bodyLen := binary.NativeEndian.Uint32(header[:])
	if bodyLen > maxSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes, limit %d", bodyLen, maxSize)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
