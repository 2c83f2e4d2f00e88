// Package frame implements the length-delimited wire framing for the
// guestlink channel.
//
// Wire Format:
//
//	+-------+---------+-------+----------+----------+
//	| Magic | Version | Flags | Length   | Payload  |
//	| 2B    | 1B      | 1B    | 4B BE    | Variable |
//	+-------+---------+-------+----------+----------+
//
// Length counts payload bytes only. The codec never inspects payload
// contents. Any header mismatch or an oversize length is fatal: the stream
// is assumed byte-accurate, so no resynchronization is attempted and the
// connection must be torn down.
package frame

import (
	"encoding/binary"
	"io"

	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// Frame is one decoded message off the wire.
type Frame struct {
	Version uint8
	Flags   uint8
	Payload []byte
}

// IsEncrypted reports whether the payload is carried under the session AEAD.
func (f *Frame) IsEncrypted() bool {
	return f.Flags&constants.FlagEncrypted != 0
}

// IsResponse reports whether the payload is a response envelope.
func (f *Frame) IsResponse() bool {
	return f.Flags&constants.FlagResponse != 0
}

// Codec encodes and decodes frames. It holds no state beyond the configured
// size limit; partial reads are absorbed by blocking io.ReadFull calls.
type Codec struct {
	maxFrameSize uint32
}

// NewCodec creates a codec with the given payload size limit.
// A zero limit selects the default.
func NewCodec(maxFrameSize uint32) *Codec {
	if maxFrameSize == 0 {
		maxFrameSize = constants.DefaultMaxFrameSize
	}
	return &Codec{maxFrameSize: maxFrameSize}
}

// Encode prepends the 8-byte header to payload.
func (c *Codec) Encode(payload []byte, flags uint8) ([]byte, error) {
	if uint64(len(payload)) > uint64(c.maxFrameSize) {
		return nil, glerrors.ErrFrameTooLarge
	}

	buf := make([]byte, constants.FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], constants.FrameMagic)
	buf[2] = constants.ProtocolVersion
	buf[3] = flags
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[constants.FrameHeaderSize:], payload)

	return buf, nil
}

// WriteFrame encodes payload and writes the complete frame to w.
func (c *Codec) WriteFrame(w io.Writer, payload []byte, flags uint8) error {
	buf, err := c.Encode(payload, flags)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads exactly one frame from r. It validates magic, version and
// the length bound before reading the payload, so an oversize header is
// rejected without consuming the claimed payload. A clean EOF before any
// header byte is returned as io.EOF; a truncated header or payload is
// ErrShortFrame.
func (c *Codec) ReadFrame(r io.Reader) (*Frame, error) {
	var header [constants.FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, glerrors.ErrShortFrame
		}
		return nil, err
	}

	if binary.BigEndian.Uint16(header[0:2]) != constants.FrameMagic {
		return nil, glerrors.ErrBadMagic
	}
	if header[2] != constants.ProtocolVersion {
		return nil, glerrors.ErrBadVersion
	}

	length := binary.BigEndian.Uint32(header[4:8])
	if length > c.maxFrameSize {
		return nil, glerrors.ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, glerrors.ErrShortFrame
		}
		return nil, err
	}

	return &Frame{
		Version: header[2],
		Flags:   header[3],
		Payload: payload,
	}, nil
}

// MaxFrameSize returns the configured payload size limit.
func (c *Codec) MaxFrameSize() uint32 {
	return c.maxFrameSize
}
