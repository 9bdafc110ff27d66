// Package frame stores onion message payloads in capture files. Each frame
// carries one (type, payload) envelope entry behind a fixed header.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x4F4D5347 // "OMSG"
	Version        uint16 = 1
	FixedHeaderLen uint16 = 36
	FlagReply      uint32 = 0x01
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrHeaderLenTooSmall  = errors.New("frame: header_len smaller than fixed header")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrShortPayload       = errors.New("frame: short payload")
)

// Header is the fixed wire header. Bytes between the fixed header and
// HeaderLen are reserved and skipped on read.
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	Sequence   uint64
	Type       uint64
	Flags      uint32
	PayloadLen uint64
}

// Frame is one captured envelope entry.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 65535}
}

// ReadFrame reads the next frame. A clean end of input before the header
// returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if n, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrBadMagic
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderLen < FixedHeaderLen {
		return Frame{}, ErrHeaderLenTooSmall
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	if extra := int64(h.HeaderLen - FixedHeaderLen); extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return Frame{}, ErrShortHeader
		}
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return Frame{}, ErrShortPayload
			}
			return Frame{}, err
		}
	}

	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = FixedHeaderLen
	h.PayloadLen = payloadLen

	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if payloadLen > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.Sequence)
	binary.BigEndian.PutUint64(buf[16:24], h.Type)
	binary.BigEndian.PutUint32(buf[24:28], h.Flags)
	binary.BigEndian.PutUint64(buf[28:36], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:  binary.BigEndian.Uint16(b[6:8]),
		Sequence:   binary.BigEndian.Uint64(b[8:16]),
		Type:       binary.BigEndian.Uint64(b[16:24]),
		Flags:      binary.BigEndian.Uint32(b[24:28]),
		PayloadLen: binary.BigEndian.Uint64(b[28:36]),
	}, nil
}

// Writer appends frames with increasing sequence numbers.
type Writer struct {
	w      io.Writer
	limits Limits
	seq    uint64
}

func NewWriter(w io.Writer, limits Limits) *Writer {
	return &Writer{w: w, limits: limits}
}

func (fw *Writer) Write(typ uint64, payload []byte, flags uint32) error {
	fw.seq++
	return WriteFrame(fw.w, Frame{
		Header:  Header{Sequence: fw.seq, Type: typ, Flags: flags},
		Payload: payload,
	}, fw.limits)
}

// ReadAll reads frames until a clean end of input.
func ReadAll(r io.Reader, limits Limits) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := ReadFrame(r, limits)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("frame %d: %w", len(frames)+1, err)
		}
		frames = append(frames, f)
	}
}
