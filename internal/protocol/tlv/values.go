package tlv

import (
	"fmt"
	"unicode/utf8"

	"github.com/danmuck/onionoffers/internal/protocol"
)

var (
	ErrNonMinimal   = fmt.Errorf("tlv: truncated integer not minimal: %w", protocol.ErrInvalidEncoding)
	ErrInvalidWidth = fmt.Errorf("tlv: invalid value width: %w", protocol.ErrInvalidEncoding)
	ErrInvalidUTF8  = fmt.Errorf("tlv: invalid utf-8: %w", protocol.ErrInvalidEncoding)
)

// NewTU64 creates a truncated uint64 record (leading zero bytes omitted).
func NewTU64(typ uint64, v uint64) Record {
	return Record{Type: typ, Value: truncated(v, 8)}
}

// NewTU32 creates a truncated uint32 record.
func NewTU32(typ uint64, v uint32) Record {
	return Record{Type: typ, Value: truncated(uint64(v), 4)}
}

// NewBytes creates an opaque bytes record.
func NewBytes(typ uint64, v []byte) Record {
	return Record{Type: typ, Value: cloneBytes(v)}
}

// NewString creates a utf-8 string record.
func NewString(typ uint64, v string) Record {
	return Record{Type: typ, Value: cloneBytes([]byte(v))}
}

// TU64 returns the record value as a truncated uint64.
func (r Record) TU64() (uint64, error) {
	return untruncate(r.Value, 8)
}

// TU32 returns the record value as a truncated uint32.
func (r Record) TU32() (uint32, error) {
	v, err := untruncate(r.Value, 4)
	return uint32(v), err
}

// UTF8 returns the record value as a utf-8 string.
func (r Record) UTF8() (string, error) {
	if !utf8.Valid(r.Value) {
		return "", ErrInvalidUTF8
	}
	return string(r.Value), nil
}

// Fixed returns a copy of the record value, which must be exactly n bytes.
func (r Record) Fixed(n int) ([]byte, error) {
	if len(r.Value) != n {
		return nil, fmt.Errorf("type %d: got %d bytes want %d: %w", r.Type, len(r.Value), n, ErrInvalidWidth)
	}
	return cloneBytes(r.Value), nil
}

// Bytes returns a copy of the record value.
func (r Record) Bytes() []byte {
	return cloneBytes(r.Value)
}

func truncated(v uint64, width int) []byte {
	buf := make([]byte, 0, width)
	started := false
	for shift := (width - 1) * 8; shift >= 0; shift -= 8 {
		b := byte(v >> uint(shift))
		if b == 0 && !started {
			continue
		}
		started = true
		buf = append(buf, b)
	}
	if len(buf) == 0 {
		return nil
	}
	return buf
}

func untruncate(b []byte, width int) (uint64, error) {
	if len(b) > width {
		return 0, ErrInvalidWidth
	}
	if len(b) > 0 && b[0] == 0 {
		return 0, ErrNonMinimal
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}
