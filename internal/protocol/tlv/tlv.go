package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/onionoffers/internal/protocol"
)

var (
	ErrShortHeader  = fmt.Errorf("tlv: short record header: %w", protocol.ErrShortRead)
	ErrShortValue   = fmt.Errorf("tlv: short record value: %w", protocol.ErrShortRead)
	ErrNonCanonical = fmt.Errorf("tlv: non-canonical bigsize: %w", protocol.ErrInvalidEncoding)
	ErrOutOfOrder   = fmt.Errorf("tlv: records not strictly increasing: %w", protocol.ErrInvalidEncoding)
	ErrValueTooLong = fmt.Errorf("tlv: record value too long: %w", protocol.ErrBadLengthDescriptor)
)

// Record is one decoded TLV record.
type Record struct {
	Type  uint64
	Value []byte
}

// BigSizeLen returns the encoded width of v.
func BigSizeLen(v uint64) int {
	switch {
	case v < 0xfd:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// AppendBigSize appends the BigSize encoding of v to dst.
func AppendBigSize(dst []byte, v uint64) []byte {
	switch {
	case v < 0xfd:
		return append(dst, byte(v))
	case v <= 0xffff:
		dst = append(dst, 0xfd)
		return binary.BigEndian.AppendUint16(dst, uint16(v))
	case v <= 0xffffffff:
		dst = append(dst, 0xfe)
		return binary.BigEndian.AppendUint32(dst, uint32(v))
	default:
		dst = append(dst, 0xff)
		return binary.BigEndian.AppendUint64(dst, v)
	}
}

// DecodeBigSize decodes a BigSize prefix of b and returns the value and the
// number of bytes consumed.
func DecodeBigSize(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortHeader
	}
	var (
		v     uint64
		n     int
		floor uint64
	)
	switch b[0] {
	case 0xfd:
		if len(b) < 3 {
			return 0, 0, ErrShortHeader
		}
		v, n, floor = uint64(binary.BigEndian.Uint16(b[1:3])), 3, 0xfd
	case 0xfe:
		if len(b) < 5 {
			return 0, 0, ErrShortHeader
		}
		v, n, floor = uint64(binary.BigEndian.Uint32(b[1:5])), 5, 0x10000
	case 0xff:
		if len(b) < 9 {
			return 0, 0, ErrShortHeader
		}
		v, n, floor = binary.BigEndian.Uint64(b[1:9]), 9, 0x100000000
	default:
		return uint64(b[0]), 1, nil
	}
	if v < floor {
		return 0, 0, ErrNonCanonical
	}
	return v, n, nil
}

// ReadBigSize reads one BigSize from r. A clean end of input before the first
// byte is reported as io.EOF.
func ReadBigSize(r io.Reader) (uint64, error) {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w: %v", protocol.ErrIO, err)
	}
	width := 1
	switch buf[0] {
	case 0xfd:
		width = 3
	case 0xfe:
		width = 5
	case 0xff:
		width = 9
	}
	if width > 1 {
		if _, err := io.ReadFull(r, buf[1:width]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, ErrShortHeader
			}
			return 0, fmt.Errorf("%w: %v", protocol.ErrIO, err)
		}
	}
	v, _, err := DecodeBigSize(buf[:width])
	return v, err
}

func EncodeRecord(rec Record) []byte {
	buf := make([]byte, 0, BigSizeLen(rec.Type)+BigSizeLen(uint64(len(rec.Value)))+len(rec.Value))
	return AppendRecord(buf, rec)
}

func AppendRecord(dst []byte, rec Record) []byte {
	dst = AppendBigSize(dst, rec.Type)
	dst = AppendBigSize(dst, uint64(len(rec.Value)))
	return append(dst, rec.Value...)
}

// EncodeStream writes records in the order given. Callers keep them sorted.
func EncodeStream(records []Record) []byte {
	out := make([]byte, 0)
	for _, rec := range records {
		out = AppendRecord(out, rec)
	}
	return out
}

// DecodeStream splits payload into records, enforcing strictly increasing types.
func DecodeStream(payload []byte) ([]Record, error) {
	records := make([]Record, 0, 8)
	i := 0
	for i < len(payload) {
		typ, n, err := DecodeBigSize(payload[i:])
		if err != nil {
			return nil, err
		}
		i += n
		l, n, err := DecodeBigSize(payload[i:])
		if err != nil {
			return nil, err
		}
		i += n
		if uint64(len(payload)-i) < l {
			return nil, ErrShortValue
		}
		if len(records) > 0 && typ <= records[len(records)-1].Type {
			return nil, ErrOutOfOrder
		}
		records = append(records, Record{Type: typ, Value: cloneBytes(payload[i : i+int(l)])})
		i += int(l)
	}
	return records, nil
}

// ReadStream decodes records from r until a clean end of input. Values longer
// than maxValue are rejected before any allocation.
func ReadStream(r io.Reader, maxValue uint64) ([]Record, error) {
	records := make([]Record, 0, 4)
	for {
		typ, err := ReadBigSize(r)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		l, err := ReadBigSize(r)
		if errors.Is(err, io.EOF) {
			return nil, ErrShortHeader
		}
		if err != nil {
			return nil, err
		}
		if l > maxValue {
			return nil, ErrValueTooLong
		}
		if len(records) > 0 && typ <= records[len(records)-1].Type {
			return nil, ErrOutOfOrder
		}
		var val []byte
		if l > 0 {
			val = make([]byte, l)
			if _, err := io.ReadFull(r, val); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, ErrShortValue
				}
				return nil, fmt.Errorf("%w: %v", protocol.ErrIO, err)
			}
		}
		records = append(records, Record{Type: typ, Value: val})
	}
}

func GetRecord(records []Record, typ uint64) (Record, bool) {
	for _, rec := range records {
		if rec.Type == typ {
			return rec, true
		}
	}
	return Record{}, false
}

// IsEven reports whether typ is even. Unknown even types must be understood.
func IsEven(typ uint64) bool {
	return typ%2 == 0
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
