package onionmsg

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/protocol"
	"github.com/rs/zerolog"
)

// Logger is the diagnostic sink used for downgraded decode failures. It must
// be safe for concurrent use.
type Logger interface {
	Log(level zerolog.Level, format string, args ...any)
}

// Codec converts between (type, payload) pairs and OffersMessage values.
// The zero value logs through the process logger and buffers payloads of any
// size.
type Codec struct {
	Logger Logger
	// MaxPayloadBytes bounds buffered payloads and streamed record values.
	// Zero means no limit beyond the streaming kinds' own defaults.
	MaxPayloadBytes int64
}

// Decode turns the payload read from r into the message registered for typ.
//
// Malformed payloads and unknown types return errors for which
// protocol.IsMalformed holds. Payloads that are well formed but fail
// semantic or signature checks are logged at trace level and reported as
// exactly protocol.ErrInvalidValue. A failing reader while buffering is
// reported as protocol.ErrIO.
func (c Codec) Decode(typ uint64, r io.Reader) (OffersMessage, error) {
	kind, ok := LookupKind(typ)
	if !ok {
		return nil, fmt.Errorf("onionmsg: type %d: %w", typ, protocol.ErrUnknownType)
	}
	if kind.Streaming() {
		return c.stream(kind, r)
	}
	payload, err := c.buffer(r)
	if err != nil {
		return nil, err
	}
	msg, err := kind.Parse(payload)
	if err != nil {
		return nil, c.downgrade(typ, err)
	}
	return msg, nil
}

func (c Codec) DecodeBytes(typ uint64, payload []byte) (OffersMessage, error) {
	return c.Decode(typ, bytes.NewReader(payload))
}

// Encode returns the payload bytes of m. Framing is left to the transport.
func (c Codec) Encode(m OffersMessage) []byte {
	return m.payload()
}

func (c Codec) Write(w io.Writer, m OffersMessage) error {
	_, err := w.Write(m.payload())
	return err
}

func (c Codec) buffer(r io.Reader) ([]byte, error) {
	if c.MaxPayloadBytes > 0 {
		r = io.LimitReader(r, c.MaxPayloadBytes+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("onionmsg: buffer payload: %w: %v", protocol.ErrIO, err)
	}
	if c.MaxPayloadBytes > 0 && int64(len(payload)) > c.MaxPayloadBytes {
		return nil, fmt.Errorf("onionmsg: payload over %d bytes: %w", c.MaxPayloadBytes, protocol.ErrPayloadTooLarge)
	}
	return payload, nil
}

// stream feeds r to a streaming kind. MaxPayloadBytes bounds the whole
// payload here too, not only each record value.
func (c Codec) stream(kind Kind, r io.Reader) (OffersMessage, error) {
	if c.MaxPayloadBytes <= 0 {
		return kind.Read(r, c.maxValue())
	}
	lr := &payloadLimit{r: r, remaining: c.MaxPayloadBytes}
	msg, err := kind.Read(lr, c.maxValue())
	if lr.exceeded {
		return nil, fmt.Errorf("onionmsg: payload over %d bytes: %w", c.MaxPayloadBytes, protocol.ErrPayloadTooLarge)
	}
	return msg, err
}

// payloadLimit fails the read that would pass the limit, so a well-formed
// prefix can not be mistaken for the whole payload.
type payloadLimit struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *payloadLimit) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, protocol.ErrPayloadTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return 0, protocol.ErrPayloadTooLarge
	}
	return n, err
}

func (c Codec) maxValue() uint64 {
	if c.MaxPayloadBytes > 0 {
		return uint64(c.MaxPayloadBytes)
	}
	return 0
}

func (c Codec) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logs.NewSink(logs.Logger())
}

// downgrade maps a parse failure to the error callers see. Decode failures
// pass through; every other kind is logged and collapsed to ErrInvalidValue.
func (c Codec) downgrade(typ uint64, err error) error {
	var perr *offers.ParseError
	if !errors.As(err, &perr) {
		c.logger().Log(zerolog.TraceLevel, "onionmsg: rejecting type %d payload: %v", typ, err)
		return protocol.ErrInvalidValue
	}
	if perr.Kind == offers.ParseDecode {
		return perr.Err
	}
	c.logger().Log(zerolog.TraceLevel, "onionmsg: rejecting type %d payload: %s: %v", typ, perr.Kind, perr.Err)
	return protocol.ErrInvalidValue
}
