package protocol

import "errors"

// Decode failures reported for onion message payloads. Everything except
// ErrInvalidValue and ErrIO means the bytes themselves are malformed.
var (
	ErrUnknownVersion         = errors.New("protocol: unknown version")
	ErrUnknownRequiredFeature = errors.New("protocol: unknown required feature")
	ErrInvalidValue           = errors.New("protocol: invalid value")
	ErrShortRead              = errors.New("protocol: short read")
	ErrBadLengthDescriptor    = errors.New("protocol: bad length descriptor")
	ErrInvalidEncoding        = errors.New("protocol: invalid encoding")
	ErrUnknownType            = errors.New("protocol: unknown tlv type")
	ErrPayloadTooLarge        = errors.New("protocol: payload too large")
	ErrIO                     = errors.New("protocol: io failure")
)

var malformed = []error{
	ErrUnknownVersion,
	ErrUnknownRequiredFeature,
	ErrShortRead,
	ErrBadLengthDescriptor,
	ErrInvalidEncoding,
	ErrUnknownType,
	ErrPayloadTooLarge,
}

// IsMalformed reports whether err marks a payload that fails the generic wire
// format. Such errors reject the whole envelope.
func IsMalformed(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range malformed {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
