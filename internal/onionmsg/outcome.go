package onionmsg

import (
	"errors"

	"github.com/danmuck/onionoffers/internal/protocol"
)

// Outcome is the caller-visible result class of one decode.
type Outcome int

const (
	OutcomeDecoded Outcome = iota
	OutcomeMalformed
	OutcomeInvalidValue
	OutcomeUnknownType
	OutcomeIO
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeInvalidValue:
		return "invalid_value"
	case OutcomeUnknownType:
		return "unknown_type"
	case OutcomeIO:
		return "io"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps a Decode error to its outcome. Errors outside the protocol
// taxonomy count as malformed.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDecoded
	case errors.Is(err, protocol.ErrUnknownType):
		return OutcomeUnknownType
	case errors.Is(err, protocol.ErrInvalidValue):
		return OutcomeInvalidValue
	case errors.Is(err, protocol.ErrIO):
		return OutcomeIO
	default:
		return OutcomeMalformed
	}
}
