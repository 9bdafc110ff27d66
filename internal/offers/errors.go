package offers

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies why bytes could not become a message.
type ParseErrorKind int

const (
	// ParseDecode means the bytes fail the generic wire format.
	ParseDecode ParseErrorKind = iota
	// ParseInvalidSemantics means the message is well formed but breaks a
	// protocol rule, such as a missing required field.
	ParseInvalidSemantics
	// ParseInvalidSignature means the message is well formed and valid but
	// its signature does not verify.
	ParseInvalidSignature
)

func (k ParseErrorKind) String() string {
	switch k {
	case ParseDecode:
		return "decode"
	case ParseInvalidSemantics:
		return "invalid_semantics"
	case ParseInvalidSignature:
		return "invalid_signature"
	default:
		return fmt.Sprintf("parse_kind(%d)", int(k))
	}
}

type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("offers: %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func decodeError(err error) *ParseError {
	return &ParseError{Kind: ParseDecode, Err: err}
}

func semanticError(err error) *ParseError {
	return &ParseError{Kind: ParseInvalidSemantics, Err: err}
}

func signatureError(err error) *ParseError {
	return &ParseError{Kind: ParseInvalidSignature, Err: err}
}

// Semantic failures not covered by a missing schema field.
var (
	ErrMissingDescription  = errors.New("missing offer description")
	ErrInsufficientAmount  = errors.New("amount below offer price")
	ErrInvalidAmount       = errors.New("offer price times quantity overflows")
	ErrInvalidQuantity     = errors.New("quantity outside offer bounds")
	ErrUnexpectedQuantity  = errors.New("quantity set for single-item offer")
	ErrWrongSigningPubkey  = errors.New("invoice node id does not match offer issuer id")
	ErrInvalidErrorMessage = errors.New("suggested value without erroneous field")
)

var ErrSignatureMismatch = errors.New("offers: signature does not verify")
