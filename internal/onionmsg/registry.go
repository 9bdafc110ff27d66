package onionmsg

import (
	"io"

	"github.com/danmuck/onionoffers/internal/offers"
)

// ReadFunc decodes a kind straight from the payload source. Its errors are
// returned to the caller unchanged.
type ReadFunc func(r io.Reader, maxValue uint64) (OffersMessage, error)

// ParseFunc decodes a fully buffered payload. Failures are *offers.ParseError
// and go through the downgrade policy.
type ParseFunc func(payload []byte) (OffersMessage, error)

// Kind binds a TLV type to its message variant. Exactly one of Read or Parse
// is set.
type Kind struct {
	Type  uint64
	Name  string
	Read  ReadFunc
	Parse ParseFunc
}

// Streaming reports whether the kind bypasses payload buffering.
func (k Kind) Streaming() bool {
	return k.Read != nil
}

var kinds = [...]Kind{
	{Type: InvoiceRequestType, Name: "invoice_request", Parse: parseInvoiceRequest},
	{Type: InvoiceType, Name: "invoice", Parse: parseInvoice},
	{Type: InvoiceErrorType, Name: "invoice_error", Read: readInvoiceError},
}

// IsKnownType reports whether typ carries an offers message. Transports call
// it before handing a payload to Decode.
func IsKnownType(typ uint64) bool {
	_, ok := LookupKind(typ)
	return ok
}

func LookupKind(typ uint64) (Kind, bool) {
	switch typ {
	case InvoiceRequestType:
		return kinds[0], true
	case InvoiceType:
		return kinds[1], true
	case InvoiceErrorType:
		return kinds[2], true
	}
	return Kind{}, false
}

// Kinds lists the registry in type order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds[:])
	return out
}

func parseInvoiceRequest(payload []byte) (OffersMessage, error) {
	req, err := offers.ParseInvoiceRequest(payload)
	if err != nil {
		return nil, err
	}
	return InvoiceRequestMessage{Request: req}, nil
}

func parseInvoice(payload []byte) (OffersMessage, error) {
	inv, err := offers.ParseInvoice(payload)
	if err != nil {
		return nil, err
	}
	return InvoiceMessage{Invoice: inv}, nil
}

func readInvoiceError(r io.Reader, maxValue uint64) (OffersMessage, error) {
	ie, err := offers.ReadInvoiceError(r, maxValue)
	if err != nil {
		return nil, err
	}
	return InvoiceErrorMessage{Error: ie}, nil
}
