package offers

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/onionoffers/internal/protocol"
	"github.com/danmuck/onionoffers/internal/protocol/schema"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
)

// DefaultMaxErrorValue bounds a single invoice_error record when the caller
// passes no limit.
const DefaultMaxErrorValue = 64 * 1024

// ErroneousField points at the request or invoice record that was rejected.
type ErroneousField struct {
	TLVFieldNum    uint64
	SuggestedValue []byte
}

// InvoiceError reports why an invoice request or invoice was refused.
type InvoiceError struct {
	ErroneousField *ErroneousField
	Message        string
}

func NewInvoiceError(message string) *InvoiceError {
	return &InvoiceError{Message: message}
}

// InvoiceErrorFor reports err, naming the record at fault when one is known.
func InvoiceErrorFor(err error) *InvoiceError {
	ie := NewInvoiceError(err.Error())
	var ve schema.ValidationError
	if errors.As(err, &ve) {
		ie.ErroneousField = &ErroneousField{TLVFieldNum: ve.Type}
	}
	return ie
}

func (e *InvoiceError) records() []tlv.Record {
	recs := make([]tlv.Record, 0, 3)
	if e.ErroneousField != nil {
		recs = append(recs, tlv.NewTU64(schema.TypeErroneousField, e.ErroneousField.TLVFieldNum))
		if len(e.ErroneousField.SuggestedValue) != 0 {
			recs = append(recs, tlv.NewBytes(schema.TypeSuggestedValue, e.ErroneousField.SuggestedValue))
		}
	}
	recs = append(recs, tlv.NewString(schema.TypeError, e.Message))
	return recs
}

func (e *InvoiceError) Bytes() []byte {
	return tlv.EncodeStream(e.records())
}

func (e *InvoiceError) Write(w io.Writer) error {
	_, err := w.Write(e.Bytes())
	return err
}

// ParseInvoiceError decodes a complete invoice_error payload.
func ParseInvoiceError(b []byte) (*InvoiceError, error) {
	return ReadInvoiceError(bytes.NewReader(b), 0)
}

// ReadInvoiceError decodes an invoice_error straight from r without buffering
// the payload. maxValue caps each record value, 0 selects DefaultMaxErrorValue.
// Structural failures are malformed; a missing message or a suggested value
// without its field wrap protocol.ErrInvalidValue.
func ReadInvoiceError(r io.Reader, maxValue uint64) (*InvoiceError, error) {
	if maxValue == 0 {
		maxValue = DefaultMaxErrorValue
	}
	records, err := tlv.ReadStream(r, maxValue)
	if err != nil {
		return nil, err
	}
	if err := schema.Check(schema.MsgInvoiceError, records); err != nil {
		return nil, err
	}
	if err := schema.Validate(schema.MsgInvoiceError, records); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrInvalidValue, err)
	}

	var (
		ie        InvoiceError
		field     *uint64
		suggested []byte
		hasSugg   bool
	)
	for _, rec := range records {
		switch rec.Type {
		case schema.TypeErroneousField:
			v, err := rec.TU64()
			if err != nil {
				return nil, fmt.Errorf("invoice_error erroneous_field: %w", err)
			}
			field = &v
		case schema.TypeSuggestedValue:
			suggested, hasSugg = rec.Bytes(), true
		case schema.TypeError:
			ie.Message, err = rec.UTF8()
			if err != nil {
				return nil, fmt.Errorf("invoice_error message: %w", err)
			}
		}
	}
	switch {
	case field != nil:
		ie.ErroneousField = &ErroneousField{TLVFieldNum: *field, SuggestedValue: suggested}
	case hasSugg:
		return nil, fmt.Errorf("%w: %w", protocol.ErrInvalidValue, ErrInvalidErrorMessage)
	}
	return &ie, nil
}

func (e *InvoiceError) Error() string {
	if e.ErroneousField != nil {
		return fmt.Sprintf("invoice error (field %d): %s", e.ErroneousField.TLVFieldNum, e.Message)
	}
	return "invoice error: " + e.Message
}
