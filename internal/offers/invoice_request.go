package offers

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/onionoffers/internal/protocol/schema"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
)

// InvoiceRequestFields are the records an invoice echoes from its request.
type InvoiceRequestFields struct {
	Offer         Offer
	PayerMetadata []byte
	AmountMsats   uint64
	Quantity      uint64
	PayerID       []byte
	PayerNote     string
}

// InvoiceRequest asks the offer issuer for an invoice. It keeps the bytes it
// was parsed from so re-encoding is exact.
type InvoiceRequest struct {
	InvoiceRequestFields
	Signature []byte
	bytes     []byte
}

type InvoiceRequestParams struct {
	PayerMetadata []byte
	AmountMsats   uint64
	Quantity      uint64
	PayerNote     string
}

// NewInvoiceRequest builds and signs a request for offer with the payer key.
func NewInvoiceRequest(offer Offer, payer *btcec.PrivateKey, p InvoiceRequestParams) (*InvoiceRequest, error) {
	fields := InvoiceRequestFields{
		Offer:         offer,
		PayerMetadata: clone(p.PayerMetadata),
		AmountMsats:   p.AmountMsats,
		Quantity:      p.Quantity,
		PayerID:       payer.PubKey().SerializeCompressed(),
		PayerNote:     p.PayerNote,
	}
	if err := fields.checkSemantics(); err != nil {
		return nil, semanticError(err)
	}
	records := fields.records()
	sig, err := sign(schema.MsgInvoiceRequest, records, payer)
	if err != nil {
		return nil, err
	}
	records = append(records, tlv.NewBytes(schema.TypeSignature, sig))
	return ParseInvoiceRequest(tlv.EncodeStream(records))
}

// ParseInvoiceRequest decodes, validates and verifies a request. Failures are
// *ParseError.
func ParseInvoiceRequest(b []byte) (*InvoiceRequest, error) {
	req, perr := parseInvoiceRequest(b)
	if perr != nil {
		return nil, perr
	}
	return req, nil
}

func parseInvoiceRequest(b []byte) (*InvoiceRequest, *ParseError) {
	records, perr := splitStream(schema.MsgInvoiceRequest, b)
	if perr != nil {
		return nil, perr
	}
	fields, err := parseInvoiceRequestFields(records)
	if err != nil {
		return nil, decodeError(err)
	}
	if err := fields.checkSemantics(); err != nil {
		return nil, semanticError(err)
	}
	sig := signatureRecord(records)
	if perr := verify(schema.MsgInvoiceRequest, records, fields.PayerID, sig); perr != nil {
		return nil, perr
	}
	return &InvoiceRequest{
		InvoiceRequestFields: fields,
		Signature:            clone(sig),
		bytes:                clone(b),
	}, nil
}

// Bytes returns the encoded request.
func (r *InvoiceRequest) Bytes() []byte {
	return clone(r.bytes)
}

func (r *InvoiceRequest) Write(w io.Writer) error {
	_, err := w.Write(r.bytes)
	return err
}

// AmountDue is what the payer expects to be invoiced. It is zero when the
// offer price times the quantity does not fit in 64 bits.
func (f InvoiceRequestFields) AmountDue() uint64 {
	if f.AmountMsats != 0 {
		return f.AmountMsats
	}
	due, ok := f.offerTotal()
	if !ok {
		return 0
	}
	return due
}

func (f InvoiceRequestFields) offerTotal() (uint64, bool) {
	hi, lo := bits.Mul64(f.Offer.AmountMsats, max(f.Quantity, 1))
	return lo, hi == 0
}

func (f InvoiceRequestFields) records() []tlv.Record {
	recs := []tlv.Record{tlv.NewBytes(schema.TypeInvreqMetadata, f.PayerMetadata)}
	recs = append(recs, f.Offer.records()...)
	if f.AmountMsats != 0 {
		recs = append(recs, tlv.NewTU64(schema.TypeInvreqAmount, f.AmountMsats))
	}
	if f.Quantity != 0 {
		recs = append(recs, tlv.NewTU64(schema.TypeInvreqQuantity, f.Quantity))
	}
	if len(f.PayerID) != 0 {
		recs = append(recs, tlv.NewBytes(schema.TypeInvreqPayerID, f.PayerID))
	}
	if f.PayerNote != "" {
		recs = append(recs, tlv.NewString(schema.TypeInvreqPayerNote, f.PayerNote))
	}
	sortRecords(recs)
	return recs
}

func (f InvoiceRequestFields) checkSemantics() error {
	if err := f.Offer.checkSemantics(); err != nil {
		return err
	}
	if f.Offer.AmountMsats == 0 && f.AmountMsats == 0 {
		return schema.ErrMissingAmount
	}
	if f.Offer.ExpectsQuantity() {
		if f.Quantity == 0 || f.Quantity > f.Offer.QuantityMax {
			return ErrInvalidQuantity
		}
	} else if f.Quantity != 0 {
		return ErrUnexpectedQuantity
	}
	total, ok := f.offerTotal()
	if !ok {
		return ErrInvalidAmount
	}
	if f.AmountMsats != 0 && f.AmountMsats < total {
		return ErrInsufficientAmount
	}
	return nil
}

func parseInvoiceRequestFields(records []tlv.Record) (InvoiceRequestFields, error) {
	offer, err := parseOffer(records)
	if err != nil {
		return InvoiceRequestFields{}, err
	}
	f := InvoiceRequestFields{Offer: offer}
	for _, rec := range records {
		switch rec.Type {
		case schema.TypeInvreqMetadata:
			f.PayerMetadata = rec.Bytes()
		case schema.TypeInvreqAmount:
			f.AmountMsats, err = rec.TU64()
		case schema.TypeInvreqQuantity:
			f.Quantity, err = rec.TU64()
		case schema.TypeInvreqPayerID:
			f.PayerID = rec.Bytes()
		case schema.TypeInvreqPayerNote:
			f.PayerNote, err = rec.UTF8()
		}
		if err != nil {
			return InvoiceRequestFields{}, fmt.Errorf("invoice_request record %d: %w", rec.Type, err)
		}
	}
	return f, nil
}
