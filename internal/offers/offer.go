// Package offers holds the message bodies exchanged while negotiating a
// payment for an offer: invoice requests, invoices and invoice errors.
//
// Bodies parse themselves from bytes and report failures as *ParseError so
// callers can tell malformed bytes from semantic or signature failures.
package offers

import (
	"fmt"
	"sort"

	"github.com/danmuck/onionoffers/internal/protocol/schema"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
)

// Offer is the merchant-published part echoed in requests and invoices.
// Zero values mean the record is absent.
type Offer struct {
	Description string
	AmountMsats uint64
	Issuer      string
	QuantityMax uint64
	IssuerID    []byte
}

func (o Offer) records() []tlv.Record {
	recs := make([]tlv.Record, 0, 5)
	if o.AmountMsats != 0 {
		recs = append(recs, tlv.NewTU64(schema.TypeOfferAmount, o.AmountMsats))
	}
	if o.Description != "" {
		recs = append(recs, tlv.NewString(schema.TypeOfferDescription, o.Description))
	}
	if o.Issuer != "" {
		recs = append(recs, tlv.NewString(schema.TypeOfferIssuer, o.Issuer))
	}
	if o.QuantityMax != 0 {
		recs = append(recs, tlv.NewTU64(schema.TypeOfferQuantityMax, o.QuantityMax))
	}
	if len(o.IssuerID) != 0 {
		recs = append(recs, tlv.NewBytes(schema.TypeOfferIssuerID, o.IssuerID))
	}
	return recs
}

// ExpectsQuantity reports whether the offer sells more than one item per request.
func (o Offer) ExpectsQuantity() bool {
	return o.QuantityMax != 0
}

func parseOffer(records []tlv.Record) (Offer, error) {
	var (
		o   Offer
		err error
	)
	for _, rec := range records {
		switch rec.Type {
		case schema.TypeOfferAmount:
			o.AmountMsats, err = rec.TU64()
		case schema.TypeOfferDescription:
			o.Description, err = rec.UTF8()
		case schema.TypeOfferIssuer:
			o.Issuer, err = rec.UTF8()
		case schema.TypeOfferQuantityMax:
			o.QuantityMax, err = rec.TU64()
		case schema.TypeOfferIssuerID:
			o.IssuerID = rec.Bytes()
		}
		if err != nil {
			return Offer{}, fmt.Errorf("offer record %d: %w", rec.Type, err)
		}
	}
	return o, nil
}

// checkSemantics applies the offer-level rules shared by requests and invoices.
func (o Offer) checkSemantics() error {
	if o.AmountMsats != 0 && o.Description == "" {
		return ErrMissingDescription
	}
	return nil
}

// splitStream decodes payload and enforces the record layout of messageName.
func splitStream(messageName string, payload []byte) ([]tlv.Record, *ParseError) {
	records, err := tlv.DecodeStream(payload)
	if err != nil {
		return nil, decodeError(err)
	}
	if err := schema.Check(messageName, records); err != nil {
		return nil, decodeError(err)
	}
	if err := schema.Validate(messageName, records); err != nil {
		return nil, semanticError(err)
	}
	return records, nil
}

func sortRecords(records []tlv.Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Type < records[j].Type
	})
}

func signatureRecord(records []tlv.Record) []byte {
	rec, _ := tlv.GetRecord(records, schema.TypeSignature)
	return rec.Value
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
