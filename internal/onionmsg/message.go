// Package onionmsg carries BOLT 12 offers messages inside onion message
// envelopes. It owns the registry of offers payload types, the codec that
// turns a (type, payload) pair into a typed message and back, and the
// dispatcher that feeds decoded messages to a handler.
//
// Decoding is stateless. A Codec may be shared by any number of goroutines.
package onionmsg

import (
	"fmt"

	"github.com/danmuck/onionoffers/internal/offers"
)

// Onion message TLV types carrying offers payloads.
const (
	InvoiceRequestType uint64 = 64
	InvoiceType        uint64 = 66
	InvoiceErrorType   uint64 = 68
)

// OffersMessage is one of InvoiceRequestMessage, InvoiceMessage or
// InvoiceErrorMessage. The set is closed.
type OffersMessage interface {
	// TLVType is the onion message TLV type the message travels under.
	TLVType() uint64
	payload() []byte
	offersMessage()
}

type InvoiceRequestMessage struct {
	Request *offers.InvoiceRequest
}

type InvoiceMessage struct {
	Invoice *offers.Invoice
}

type InvoiceErrorMessage struct {
	Error *offers.InvoiceError
}

func (InvoiceRequestMessage) TLVType() uint64 { return InvoiceRequestType }
func (InvoiceMessage) TLVType() uint64        { return InvoiceType }
func (InvoiceErrorMessage) TLVType() uint64   { return InvoiceErrorType }

// A variant without a body encodes as an empty payload.
func (m InvoiceRequestMessage) payload() []byte {
	if m.Request == nil {
		return nil
	}
	return m.Request.Bytes()
}

func (m InvoiceMessage) payload() []byte {
	if m.Invoice == nil {
		return nil
	}
	return m.Invoice.Bytes()
}

func (m InvoiceErrorMessage) payload() []byte {
	if m.Error == nil {
		return nil
	}
	return m.Error.Bytes()
}

func (InvoiceRequestMessage) offersMessage() {}
func (InvoiceMessage) offersMessage()        {}
func (InvoiceErrorMessage) offersMessage()   {}

func (m InvoiceRequestMessage) String() string {
	if m.Request == nil {
		return "invoice_request(nil)"
	}
	return fmt.Sprintf("invoice_request(payer_note=%q amount_due=%d)", m.Request.PayerNote, m.Request.AmountDue())
}

func (m InvoiceMessage) String() string {
	if m.Invoice == nil {
		return "invoice(nil)"
	}
	return fmt.Sprintf("invoice(amount_msats=%d created_at=%d)", m.Invoice.AmountMsats, m.Invoice.CreatedAt)
}

func (m InvoiceErrorMessage) String() string {
	if m.Error == nil {
		return "invoice_error(nil)"
	}
	return m.Error.Error()
}

// TypeOf returns the TLV type m is sent under.
func TypeOf(m OffersMessage) uint64 {
	return m.TLVType()
}
