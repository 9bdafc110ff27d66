package offers

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/onionoffers/internal/protocol/schema"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
)

// DefaultRelativeExpiry applies when an invoice omits relative_expiry.
const DefaultRelativeExpiry uint32 = 7200

// Invoice answers an invoice request. The request records are echoed verbatim.
type Invoice struct {
	Request        InvoiceRequestFields
	CreatedAt      uint64
	RelativeExpiry uint32
	PaymentHash    []byte
	AmountMsats    uint64
	NodeID         []byte
	Signature      []byte
	bytes          []byte
}

// InvoiceParams carry the issuer-chosen invoice fields. A zero AmountMsats
// invoices the request's AmountDue.
type InvoiceParams struct {
	CreatedAt      uint64
	RelativeExpiry uint32
	PaymentHash    []byte
	AmountMsats    uint64
}

// Respond builds an invoice for r signed by node, which must hold the offer's
// issuer key.
func (r *InvoiceRequest) Respond(node *btcec.PrivateKey, p InvoiceParams) (*Invoice, error) {
	nodeID := node.PubKey().SerializeCompressed()
	if !bytes.Equal(nodeID, r.Offer.IssuerID) {
		return nil, semanticError(ErrWrongSigningPubkey)
	}
	echoed, err := tlv.DecodeStream(r.bytes)
	if err != nil {
		return nil, decodeError(err)
	}
	records := make([]tlv.Record, 0, len(echoed)+5)
	for _, rec := range echoed {
		if rec.Type < schema.TypeInvoicePaths {
			records = append(records, rec)
		}
	}

	amount := p.AmountMsats
	if amount == 0 {
		amount = r.AmountDue()
	}
	records = append(records, tlv.NewTU64(schema.TypeInvoiceCreatedAt, p.CreatedAt))
	if p.RelativeExpiry != 0 {
		records = append(records, tlv.NewTU32(schema.TypeInvoiceRelativeExpiry, p.RelativeExpiry))
	}
	records = append(records,
		tlv.NewBytes(schema.TypeInvoicePaymentHash, p.PaymentHash),
		tlv.NewTU64(schema.TypeInvoiceAmount, amount),
		tlv.NewBytes(schema.TypeInvoiceNodeID, nodeID),
	)

	sig, err := sign(schema.MsgInvoice, records, node)
	if err != nil {
		return nil, err
	}
	records = append(records, tlv.NewBytes(schema.TypeSignature, sig))
	return ParseInvoice(tlv.EncodeStream(records))
}

// ParseInvoice decodes, validates and verifies an invoice. Failures are
// *ParseError.
func ParseInvoice(b []byte) (*Invoice, error) {
	inv, perr := parseInvoice(b)
	if perr != nil {
		return nil, perr
	}
	return inv, nil
}

func parseInvoice(b []byte) (*Invoice, *ParseError) {
	records, perr := splitStream(schema.MsgInvoice, b)
	if perr != nil {
		return nil, perr
	}
	req, err := parseInvoiceRequestFields(records)
	if err != nil {
		return nil, decodeError(err)
	}
	inv := &Invoice{Request: req}
	for _, rec := range records {
		switch rec.Type {
		case schema.TypeInvoiceCreatedAt:
			inv.CreatedAt, err = rec.TU64()
		case schema.TypeInvoiceRelativeExpiry:
			inv.RelativeExpiry, err = rec.TU32()
		case schema.TypeInvoicePaymentHash:
			inv.PaymentHash = rec.Bytes()
		case schema.TypeInvoiceAmount:
			inv.AmountMsats, err = rec.TU64()
		case schema.TypeInvoiceNodeID:
			inv.NodeID = rec.Bytes()
		}
		if err != nil {
			return nil, decodeError(fmt.Errorf("invoice record %d: %w", rec.Type, err))
		}
	}

	if err := req.Offer.checkSemantics(); err != nil {
		return nil, semanticError(err)
	}
	if !bytes.Equal(inv.NodeID, req.Offer.IssuerID) {
		return nil, semanticError(ErrWrongSigningPubkey)
	}
	sig := signatureRecord(records)
	if perr := verify(schema.MsgInvoice, records, inv.NodeID, sig); perr != nil {
		return nil, perr
	}
	inv.Signature = clone(sig)
	inv.bytes = clone(b)
	return inv, nil
}

// ExpiresAt is the unix time after which the invoice must not be paid.
func (inv *Invoice) ExpiresAt() uint64 {
	expiry := inv.RelativeExpiry
	if expiry == 0 {
		expiry = DefaultRelativeExpiry
	}
	return inv.CreatedAt + uint64(expiry)
}

func (inv *Invoice) Bytes() []byte {
	return clone(inv.bytes)
}

func (inv *Invoice) Write(w io.Writer) error {
	_, err := w.Write(inv.bytes)
	return err
}
