package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/onionoffers/internal/protocol"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
	"github.com/danmuck/onionoffers/internal/testutil/testlog"
)

func invoiceRequestRecords() []tlv.Record {
	return []tlv.Record{
		tlv.NewBytes(TypeInvreqMetadata, []byte{0x01, 0x02, 0x03}),
		tlv.NewString(TypeOfferDescription, "coffee"),
		tlv.NewBytes(TypeOfferIssuerID, make([]byte, PointLen)),
		tlv.NewTU64(TypeInvreqAmount, 1000),
		tlv.NewBytes(TypeInvreqPayerID, make([]byte, PointLen)),
		tlv.NewBytes(TypeSignature, make([]byte, SignatureLen)),
	}
}

func TestValidateInvoiceRequestRequiredFields(t *testing.T) {
	testlog.Start(t)
	recs := invoiceRequestRecords()
	if err := Check(MsgInvoiceRequest, recs); err != nil {
		t.Fatalf("check invoice_request: %v", err)
	}
	if err := Validate(MsgInvoiceRequest, recs); err != nil {
		t.Fatalf("validate invoice_request: %v", err)
	}
}

func TestCheckUnknownOddRecordsIgnored(t *testing.T) {
	testlog.Start(t)
	recs := invoiceRequestRecords()
	recs = append(recs[:5:5], tlv.Record{Type: 91, Value: []byte{0x01}}, recs[5])
	if err := Check(MsgInvoiceRequest, recs); err != nil {
		t.Fatalf("check with unknown odd record: %v", err)
	}
}

func TestCheckUnknownEvenRecordIsMalformed(t *testing.T) {
	testlog.Start(t)
	recs := []tlv.Record{tlv.NewBytes(90, []byte{0x01})}
	err := Check(MsgInvoiceRequest, recs)
	if !errors.Is(err, protocol.ErrUnknownRequiredFeature) {
		t.Fatalf("expected ErrUnknownRequiredFeature, got %v", err)
	}
	if !protocol.IsMalformed(err) {
		t.Fatalf("expected malformed classification")
	}
}

func TestCheckRecordOutsideRanges(t *testing.T) {
	testlog.Start(t)
	// invoice records are not part of an invoice_request
	recs := []tlv.Record{tlv.NewTU64(TypeInvoiceCreatedAt, 1)}
	err := Check(MsgInvoiceRequest, recs)
	if !errors.Is(err, ErrUnexpectedRecord) || !protocol.IsMalformed(err) {
		t.Fatalf("expected malformed ErrUnexpectedRecord, got %v", err)
	}
	if err := Check(MsgInvoice, recs); err != nil {
		t.Fatalf("created_at belongs to invoice: %v", err)
	}
}

func TestCheckWidthMismatch(t *testing.T) {
	testlog.Start(t)
	recs := []tlv.Record{tlv.NewBytes(TypeInvreqPayerID, make([]byte, 32))}
	err := Check(MsgInvoiceRequest, recs)
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Type != TypeInvreqPayerID {
		t.Fatalf("unexpected validation error: %#v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	recs := invoiceRequestRecords()
	recs = append(recs[:4:4], recs[5]) // drop payer id
	err := Validate(MsgInvoiceRequest, recs)
	if err == nil {
		t.Fatalf("expected error")
	}
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Type != TypeInvreqPayerID || !errors.Is(err, ErrMissingField) || !errors.Is(err, ErrMissingPayerID) {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
	if protocol.IsMalformed(err) {
		t.Fatalf("missing field is semantic, not malformed")
	}
}

func TestValidateUnknownMessage(t *testing.T) {
	testlog.Start(t)
	err := Validate("refund", nil)
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestInvoiceErrorRequiresMessage(t *testing.T) {
	testlog.Start(t)
	recs := []tlv.Record{tlv.NewTU64(TypeErroneousField, 82)}
	if err := Check(MsgInvoiceError, recs); err != nil {
		t.Fatalf("check invoice_error: %v", err)
	}
	if err := Validate(MsgInvoiceError, recs); !errors.Is(err, ErrMissingMessage) {
		t.Fatalf("expected ErrMissingMessage, got %v", err)
	}
}
