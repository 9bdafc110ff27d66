package schema

import (
	"errors"
	"fmt"

	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/protocol"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
)

// Message names.
const (
	MsgInvoiceRequest = "invoice_request"
	MsgInvoice        = "invoice"
	MsgInvoiceError   = "invoice_error"
)

// Record types shared by offers, invoice requests and invoices.
const (
	TypeInvreqMetadata uint64 = 0

	TypeOfferChains         uint64 = 2
	TypeOfferMetadata       uint64 = 4
	TypeOfferCurrency       uint64 = 6
	TypeOfferAmount         uint64 = 8
	TypeOfferDescription    uint64 = 10
	TypeOfferFeatures       uint64 = 12
	TypeOfferAbsoluteExpiry uint64 = 14
	TypeOfferPaths          uint64 = 16
	TypeOfferIssuer         uint64 = 18
	TypeOfferQuantityMax    uint64 = 20
	TypeOfferIssuerID       uint64 = 22

	TypeInvreqChain     uint64 = 80
	TypeInvreqAmount    uint64 = 82
	TypeInvreqFeatures  uint64 = 84
	TypeInvreqQuantity  uint64 = 86
	TypeInvreqPayerID   uint64 = 88
	TypeInvreqPayerNote uint64 = 89

	TypeInvoicePaths          uint64 = 160
	TypeInvoiceBlindedPay     uint64 = 162
	TypeInvoiceCreatedAt      uint64 = 164
	TypeInvoiceRelativeExpiry uint64 = 166
	TypeInvoicePaymentHash    uint64 = 168
	TypeInvoiceAmount         uint64 = 170
	TypeInvoiceFallbacks      uint64 = 172
	TypeInvoiceFeatures       uint64 = 174
	TypeInvoiceNodeID         uint64 = 176

	TypeSignature uint64 = 240
)

// Invoice error record types.
const (
	TypeErroneousField uint64 = 1
	TypeSuggestedValue uint64 = 3
	TypeError          uint64 = 5
)

const (
	PointLen     = 33
	HashLen      = 32
	SignatureLen = 64
)

var (
	ErrUnknownMessage   = errors.New("schema: unknown message")
	ErrMissingField     = errors.New("schema: missing required field")
	ErrUnexpectedRecord = fmt.Errorf("schema: record outside message ranges: %w", protocol.ErrInvalidEncoding)
	ErrInvalidLength    = fmt.Errorf("schema: invalid record length: %w", protocol.ErrInvalidEncoding)
)

// Semantic failures reported when a required field is absent.
var (
	ErrMissingPayerMetadata = errors.New("missing payer metadata")
	ErrMissingPayerID       = errors.New("missing payer id")
	ErrMissingSigningPubkey = errors.New("missing signing pubkey")
	ErrMissingSignature     = errors.New("missing signature")
	ErrMissingCreatedAt     = errors.New("missing creation time")
	ErrMissingPaymentHash   = errors.New("missing payment hash")
	ErrMissingAmount        = errors.New("missing amount")
	ErrMissingNodeID        = errors.New("missing node id")
	ErrMissingMessage       = errors.New("missing error message")
)

// Range is an inclusive band of record types owned by a message.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) Contains(typ uint64) bool {
	return typ >= r.Start && typ <= r.End
}

// Requirement declares a known record. Size is the exact value width, 0 for
// variable. Missing is reported when a required record is absent.
type Requirement struct {
	Type     uint64
	Size     int
	Required bool
	Missing  error
}

// Message is the record layout of one message kind.
type Message struct {
	Name   string
	Ranges []Range
	Fields []Requirement
}

type ValidationError struct {
	Message string
	Type    uint64
	Reason  error
	Detail  error
}

func (e ValidationError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("schema: message=%s type=%d: %v: %v", e.Message, e.Type, e.Reason, e.Detail)
	}
	return fmt.Sprintf("schema: message=%s type=%d: %v", e.Message, e.Type, e.Reason)
}

func (e ValidationError) Unwrap() []error {
	if e.Detail == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Detail}
}

var (
	offerRange     = Range{Start: 1, End: 79}
	invreqRanges   = []Range{{Start: 0, End: 0}, {Start: 80, End: 159}}
	invoiceRange   = Range{Start: 160, End: 239}
	signatureRange = Range{Start: 240, End: 1000}
)

var offerFields = []Requirement{
	{Type: TypeOfferChains},
	{Type: TypeOfferMetadata},
	{Type: TypeOfferCurrency},
	{Type: TypeOfferAmount},
	{Type: TypeOfferDescription},
	{Type: TypeOfferFeatures},
	{Type: TypeOfferAbsoluteExpiry},
	{Type: TypeOfferPaths},
	{Type: TypeOfferIssuer},
	{Type: TypeOfferQuantityMax},
	{Type: TypeOfferIssuerID, Size: PointLen, Required: true, Missing: ErrMissingSigningPubkey},
}

var invreqFields = []Requirement{
	{Type: TypeInvreqMetadata, Required: true, Missing: ErrMissingPayerMetadata},
	{Type: TypeInvreqChain, Size: HashLen},
	{Type: TypeInvreqAmount},
	{Type: TypeInvreqFeatures},
	{Type: TypeInvreqQuantity},
	{Type: TypeInvreqPayerID, Size: PointLen, Required: true, Missing: ErrMissingPayerID},
	{Type: TypeInvreqPayerNote},
}

var invoiceFields = []Requirement{
	{Type: TypeInvoicePaths},
	{Type: TypeInvoiceBlindedPay},
	{Type: TypeInvoiceCreatedAt, Required: true, Missing: ErrMissingCreatedAt},
	{Type: TypeInvoiceRelativeExpiry},
	{Type: TypeInvoicePaymentHash, Size: HashLen, Required: true, Missing: ErrMissingPaymentHash},
	{Type: TypeInvoiceAmount, Required: true, Missing: ErrMissingAmount},
	{Type: TypeInvoiceFallbacks},
	{Type: TypeInvoiceFeatures},
	{Type: TypeInvoiceNodeID, Size: PointLen, Required: true, Missing: ErrMissingNodeID},
}

var signatureField = Requirement{Type: TypeSignature, Size: SignatureLen, Required: true, Missing: ErrMissingSignature}

var messages = map[string]Message{
	MsgInvoiceRequest: {
		Name:   MsgInvoiceRequest,
		Ranges: append([]Range{offerRange, signatureRange}, invreqRanges...),
		Fields: concat(offerFields, invreqFields, []Requirement{signatureField}),
	},
	MsgInvoice: {
		Name:   MsgInvoice,
		Ranges: append([]Range{offerRange, invoiceRange, signatureRange}, invreqRanges...),
		Fields: concat(offerFields, invreqFields, invoiceFields, []Requirement{signatureField}),
	},
	MsgInvoiceError: {
		Name:   MsgInvoiceError,
		Ranges: []Range{{Start: 0, End: ^uint64(0)}},
		Fields: []Requirement{
			{Type: TypeErroneousField},
			{Type: TypeSuggestedValue},
			{Type: TypeError, Required: true, Missing: ErrMissingMessage},
		},
	},
}

func Lookup(name string) (Message, bool) {
	m, ok := messages[name]
	return m, ok
}

// Check enforces record structure: every record sits in an owned range, known
// records have the declared width, and unknown even records are rejected.
// Failures are malformed encodings.
func Check(name string, records []tlv.Record) error {
	msg, ok := messages[name]
	if !ok {
		return ValidationError{Message: name, Reason: ErrUnknownMessage}
	}
	known := msg.index()
	for _, rec := range records {
		if !msg.owns(rec.Type) {
			logs.Debugf("schema.Check record outside ranges message=%s type=%d", name, rec.Type)
			return ValidationError{Message: name, Type: rec.Type, Reason: ErrUnexpectedRecord}
		}
		req, isKnown := known[rec.Type]
		if !isKnown {
			if tlv.IsEven(rec.Type) {
				logs.Debugf("schema.Check unknown even record message=%s type=%d", name, rec.Type)
				return ValidationError{Message: name, Type: rec.Type, Reason: protocol.ErrUnknownRequiredFeature}
			}
			continue
		}
		if req.Size != 0 && len(rec.Value) != req.Size {
			logs.Debugf(
				"schema.Check width mismatch message=%s type=%d got=%d want=%d",
				name,
				rec.Type,
				len(rec.Value),
				req.Size,
			)
			return ValidationError{Message: name, Type: rec.Type, Reason: ErrInvalidLength}
		}
	}
	return nil
}

// Validate enforces required records. Unknown odd records are ignored.
func Validate(name string, records []tlv.Record) error {
	logs.Tracef("schema.Validate message=%s records=%d", name, len(records))
	msg, ok := messages[name]
	if !ok {
		return ValidationError{Message: name, Reason: ErrUnknownMessage}
	}
	for _, req := range msg.Fields {
		if !req.Required {
			continue
		}
		if _, found := tlv.GetRecord(records, req.Type); !found {
			logs.Tracef("schema.Validate missing field message=%s type=%d", name, req.Type)
			return ValidationError{Message: name, Type: req.Type, Reason: ErrMissingField, Detail: req.Missing}
		}
	}
	return nil
}

func (m Message) owns(typ uint64) bool {
	for _, r := range m.Ranges {
		if r.Contains(typ) {
			return true
		}
	}
	return false
}

func (m Message) index() map[uint64]Requirement {
	out := make(map[uint64]Requirement, len(m.Fields))
	for _, req := range m.Fields {
		out[req.Type] = req
	}
	return out
}

func concat(groups ...[]Requirement) []Requirement {
	out := make([]Requirement, 0)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
