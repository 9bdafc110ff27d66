package server

import (
	"encoding/hex"

	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/onionmsg"
)

type KindView struct {
	Type      uint64 `json:"type"`
	Name      string `json:"name"`
	Streaming bool   `json:"streaming"`
}

// KindViews lists the registered offers kinds.
func KindViews() []KindView {
	kinds := onionmsg.Kinds()
	out := make([]KindView, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, KindView{Type: k.Type, Name: k.Name, Streaming: k.Streaming()})
	}
	return out
}

type offerView struct {
	Description string `json:"description,omitempty"`
	AmountMsats uint64 `json:"amount_msats,omitempty"`
	Issuer      string `json:"issuer,omitempty"`
	QuantityMax uint64 `json:"quantity_max,omitempty"`
	IssuerID    string `json:"issuer_id"`
}

type requestView struct {
	Offer         offerView `json:"offer"`
	PayerMetadata string    `json:"payer_metadata"`
	AmountMsats   uint64    `json:"amount_msats,omitempty"`
	Quantity      uint64    `json:"quantity,omitempty"`
	PayerID       string    `json:"payer_id"`
	PayerNote     string    `json:"payer_note,omitempty"`
}

type invoiceView struct {
	Request        requestView `json:"request"`
	CreatedAt      uint64      `json:"created_at"`
	RelativeExpiry uint32      `json:"relative_expiry,omitempty"`
	PaymentHash    string      `json:"payment_hash"`
	AmountMsats    uint64      `json:"amount_msats"`
	NodeID         string      `json:"node_id"`
}

type invoiceErrorView struct {
	ErroneousField *uint64 `json:"erroneous_field,omitempty"`
	SuggestedValue string  `json:"suggested_value,omitempty"`
	Message        string  `json:"message"`
}

type ResultView struct {
	Type     uint64 `json:"type"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
	Message  any    `json:"message,omitempty"`
	Reply    any    `json:"reply,omitempty"`
	ReplyHex string `json:"reply_hex,omitempty"`
}

func NewResultView(r onionmsg.Result) ResultView {
	v := ResultView{Type: r.Type, Outcome: r.Outcome.String()}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	if r.Message != nil {
		v.Message = MessageView(r.Message)
	}
	if env, ok := r.ReplyEnvelope(); ok {
		v.Reply = MessageView(r.Reply)
		v.ReplyHex = hex.EncodeToString(env.Payload)
	}
	return v
}

// MessageView renders m as a JSON-friendly value with hex-encoded bytes.
func MessageView(m onionmsg.OffersMessage) any {
	switch msg := m.(type) {
	case onionmsg.InvoiceRequestMessage:
		return newRequestView(msg.Request.InvoiceRequestFields)
	case onionmsg.InvoiceMessage:
		inv := msg.Invoice
		return invoiceView{
			Request:        newRequestView(inv.Request),
			CreatedAt:      inv.CreatedAt,
			RelativeExpiry: inv.RelativeExpiry,
			PaymentHash:    hex.EncodeToString(inv.PaymentHash),
			AmountMsats:    inv.AmountMsats,
			NodeID:         hex.EncodeToString(inv.NodeID),
		}
	case onionmsg.InvoiceErrorMessage:
		v := invoiceErrorView{Message: msg.Error.Message}
		if f := msg.Error.ErroneousField; f != nil {
			num := f.TLVFieldNum
			v.ErroneousField = &num
			v.SuggestedValue = hex.EncodeToString(f.SuggestedValue)
		}
		return v
	}
	return nil
}

func newRequestView(f offers.InvoiceRequestFields) requestView {
	return requestView{
		Offer: offerView{
			Description: f.Offer.Description,
			AmountMsats: f.Offer.AmountMsats,
			Issuer:      f.Offer.Issuer,
			QuantityMax: f.Offer.QuantityMax,
			IssuerID:    hex.EncodeToString(f.Offer.IssuerID),
		},
		PayerMetadata: hex.EncodeToString(f.PayerMetadata),
		AmountMsats:   f.AmountMsats,
		Quantity:      f.Quantity,
		PayerID:       hex.EncodeToString(f.PayerID),
		PayerNote:     f.PayerNote,
	}
}
