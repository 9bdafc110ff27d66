// Package responder answers invoice requests for a single offer.
package responder

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/onionoffers/internal/config"
	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/protocol/schema"
)

var ErrUnknownOffer = errors.New("responder: request is not for this offer")

// Responder issues invoices for Offer. Received invoices and invoice errors
// are logged and not answered.
type Responder struct {
	Offer          offers.Offer
	RelativeExpiry uint32
	Now            func() time.Time

	key *btcec.PrivateKey

	mu        sync.Mutex
	preimages map[[32]byte][]byte
}

func New(offer offers.Offer, key *btcec.PrivateKey) *Responder {
	offer.IssuerID = key.PubKey().SerializeCompressed()
	return &Responder{
		Offer:     offer,
		Now:       time.Now,
		key:       key,
		preimages: make(map[[32]byte][]byte),
	}
}

// FromConfig builds a responder from the [responder] section. An empty
// secret generates a fresh issuer key.
func FromConfig(cfg config.ResponderConfig) (*Responder, error) {
	var key *btcec.PrivateKey
	if cfg.NodeSecretHex == "" {
		k, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("responder: generate key: %w", err)
		}
		key = k
	} else {
		secret, err := hex.DecodeString(cfg.NodeSecretHex)
		if err != nil || len(secret) != 32 {
			return nil, fmt.Errorf("responder: node_secret_hex must be 32 bytes of hex")
		}
		key, _ = btcec.PrivKeyFromBytes(secret)
	}
	r := New(offers.Offer{
		Description: cfg.Description,
		AmountMsats: cfg.AmountMsats,
		Issuer:      cfg.Issuer,
		QuantityMax: cfg.QuantityMax,
	}, key)
	r.RelativeExpiry = cfg.RelativeExpiry
	return r, nil
}

func (r *Responder) HandleMessage(m onionmsg.OffersMessage) (onionmsg.OffersMessage, bool) {
	switch msg := m.(type) {
	case onionmsg.InvoiceRequestMessage:
		return r.respond(msg.Request), true
	case onionmsg.InvoiceMessage:
		logs.Infof(
			"responder invoice received amount_msats=%d payment_hash=%x",
			msg.Invoice.AmountMsats,
			msg.Invoice.PaymentHash,
		)
	case onionmsg.InvoiceErrorMessage:
		logs.Warnf("responder invoice_error received: %v", msg.Error)
	}
	return nil, false
}

func (r *Responder) respond(req *offers.InvoiceRequest) onionmsg.OffersMessage {
	if !r.matches(req.Offer) {
		logs.Debugf("responder unknown offer issuer_id=%x", req.Offer.IssuerID)
		ie := offers.NewInvoiceError(ErrUnknownOffer.Error())
		ie.ErroneousField = &offers.ErroneousField{TLVFieldNum: schema.TypeOfferIssuerID}
		return onionmsg.InvoiceErrorMessage{Error: ie}
	}

	preimage := make([]byte, 32)
	if _, err := rand.Read(preimage); err != nil {
		return onionmsg.InvoiceErrorMessage{Error: offers.NewInvoiceError("internal error")}
	}
	hash := sha256.Sum256(preimage)
	inv, err := req.Respond(r.key, offers.InvoiceParams{
		CreatedAt:      uint64(r.Now().Unix()),
		RelativeExpiry: r.RelativeExpiry,
		PaymentHash:    hash[:],
	})
	if err != nil {
		logs.Debugf("responder respond failed: %v", err)
		return onionmsg.InvoiceErrorMessage{Error: offers.InvoiceErrorFor(err)}
	}

	r.mu.Lock()
	r.preimages[hash] = preimage
	r.mu.Unlock()
	logs.Infof("responder invoice issued amount_msats=%d payment_hash=%x", inv.AmountMsats, hash)
	return onionmsg.InvoiceMessage{Invoice: inv}
}

// Preimage returns the preimage for an invoice this responder issued.
func (r *Responder) Preimage(paymentHash []byte) ([]byte, bool) {
	var key [32]byte
	if len(paymentHash) != len(key) {
		return nil, false
	}
	copy(key[:], paymentHash)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.preimages[key]
	return p, ok
}

func (r *Responder) matches(o offers.Offer) bool {
	return bytes.Equal(o.IssuerID, r.Offer.IssuerID) &&
		o.Description == r.Offer.Description &&
		o.AmountMsats == r.Offer.AmountMsats &&
		o.Issuer == r.Offer.Issuer &&
		o.QuantityMax == r.Offer.QuantityMax
}
