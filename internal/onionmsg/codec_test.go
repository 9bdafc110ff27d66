package onionmsg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/protocol"
	"github.com/danmuck/onionoffers/internal/protocol/schema"
	"github.com/danmuck/onionoffers/internal/protocol/tlv"
	"github.com/danmuck/onionoffers/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func testKey(b byte) *btcec.PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	return key
}

type fixture struct {
	issuer  *btcec.PrivateKey
	request *offers.InvoiceRequest
	invoice *offers.Invoice
}

func newFixture(t testing.TB, note string) fixture {
	t.Helper()
	issuer := testKey(0x11)
	offer := offers.Offer{
		Description: "coffee",
		AmountMsats: 1000,
		IssuerID:    issuer.PubKey().SerializeCompressed(),
	}
	req, err := offers.NewInvoiceRequest(offer, testKey(0x22), offers.InvoiceRequestParams{
		PayerMetadata: []byte(note),
		PayerNote:     note,
	})
	if err != nil {
		t.Fatalf("new invoice request: %v", err)
	}
	inv, err := req.Respond(issuer, offers.InvoiceParams{
		CreatedAt:   1_700_000_000,
		PaymentHash: bytes.Repeat([]byte{0x5a}, schema.HashLen),
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	return fixture{issuer: issuer, request: req, invoice: inv}
}

func withoutRecord(t testing.TB, payload []byte, typ uint64) []byte {
	t.Helper()
	records, err := tlv.DecodeStream(payload)
	if err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	kept := make([]tlv.Record, 0, len(records))
	for _, rec := range records {
		if rec.Type != typ {
			kept = append(kept, rec)
		}
	}
	return tlv.EncodeStream(kept)
}

func TestIsKnownType(t *testing.T) {
	testlog.Start(t)
	for _, typ := range []uint64{64, 66, 68} {
		if !IsKnownType(typ) {
			t.Fatalf("type %d should be known", typ)
		}
	}
	for _, typ := range []uint64{0, 1, 63, 65, 67, 69, 70, math.MaxUint64} {
		if IsKnownType(typ) {
			t.Fatalf("type %d should not be known", typ)
		}
	}
	if got := len(Kinds()); got != 3 {
		t.Fatalf("expected 3 kinds, got %d", got)
	}
}

func TestTypeOfIsInjective(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, "a")
	msgs := []OffersMessage{
		InvoiceRequestMessage{Request: f.request},
		InvoiceMessage{Invoice: f.invoice},
		InvoiceErrorMessage{Error: offers.NewInvoiceError("nope")},
	}
	seen := map[uint64]bool{}
	for _, m := range msgs {
		typ := TypeOf(m)
		if seen[typ] || !IsKnownType(typ) {
			t.Fatalf("type %d duplicated or unknown", typ)
		}
		seen[typ] = true
		kind, _ := LookupKind(typ)
		if kind.Streaming() != (typ == InvoiceErrorType) {
			t.Fatalf("type %d streaming=%v", typ, kind.Streaming())
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}
	f := newFixture(t, "round trip")
	msgs := []OffersMessage{
		InvoiceRequestMessage{Request: f.request},
		InvoiceMessage{Invoice: f.invoice},
		InvoiceErrorMessage{Error: offers.NewInvoiceError("offer expired")},
		InvoiceErrorMessage{Error: &offers.InvoiceError{
			ErroneousField: &offers.ErroneousField{TLVFieldNum: 82, SuggestedValue: []byte{0x03, 0xe8}},
			Message:        "amount too low",
		}},
	}
	for _, m := range msgs {
		got, err := codec.DecodeBytes(TypeOf(m), codec.Encode(m))
		if err != nil {
			t.Fatalf("decode %T: %v", m, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip mismatch for %T:\n got %v\nwant %v", m, got, m)
		}
		var buf bytes.Buffer
		if err := codec.Write(&buf, m); err != nil || !bytes.Equal(buf.Bytes(), codec.Encode(m)) {
			t.Fatalf("write %T: %v", m, err)
		}
	}
	if n := len(rec.Lines()); n != 0 {
		t.Fatalf("expected no diagnostics, got %d", n)
	}
}

func TestDecodeGarbageIsHardFailure(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}
	f := newFixture(t, "garbage")
	payloads := map[uint64][]byte{
		InvoiceRequestType: f.request.Bytes(),
		InvoiceType:        f.invoice.Bytes(),
	}
	for typ, good := range payloads {
		for _, bad := range [][]byte{good[:len(good)-3], good[:1], {0xfd, 0x00}, {0x00, 0xff}} {
			msg, err := codec.DecodeBytes(typ, bad)
			if msg != nil || err == nil {
				t.Fatalf("type %d payload %x: expected failure", typ, bad)
			}
			if !protocol.IsMalformed(err) || errors.Is(err, protocol.ErrInvalidValue) {
				t.Fatalf("type %d payload %x: expected malformed, got %v", typ, bad, err)
			}
		}
	}
	if n := len(rec.Lines()); n != 0 {
		t.Fatalf("malformed payloads must not be logged as downgraded, got %d lines", n)
	}
}

func TestDecodeUnknownEvenRecordIsMalformed(t *testing.T) {
	testlog.Start(t)
	codec := Codec{Logger: &testlog.Recorder{}}
	payload := tlv.EncodeStream([]tlv.Record{tlv.NewBytes(90, []byte{0x01})})
	_, err := codec.DecodeBytes(InvoiceRequestType, payload)
	if !errors.Is(err, protocol.ErrUnknownRequiredFeature) {
		t.Fatalf("expected unknown required feature, got %v", err)
	}
}

func TestDecodeSemanticFailureIsDowngraded(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}
	f := newFixture(t, "semantic")
	payload := withoutRecord(t, f.request.Bytes(), schema.TypeInvreqPayerID)

	msg, err := codec.DecodeBytes(InvoiceRequestType, payload)
	if msg != nil || err != protocol.ErrInvalidValue {
		t.Fatalf("expected exactly ErrInvalidValue, got %v", err)
	}
	lines := rec.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one diagnostic line, got %d: %+v", len(lines), lines)
	}
	if lines[0].Level != zerolog.TraceLevel || !strings.Contains(lines[0].Text, "type 64") {
		t.Fatalf("unexpected diagnostic: %+v", lines[0])
	}
	if !strings.Contains(lines[0].Text, "missing payer id") {
		t.Fatalf("diagnostic should carry detail: %q", lines[0].Text)
	}
}

func TestDecodeOverflowingOfferTotalIsDowngraded(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}
	offer := offers.Offer{
		Description: "bulk",
		AmountMsats: 1 << 63,
		QuantityMax: 4,
		IssuerID:    testKey(0x11).PubKey().SerializeCompressed(),
	}
	req, err := offers.NewInvoiceRequest(offer, testKey(0x22), offers.InvoiceRequestParams{Quantity: 1})
	if err != nil {
		t.Fatalf("new invoice request: %v", err)
	}
	records, _ := tlv.DecodeStream(req.Bytes())
	for i, r := range records {
		if r.Type == schema.TypeInvreqQuantity {
			records[i] = tlv.NewTU64(r.Type, 2)
		}
	}

	msg, err := codec.DecodeBytes(InvoiceRequestType, tlv.EncodeStream(records))
	if msg != nil || err != protocol.ErrInvalidValue {
		t.Fatalf("expected exactly ErrInvalidValue, got %v %v", msg, err)
	}
	lines := rec.Lines()
	if len(lines) != 1 || lines[0].Level != zerolog.TraceLevel {
		t.Fatalf("expected one trace diagnostic, got %+v", lines)
	}
	if !strings.Contains(lines[0].Text, "type 64") || !strings.Contains(lines[0].Text, "overflows") {
		t.Fatalf("unexpected diagnostic: %q", lines[0].Text)
	}
}

func TestDecodeSignatureFailureIsDowngraded(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}
	f := newFixture(t, "signature")
	records, _ := tlv.DecodeStream(f.invoice.Bytes())
	for i, r := range records {
		if r.Type == schema.TypeInvoiceCreatedAt {
			records[i] = tlv.NewTU64(r.Type, 1)
		}
	}

	_, sigErr := codec.DecodeBytes(InvoiceType, tlv.EncodeStream(records))
	if sigErr != protocol.ErrInvalidValue {
		t.Fatalf("expected exactly ErrInvalidValue, got %v", sigErr)
	}
	_, semErr := codec.DecodeBytes(InvoiceType, withoutRecord(t, f.invoice.Bytes(), schema.TypeInvoiceNodeID))
	if semErr != sigErr {
		t.Fatalf("semantic and signature failures must look identical: %v vs %v", semErr, sigErr)
	}
	if rec.Count("type 66") != 2 {
		t.Fatalf("expected two type 66 diagnostics, got %+v", rec.Lines())
	}
	if rec.Count("invalid_signature") != 1 || rec.Count("invalid_semantics") != 1 {
		t.Fatalf("diagnostics should keep the failure class: %+v", rec.Lines())
	}
}

func TestDowngradeIsTotal(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}
	cases := []struct {
		err  error
		want error
		logs int
	}{
		{&offers.ParseError{Kind: offers.ParseDecode, Err: tlv.ErrShortValue}, tlv.ErrShortValue, 0},
		{&offers.ParseError{Kind: offers.ParseInvalidSemantics, Err: offers.ErrInvalidQuantity}, protocol.ErrInvalidValue, 1},
		{&offers.ParseError{Kind: offers.ParseInvalidSignature, Err: offers.ErrSignatureMismatch}, protocol.ErrInvalidValue, 1},
		{&offers.ParseError{Kind: offers.ParseErrorKind(42), Err: errors.New("future")}, protocol.ErrInvalidValue, 1},
		{errors.New("not a parse error"), protocol.ErrInvalidValue, 1},
	}
	for i, tc := range cases {
		before := len(rec.Lines())
		if got := codec.downgrade(64, tc.err); got != tc.want {
			t.Fatalf("case %d: got %v want %v", i, got, tc.want)
		}
		if logged := len(rec.Lines()) - before; logged != tc.logs {
			t.Fatalf("case %d: logged %d lines, want %d", i, logged, tc.logs)
		}
	}
}

func TestEncodeEmptyVariants(t *testing.T) {
	testlog.Start(t)
	var codec Codec
	for _, m := range []OffersMessage{InvoiceRequestMessage{}, InvoiceMessage{}, InvoiceErrorMessage{}} {
		if got := codec.Encode(m); len(got) != 0 {
			t.Fatalf("%T: expected empty payload, got %x", m, got)
		}
		var buf bytes.Buffer
		if err := codec.Write(&buf, m); err != nil || buf.Len() != 0 {
			t.Fatalf("%T: write: %v len=%d", m, err, buf.Len())
		}
		if s := fmt.Sprint(m); !strings.HasSuffix(s, "(nil)") {
			t.Fatalf("%T: unexpected string %q", m, s)
		}
	}
	env, ok := Result{Reply: InvoiceErrorMessage{}}.ReplyEnvelope()
	if !ok || env.Type != InvoiceErrorType || len(env.Payload) != 0 {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	_, err := Codec{Logger: rec}.DecodeBytes(70, []byte{0x01})
	if !errors.Is(err, protocol.ErrUnknownType) || !protocol.IsMalformed(err) {
		t.Fatalf("expected malformed unknown type, got %v", err)
	}
	if len(rec.Lines()) != 0 {
		t.Fatalf("unknown type must not log")
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecodeReadFailureIsIO(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, "io")
	src := &failingReader{data: f.request.Bytes()[:10], err: errors.New("link reset")}
	_, err := Codec{Logger: &testlog.Recorder{}}.Decode(InvoiceRequestType, src)
	if !errors.Is(err, protocol.ErrIO) || protocol.IsMalformed(err) {
		t.Fatalf("expected io failure, got %v", err)
	}
	if Classify(err) != OutcomeIO {
		t.Fatalf("classify: %v", Classify(err))
	}
}

func TestDecodePayloadLimit(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, "limit")
	payload := f.request.Bytes()
	codec := Codec{Logger: &testlog.Recorder{}, MaxPayloadBytes: int64(len(payload) - 1)}
	if _, err := codec.DecodeBytes(InvoiceRequestType, payload); !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	codec.MaxPayloadBytes = int64(len(payload))
	if _, err := codec.DecodeBytes(InvoiceRequestType, payload); err != nil {
		t.Fatalf("payload at limit: %v", err)
	}
}

func TestInvoiceErrorBypassesBuffering(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	ie := &offers.InvoiceError{ErroneousField: &offers.ErroneousField{TLVFieldNum: 86}, Message: "qty"}
	payload := ie.Bytes()
	codec := Codec{Logger: rec, MaxPayloadBytes: int64(len(payload))}
	msg, err := codec.DecodeBytes(InvoiceErrorType, payload)
	if err != nil {
		t.Fatalf("decode invoice_error: %v", err)
	}
	if !reflect.DeepEqual(msg, InvoiceErrorMessage{Error: ie}) {
		t.Fatalf("unexpected message %v", msg)
	}

	// A read failure after a complete record still reaches the reader, which
	// reports it as io rather than the buffering path's error.
	src := &failingReader{data: payload, err: errors.New("link reset")}
	if _, err := codec.Decode(InvoiceErrorType, src); !errors.Is(err, protocol.ErrIO) || strings.Contains(err.Error(), "buffer payload") {
		t.Fatalf("expected streaming io failure, got %v", err)
	}

	// Invalid error reports are returned verbatim, never downgraded.
	noMessage := tlv.EncodeStream([]tlv.Record{tlv.NewTU64(schema.TypeErroneousField, 1)})
	_, err = codec.DecodeBytes(InvoiceErrorType, noMessage)
	if !errors.Is(err, protocol.ErrInvalidValue) || err == protocol.ErrInvalidValue {
		t.Fatalf("expected detailed invalid value, got %v", err)
	}
	if len(rec.Lines()) != 0 {
		t.Fatalf("invoice_error failures must not be logged by the codec")
	}
}

func TestInvoiceErrorPayloadLimit(t *testing.T) {
	testlog.Start(t)
	ie := &offers.InvoiceError{Message: "over"}
	valid := ie.Bytes()
	// Many small odd records after a valid body: every value fits the per
	// record cap but the payload as a whole does not.
	padded := append([]byte(nil), valid...)
	for typ := uint64(1001); typ < 1201; typ += 2 {
		padded = tlv.AppendRecord(padded, tlv.NewBytes(typ, []byte{0x00}))
	}
	codec := Codec{Logger: &testlog.Recorder{}, MaxPayloadBytes: int64(len(valid))}

	if _, err := codec.DecodeBytes(InvoiceErrorType, valid); err != nil {
		t.Fatalf("payload at limit: %v", err)
	}
	_, err := codec.DecodeBytes(InvoiceErrorType, padded)
	if !errors.Is(err, protocol.ErrPayloadTooLarge) || !protocol.IsMalformed(err) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if _, err := codec.DecodeBytes(InvoiceErrorType, valid[:len(valid)-1]); errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("short payload must not report the limit: %v", err)
	}
	if _, err := (Codec{}).DecodeBytes(InvoiceErrorType, padded); err != nil {
		t.Fatalf("unlimited codec should accept padded payload: %v", err)
	}
}

func TestConcurrentDecode(t *testing.T) {
	testlog.Start(t)
	rec := &testlog.Recorder{}
	codec := Codec{Logger: rec}

	type job struct {
		typ     uint64
		payload []byte
		want    OffersMessage
		wantErr error
	}
	var jobs []job
	for i := 0; i < 4; i++ {
		f := newFixture(t, fmt.Sprintf("payer-%d", i))
		ie := offers.NewInvoiceError(fmt.Sprintf("error %d", i))
		jobs = append(jobs,
			job{typ: InvoiceRequestType, payload: f.request.Bytes(), want: InvoiceRequestMessage{Request: f.request}},
			job{typ: InvoiceType, payload: f.invoice.Bytes(), want: InvoiceMessage{Invoice: f.invoice}},
			job{typ: InvoiceErrorType, payload: ie.Bytes(), want: InvoiceErrorMessage{Error: ie}},
			job{
				typ:     InvoiceRequestType,
				payload: withoutRecord(t, f.request.Bytes(), schema.TypeInvreqPayerID),
				wantErr: protocol.ErrInvalidValue,
			},
		)
	}

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				j := jobs[(w+i)%len(jobs)]
				got, err := codec.DecodeBytes(j.typ, j.payload)
				if j.wantErr != nil {
					if err != j.wantErr {
						return fmt.Errorf("type %d: got err %v want %v", j.typ, err, j.wantErr)
					}
					continue
				}
				if err != nil {
					return fmt.Errorf("type %d: %w", j.typ, err)
				}
				if !reflect.DeepEqual(got, j.want) {
					return fmt.Errorf("type %d: result mismatch", j.typ)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent decode: %v", err)
	}
	for _, line := range rec.Lines() {
		if !strings.Contains(line.Text, "type 64") {
			t.Fatalf("unexpected diagnostic %q", line.Text)
		}
	}
}

var _ io.Reader = (*failingReader)(nil)
