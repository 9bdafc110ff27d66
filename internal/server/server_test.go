package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/onionoffers/internal/config"
	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/danmuck/onionoffers/internal/offers"
	"github.com/danmuck/onionoffers/internal/onionmsg"
	"github.com/danmuck/onionoffers/internal/responder"
	"github.com/danmuck/onionoffers/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func testServer(t *testing.T, token string) (*Server, *responder.Responder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	key, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
	r := responder.New(offers.Offer{Description: "coffee", AmountMsats: 1000}, key)
	cfg := config.Default()
	cfg.Server.Token = token
	codec := cfg.NewCodec(&testlog.Recorder{})
	d := cfg.NewDispatcher(codec, r, nil)
	return New(cfg.Server, codec, d), r
}

func testRequestHex(t *testing.T, offer offers.Offer) string {
	t.Helper()
	payer, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x22}, 32))
	req, err := offers.NewInvoiceRequest(offer, payer, offers.InvoiceRequestParams{PayerMetadata: []byte{0x01}})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return hex.EncodeToString(req.Bytes())
}

func do(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthAndKinds(t *testing.T) {
	testlog.Start(t)
	s, _ := testServer(t, "")
	if w := do(t, s, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	w := do(t, s, http.MethodGet, "/kinds", "", "")
	var body struct {
		Kinds []KindView `json:"kinds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode kinds: %v", err)
	}
	if len(body.Kinds) != 3 || body.Kinds[2].Type != onionmsg.InvoiceErrorType || !body.Kinds[2].Streaming {
		t.Fatalf("unexpected kinds: %+v", body.Kinds)
	}
	if w := do(t, s, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestDecodeRoute(t *testing.T) {
	testlog.Start(t)
	s, r := testServer(t, "")
	payload := testRequestHex(t, r.Offer)

	w := do(t, s, http.MethodPost, "/decode", `{"type":64,"payload_hex":"`+payload+`"}`, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"outcome":"decoded"`) {
		t.Fatalf("decode: %d %s", w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodPost, "/decode", `{"type":64,"payload_hex":"ff"}`, "")
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), `"outcome":"malformed"`) {
		t.Fatalf("garbage decode: %d %s", w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodPost, "/decode", `{"type":70,"payload_hex":"00"}`, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown type: %d", w.Code)
	}

	w = do(t, s, http.MethodPost, "/decode", `{"type":64,"payload_hex":"zz"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad hex: %d", w.Code)
	}
}

func TestDispatchRouteReplies(t *testing.T) {
	testlog.Start(t)
	s, r := testServer(t, "")
	payload := testRequestHex(t, r.Offer)
	body := `{"envelopes":[{"type":64,"payload_hex":"` + payload + `"},{"type":71,"payload_hex":""}]}`

	w := do(t, s, http.MethodPost, "/dispatch", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Results []ResultView `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(out.Results) != 2 || out.Results[0].ReplyHex == "" || out.Results[1].Outcome != "unknown_type" {
		t.Fatalf("unexpected results: %+v", out.Results)
	}
	reply, _ := hex.DecodeString(out.Results[0].ReplyHex)
	if _, err := (onionmsg.Codec{}).DecodeBytes(onionmsg.InvoiceType, reply); err != nil {
		t.Fatalf("reply is not an invoice: %v", err)
	}
}

func TestTokenRequiredForPostRoutes(t *testing.T) {
	testlog.Start(t)
	s, _ := testServer(t, "secret")
	body := `{"type":68,"payload_hex":"0500"}`
	if w := do(t, s, http.MethodPost, "/decode", body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/decode", body, "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/decode", body, "secret"); w.Code != http.StatusOK {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("health should stay open: %d", w.Code)
	}
}

func TestRequestLogsUseProcessLogger(t *testing.T) {
	testlog.Start(t)
	prev := logs.Logger()
	t.Cleanup(func() { logs.Use(prev) })

	var buf bytes.Buffer
	logs.Use(logs.New(logs.Config{Level: zerolog.InfoLevel, Bypass: true, Out: &buf}))
	s, _ := testServer(t, "")
	if w := do(t, s, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"message":"http_request"`) || !strings.Contains(out, `"path":"/health"`) {
		t.Fatalf("request log not written to process logger: %q", out)
	}
}
