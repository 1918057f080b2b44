package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	votingledger "votingledger/contexts/governance/voting-ledger"
	"votingledger/contexts/governance/voting-ledger/domain/entities"
	ledgerhttp "votingledger/contexts/governance/voting-ledger/transport/http"

	"github.com/ethereum/go-ethereum/common"
)

const (
	testOwnerHex = "0x00000000000000000000000000000000000000A1"
	testVoterHex = "0x00000000000000000000000000000000000000B1"
	testLeadHex  = "0x00000000000000000000000000000000000000B2"
)

func newLedgerTestServer(t *testing.T) (*Server, votingledger.Module) {
	t.Helper()
	module, err := votingledger.NewInMemoryModule(common.HexToAddress(testOwnerHex), nil)
	if err != nil {
		t.Fatalf("new in-memory module failed: %v", err)
	}
	return New(module, nil, ":0"), module
}

func doLedgerRequest(server *Server, method string, path string, caller string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decodeLedgerError(t *testing.T, rr *httptest.ResponseRecorder) ledgerhttp.ErrorResponse {
	t.Helper()
	var resp ledgerhttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body failed: %v body=%s", err, rr.Body.String())
	}
	return resp
}

func TestLedgerCreateRoundRequiresCaller(t *testing.T) {
	server, _ := newLedgerTestServer(t)

	rr := doLedgerRequest(server, http.MethodPost, "/v1/rounds", "", `{"name":"Elections"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeLedgerError(t, rr).Code; got != "missing_caller" {
		t.Fatalf("expected missing_caller, got %q", got)
	}
}

func TestLedgerCreateRoundRejectsNonOwner(t *testing.T) {
	server, _ := newLedgerTestServer(t)

	rr := doLedgerRequest(server, http.MethodPost, "/v1/rounds", testVoterHex, `{"name":"Elections"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLedgerCreateRoundRejectsMalformedBody(t *testing.T) {
	server, _ := newLedgerTestServer(t)

	rr := doLedgerRequest(server, http.MethodPost, "/v1/rounds", testOwnerHex, `{"name":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLedgerRoundLifecycleOverHTTP(t *testing.T) {
	server, module := newLedgerTestServer(t)

	rr := doLedgerRequest(server, http.MethodPost, "/v1/rounds", testOwnerHex, `{"name":"Elections"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created ledgerhttp.RoundResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode round failed: %v", err)
	}
	if created.RoundID != 0 || !created.IsOpen || created.Name != "Elections" {
		t.Fatalf("unexpected created round: %+v", created)
	}

	rr = doLedgerRequest(server, http.MethodPost, "/v1/rounds/0/votes", testVoterHex,
		`{"candidate":"`+testLeadHex+`","payment_wei":"1"}`)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doLedgerRequest(server, http.MethodPost, "/v1/rounds/0/votes", testVoterHex,
		`{"candidate":"`+testLeadHex+`","payment_wei":"10000000000000000"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doLedgerRequest(server, http.MethodPost, "/v1/rounds/0/votes", testVoterHex,
		`{"candidate":"`+testLeadHex+`","payment_wei":"10000000000000000"}`)
	if rr.Code != http.StatusConflict || decodeLedgerError(t, rr).Code != "already_voted" {
		t.Fatalf("expected 409 already_voted, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doLedgerRequest(server, http.MethodGet, "/v1/rounds/0/voting-info", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var info ledgerhttp.VotingInfoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode voting info failed: %v", err)
	}
	if !strings.EqualFold(info.Leader, testLeadHex) || info.VoterCount != 1 {
		t.Fatalf("unexpected voting info: %+v", info)
	}

	rr = doLedgerRequest(server, http.MethodPost, "/v1/rounds/0/settle", testVoterHex, "")
	if rr.Code != http.StatusTooEarly {
		t.Fatalf("expected 425, got %d body=%s", rr.Code, rr.Body.String())
	}

	module.Store.Advance(entities.VotingPeriod)
	rr = doLedgerRequest(server, http.MethodPost, "/v1/rounds/0/settle", testVoterHex, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var settlement ledgerhttp.SettlementResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &settlement); err != nil {
		t.Fatalf("decode settlement failed: %v", err)
	}
	if settlement.PayoutWei != "9000000000000000" || settlement.CommissionWei != "1000000000000000" {
		t.Fatalf("unexpected settlement: %+v", settlement)
	}

	rr = doLedgerRequest(server, http.MethodPost, "/v1/treasury/withdraw", testVoterHex, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doLedgerRequest(server, http.MethodPost, "/v1/treasury/withdraw", testOwnerHex, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doLedgerRequest(server, http.MethodGet, "/v1/accounts/"+testLeadHex+"/balance", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var balance ledgerhttp.BalanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance failed: %v", err)
	}
	if balance.BalanceWei != "9000000000000000" {
		t.Fatalf("expected leader balance 9000000000000000, got %s", balance.BalanceWei)
	}
}

func TestLedgerUnknownRoundReturnsNotFound(t *testing.T) {
	server, _ := newLedgerTestServer(t)

	rr := doLedgerRequest(server, http.MethodGet, "/v1/rounds/42", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doLedgerRequest(server, http.MethodGet, "/v1/rounds/not-a-number", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLedgerHealthz(t *testing.T) {
	server, _ := newLedgerTestServer(t)

	rr := doLedgerRequest(server, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}
