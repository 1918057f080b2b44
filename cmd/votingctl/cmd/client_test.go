package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ledgerhttp "votingledger/contexts/governance/voting-ledger/transport/http"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

func TestClientSendsCallerAndDecodesResponse(t *testing.T) {
	var gotCaller, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = r.Header.Get(callerHeader)
		var req ledgerhttp.CreateRoundRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.Name
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ledgerhttp.RoundResponse{RoundID: 4, Name: req.Name, IsOpen: true})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "0x00000000000000000000000000000000000000a1")
	var out ledgerhttp.RoundResponse
	if err := client.Do(context.Background(), http.MethodPost, "/v1/rounds", ledgerhttp.CreateRoundRequest{Name: "Elections"}, &out); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotCaller != "0x00000000000000000000000000000000000000a1" {
		t.Fatalf("expected caller header, got %q", gotCaller)
	}
	if gotBody != "Elections" || out.RoundID != 4 || !out.IsOpen {
		t.Fatalf("unexpected round trip: body=%q out=%+v", gotBody, out)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooEarly)
		_ = json.NewEncoder(w).Encode(ledgerhttp.ErrorResponse{Code: "too_early", Message: "voting period has not ended"})
	}))
	defer server.Close()

	err := NewClient(server.URL, "").Do(context.Background(), http.MethodPost, "/v1/rounds/0/settle", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusTooEarly || apiErr.Code != "too_early" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClientFallsBackToStatusTextForPlainErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient(server.URL, "").Do(context.Background(), http.MethodGet, "/v1/treasury", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != http.StatusText(http.StatusBadGateway) || apiErr.Message != "upstream down" {
		t.Fatalf("unexpected fallback error: %+v", apiErr)
	}
}

func TestVoteCommandUsesFlagsAndEnvironment(t *testing.T) {
	var gotPath, gotCaller string
	var gotReq ledgerhttp.CastVoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCaller = r.Header.Get(callerHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ledgerhttp.RoundResponse{RoundID: 2, VoterCount: 1})
	}))
	defer server.Close()

	t.Setenv("VOTINGCTL_CALLER", "0x00000000000000000000000000000000000000b1")
	root := NewRootCommand(viper.New())
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"--api-url", server.URL, "vote", "2", "0x00000000000000000000000000000000000000b2"})

	if err := root.Execute(); err != nil {
		t.Fatalf("vote command failed: %v", err)
	}
	if gotPath != "/v1/rounds/2/votes" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotCaller != "0x00000000000000000000000000000000000000b1" {
		t.Fatalf("expected caller from environment, got %q", gotCaller)
	}
	if gotReq.PaymentWei != defaultPaymentWei || gotReq.Candidate != "0x00000000000000000000000000000000000000b2" {
		t.Fatalf("unexpected vote request: %+v", gotReq)
	}
	if !strings.Contains(stdout.String(), `"voter_count": 1`) {
		t.Fatalf("expected JSON output, got %s", stdout.String())
	}
}

func TestCommandsEscapePathArguments(t *testing.T) {
	var gotPaths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cases := [][]string{
		{"info", "1/../../treasury"},
		{"settle", "2?x=1"},
		{"vote", "3 4", "0x00000000000000000000000000000000000000b2"},
		{"balance", "0xb1/withdraw"},
	}
	for _, args := range cases {
		root := NewRootCommand(viper.New())
		root.SetOut(&bytes.Buffer{})
		root.SetArgs(append([]string{"--api-url", server.URL, "--caller", "0x00000000000000000000000000000000000000a1"}, args...))
		if err := root.Execute(); err != nil {
			t.Fatalf("%s command failed: %v", args[0], err)
		}
	}

	want := []string{
		"/v1/rounds/1%2F..%2F..%2Ftreasury/voting-info",
		"/v1/rounds/2%3Fx=1/settle",
		"/v1/rounds/3%204/votes",
		"/v1/accounts/0xb1%2Fwithdraw/balance",
	}
	if diff := cmp.Diff(want, gotPaths); diff != "" {
		t.Fatalf("unexpected request paths (-want +got):\n%s", diff)
	}
}
