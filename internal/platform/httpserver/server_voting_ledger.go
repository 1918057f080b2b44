package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	ledgererrors "votingledger/contexts/governance/voting-ledger/domain/errors"
	ledgerhttp "votingledger/contexts/governance/voting-ledger/transport/http"
)

// callerHeader carries the acting address. Requests are trusted to present
// their own address.
const callerHeader = "X-Caller-Address"

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{Code: code, Message: message})
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrInvalidInput):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ledgererrors.ErrUnauthorized):
		writeLedgerError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, ledgererrors.ErrRoundNotFound):
		writeLedgerError(w, http.StatusNotFound, "round_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrRoundClosed):
		writeLedgerError(w, http.StatusConflict, "round_closed", err.Error())
	case errors.Is(err, ledgererrors.ErrAlreadyClosed):
		writeLedgerError(w, http.StatusConflict, "already_closed", err.Error())
	case errors.Is(err, ledgererrors.ErrAlreadyVoted):
		writeLedgerError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, ledgererrors.ErrTooEarly):
		writeLedgerError(w, http.StatusTooEarly, "too_early", err.Error())
	case errors.Is(err, ledgererrors.ErrInsufficientPayment):
		writeLedgerError(w, http.StatusPaymentRequired, "insufficient_payment", err.Error())
	case errors.Is(err, ledgererrors.ErrTransferRejected):
		writeLedgerError(w, http.StatusBadGateway, "transfer_rejected", err.Error())
	case errors.Is(err, ledgererrors.ErrConflict):
		writeLedgerError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func requireLedgerCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(callerHeader))
	if caller == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_caller", callerHeader+" header is required")
		return "", false
	}
	return caller, true
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireLedgerCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.CreateRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.CreateRoundHandler(r.Context(), caller, req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ListRoundsHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.GetRoundHandler(r.Context(), r.PathValue("round_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVotingInfo(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.VotingInfoHandler(r.Context(), r.PathValue("round_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireLedgerCaller(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.CastVoteHandler(r.Context(), caller, r.PathValue("round_id"), req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettleRound(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireLedgerCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.SettleRoundHandler(r.Context(), caller, r.PathValue("round_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.TreasuryHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdrawCommission(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireLedgerCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.WithdrawCommissionHandler(r.Context(), caller)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.BalanceHandler(r.Context(), r.PathValue("address"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
