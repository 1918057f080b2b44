package httpadapter

import (
	"context"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"votingledger/contexts/governance/voting-ledger/application/commands"
	"votingledger/contexts/governance/voting-ledger/application/queries"
	"votingledger/contexts/governance/voting-ledger/domain/entities"
	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"
	httptransport "votingledger/contexts/governance/voting-ledger/transport/http"

	"github.com/ethereum/go-ethereum/common"
)

// Handler adapts transport DTOs to the ledger use cases. Caller, path and
// body values arrive as raw strings and are parsed here.
type Handler struct {
	Rounds        commands.RoundUseCase
	Treasury      commands.TreasuryUseCase
	RoundQueries  queries.RoundQueryUseCase
	TreasuryQuery queries.TreasuryQueryUseCase
	Logger        *slog.Logger
}

// CreateRoundHandler godoc
// @Summary Create voting round
// @Description Opens a new round. Owner only.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param request body httptransport.CreateRoundRequest true "Round name"
// @Success 201 {object} httptransport.RoundResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/rounds [post]
func (h Handler) CreateRoundHandler(
	ctx context.Context,
	caller string,
	req httptransport.CreateRoundRequest,
) (httptransport.RoundResponse, error) {
	callerAddress, err := ParseAddress(caller)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	round, err := h.Rounds.CreateRound(ctx, commands.CreateRoundCommand{
		Caller: callerAddress,
		Name:   req.Name,
	})
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return mapRound(round.Info()), nil
}

// CastVoteHandler godoc
// @Summary Cast vote
// @Description Records one paid vote for a candidate.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Voter address"
// @Param round_id path int true "Round id"
// @Param request body httptransport.CastVoteRequest true "Vote"
// @Success 200 {object} httptransport.RoundResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/rounds/{round_id}/votes [post]
func (h Handler) CastVoteHandler(
	ctx context.Context,
	caller string,
	roundID string,
	req httptransport.CastVoteRequest,
) (httptransport.RoundResponse, error) {
	voter, err := ParseAddress(caller)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	id, err := ParseRoundID(roundID)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	candidate, err := ParseAddress(req.Candidate)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	payment, err := ParseWei(req.PaymentWei)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	info, err := h.Rounds.CastVote(ctx, commands.CastVoteCommand{
		RoundID:   id,
		Voter:     voter,
		Candidate: candidate,
		Payment:   payment,
	})
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return mapRound(info), nil
}

// SettleRoundHandler godoc
// @Summary Settle voting round
// @Description Closes the round and pays the leader once the voting period ended.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Param round_id path int true "Round id"
// @Success 200 {object} httptransport.SettlementResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 425 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/rounds/{round_id}/settle [post]
func (h Handler) SettleRoundHandler(ctx context.Context, caller string, roundID string) (httptransport.SettlementResponse, error) {
	callerAddress, err := ParseAddress(caller)
	if err != nil {
		return httptransport.SettlementResponse{}, err
	}
	id, err := ParseRoundID(roundID)
	if err != nil {
		return httptransport.SettlementResponse{}, err
	}
	settlement, err := h.Rounds.Settle(ctx, commands.SettleRoundCommand{
		RoundID: id,
		Caller:  callerAddress,
	})
	if err != nil {
		return httptransport.SettlementResponse{}, err
	}
	return httptransport.SettlementResponse{
		RoundID:       settlement.RoundID,
		Leader:        settlement.Leader.Hex(),
		PoolWei:       settlement.Pool.String(),
		CommissionWei: settlement.Commission.String(),
		PayoutWei:     settlement.Payout.String(),
		SettledAt:     settlement.SettledAt,
	}, nil
}

// GetRoundHandler godoc
// @Summary Get voting round
// @Description Returns one round.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param round_id path int true "Round id"
// @Success 200 {object} httptransport.RoundResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/rounds/{round_id} [get]
func (h Handler) GetRoundHandler(ctx context.Context, roundID string) (httptransport.RoundResponse, error) {
	id, err := ParseRoundID(roundID)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	info, err := h.RoundQueries.RoundInfo(ctx, id)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return mapRound(info), nil
}

// VotingInfoHandler godoc
// @Summary Get voting info
// @Description Returns name, deadline, open flag, leader and voter count.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param round_id path int true "Round id"
// @Success 200 {object} httptransport.VotingInfoResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/rounds/{round_id}/voting-info [get]
func (h Handler) VotingInfoHandler(ctx context.Context, roundID string) (httptransport.VotingInfoResponse, error) {
	id, err := ParseRoundID(roundID)
	if err != nil {
		return httptransport.VotingInfoResponse{}, err
	}
	info, err := h.RoundQueries.VotingInfo(ctx, id)
	if err != nil {
		return httptransport.VotingInfoResponse{}, err
	}
	return httptransport.VotingInfoResponse{
		Name:       info.Name,
		Deadline:   info.Deadline,
		IsOpen:     info.IsOpen,
		Leader:     info.Leader.Hex(),
		VoterCount: info.VoterCount,
	}, nil
}

// ListRoundsHandler godoc
// @Summary List voting rounds
// @Description Returns every round in id order.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Success 200 {object} httptransport.ListRoundsResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/rounds [get]
func (h Handler) ListRoundsHandler(ctx context.Context) (httptransport.ListRoundsResponse, error) {
	rounds, err := h.RoundQueries.ListRounds(ctx)
	if err != nil {
		return httptransport.ListRoundsResponse{}, err
	}
	items := make([]httptransport.RoundResponse, 0, len(rounds))
	for _, info := range rounds {
		items = append(items, mapRound(info))
	}
	return httptransport.ListRoundsResponse{Items: items}, nil
}

// TreasuryHandler godoc
// @Summary Get treasury
// @Description Returns the owner, round counter and commission balance.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Success 200 {object} httptransport.TreasuryResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/treasury [get]
func (h Handler) TreasuryHandler(ctx context.Context) (httptransport.TreasuryResponse, error) {
	registry, err := h.TreasuryQuery.Registry(ctx)
	if err != nil {
		return httptransport.TreasuryResponse{}, err
	}
	entryFee := h.Rounds.CurrentEntryFee()
	return httptransport.TreasuryResponse{
		Owner:                registry.Owner.Hex(),
		NextRoundID:          registry.NextRoundID,
		CommissionBalanceWei: registry.CommissionBalance.String(),
		WithdrawnTotalWei:    registry.WithdrawnTotal.String(),
		EntryFeeWei:          entryFee.String(),
		CommissionBps:        h.Rounds.CommissionBps,
	}, nil
}

// WithdrawCommissionHandler godoc
// @Summary Withdraw commission
// @Description Transfers the commission balance to the owner. Owner only.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Caller address"
// @Success 200 {object} httptransport.WithdrawResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/treasury/withdraw [post]
func (h Handler) WithdrawCommissionHandler(ctx context.Context, caller string) (httptransport.WithdrawResponse, error) {
	callerAddress, err := ParseAddress(caller)
	if err != nil {
		return httptransport.WithdrawResponse{}, err
	}
	result, err := h.Treasury.WithdrawCommission(ctx, commands.WithdrawCommissionCommand{
		Caller: callerAddress,
	})
	if err != nil {
		return httptransport.WithdrawResponse{}, err
	}
	return httptransport.WithdrawResponse{
		Owner:     result.Owner.Hex(),
		AmountWei: result.Amount.String(),
	}, nil
}

// BalanceHandler godoc
// @Summary Get account balance
// @Description Returns the amount paid out to an address.
// @Tags voting-ledger
// @Accept json
// @Produce json
// @Param address path string true "Account address"
// @Success 200 {object} httptransport.BalanceResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/accounts/{address}/balance [get]
func (h Handler) BalanceHandler(ctx context.Context, address string) (httptransport.BalanceResponse, error) {
	account, err := ParseAddress(address)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	balance, err := h.TreasuryQuery.Balance(ctx, account)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	return httptransport.BalanceResponse{
		Address:    account.Hex(),
		BalanceWei: balance.String(),
	}, nil
}

// ParseAddress accepts a 0x-prefixed or bare 40-digit hex address. The zero
// address is rejected.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, domainerrors.ErrInvalidInput
	}
	address := common.HexToAddress(raw)
	if address == (common.Address{}) {
		return common.Address{}, domainerrors.ErrInvalidInput
	}
	return address, nil
}

func ParseRoundID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, domainerrors.ErrInvalidInput
	}
	return id, nil
}

// ParseWei parses a non-negative decimal wei amount.
func ParseWei(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return nil, domainerrors.ErrInvalidInput
	}
	return value, nil
}

func mapRound(info entities.RoundInfo) httptransport.RoundResponse {
	pool := "0"
	if info.Pool != nil {
		pool = info.Pool.String()
	}
	return httptransport.RoundResponse{
		RoundID:    info.RoundID,
		Name:       info.Name,
		Status:     string(info.Status),
		IsOpen:     info.IsOpen,
		Leader:     info.Leader.Hex(),
		VoterCount: info.VoterCount,
		PoolWei:    pool,
		CreatedAt:  info.CreatedAt,
		Deadline:   info.Deadline,
		SettledAt:  info.SettledAt,
	}
}
