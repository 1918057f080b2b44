package commands

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "votingledger/contexts/governance/voting-ledger/application"
	"votingledger/contexts/governance/voting-ledger/domain/entities"
	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

type CreateRoundCommand struct {
	Caller common.Address
	Name   string
}

type CastVoteCommand struct {
	RoundID   uint64
	Voter     common.Address
	Candidate common.Address
	Payment   *big.Int
}

type SettleRoundCommand struct {
	RoundID uint64
	Caller  common.Address
}

// RoundUseCase owns the round lifecycle: owner-only creation, paid one-shot
// votes and time-gated settlement. Every command runs in a single ledger
// transaction, so a failure at any step leaves no partial state.
type RoundUseCase struct {
	Ledger        ports.Ledger
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	EntryFee      *big.Int
	CommissionBps uint64
	Logger        *slog.Logger
}

// CreateRound opens a new round. Only the registry owner may call it; the
// returned round carries the allocated sequential id.
func (uc RoundUseCase) CreateRound(ctx context.Context, cmd CreateRoundCommand) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	name := strings.TrimSpace(cmd.Name)
	logger.Info("round create processing started", application.LogAttrs(
		"voting_round_create_started", "application",
		"caller", cmd.Caller.Hex(),
		"name", name,
	)...)
	if name == "" {
		logger.Warn("round create validation failed", application.LogAttrs(
			"voting_round_create_validation_failed", "application",
			"caller", cmd.Caller.Hex(),
		)...)
		return entities.Round{}, domainerrors.ErrInvalidInput
	}

	now := uc.now()
	var created entities.Round
	err := uc.Ledger.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		registry, err := tx.LockRegistry(ctx)
		if err != nil {
			return err
		}
		if !registry.IsOwner(cmd.Caller) {
			return domainerrors.ErrUnauthorized
		}

		round, err := entities.NewRound(registry.AllocateRoundID(), name, now)
		if err != nil {
			return err
		}
		registry.UpdatedAt = now
		if err := tx.CreateRound(ctx, round); err != nil {
			return err
		}
		if err := tx.SaveRegistry(ctx, registry); err != nil {
			return err
		}
		if err := uc.appendEvent(ctx, tx, EventRoundCreated, round.RoundID, now, map[string]any{
			"round_id":   round.RoundID,
			"name":       round.Name,
			"created_by": cmd.Caller.Hex(),
			"deadline":   round.Deadline.Format(time.RFC3339),
		}); err != nil {
			return err
		}
		created = round
		return nil
	})
	if err != nil {
		logger.Warn("round create rejected", application.LogAttrs(
			"voting_round_create_rejected", "application",
			"caller", cmd.Caller.Hex(),
			"error", err.Error(),
		)...)
		return entities.Round{}, err
	}

	logger.Info("round created", application.LogAttrs(
		"voting_round_created", "application",
		"round_id", created.RoundID,
		"name", created.Name,
		"deadline", created.Deadline.Format(time.RFC3339),
	)...)
	return created, nil
}

// CastVote records one paid vote and returns the round state after it.
func (uc RoundUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.RoundInfo, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("vote cast processing started", application.LogAttrs(
		"voting_vote_cast_started", "application",
		"round_id", cmd.RoundID,
		"voter", cmd.Voter.Hex(),
		"candidate", cmd.Candidate.Hex(),
	)...)

	now := uc.now()
	var info entities.RoundInfo
	err := uc.Ledger.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		round, err := tx.LockRoundForVoter(ctx, cmd.RoundID, cmd.Voter)
		if err != nil {
			return err
		}
		if err := round.CastVote(cmd.Voter, cmd.Candidate, cmd.Payment, uc.CurrentEntryFee(), now); err != nil {
			return err
		}
		if err := tx.SaveRound(ctx, round); err != nil {
			return err
		}
		if err := tx.AppendBallot(ctx, round.RoundID, round.Ballots[cmd.Voter], round.VotesFor(cmd.Candidate)); err != nil {
			return err
		}
		if err := uc.appendEvent(ctx, tx, EventVoteCast, round.RoundID, now, map[string]any{
			"round_id":    round.RoundID,
			"voter":       cmd.Voter.Hex(),
			"candidate":   cmd.Candidate.Hex(),
			"payment_wei": cmd.Payment.String(),
			"leader":      round.Leader.Hex(),
			"voter_count": round.VoterCount(),
		}); err != nil {
			return err
		}
		info = round.Info()
		return nil
	})
	if err != nil {
		logger.Warn("vote cast rejected", application.LogAttrs(
			"voting_vote_cast_rejected", "application",
			"round_id", cmd.RoundID,
			"voter", cmd.Voter.Hex(),
			"error", err.Error(),
		)...)
		return entities.RoundInfo{}, err
	}

	logger.Info("vote cast", application.LogAttrs(
		"voting_vote_cast", "application",
		"round_id", info.RoundID,
		"voter", cmd.Voter.Hex(),
		"leader", info.Leader.Hex(),
		"voter_count", info.VoterCount,
	)...)
	return info, nil
}

// Settle closes a round whose deadline has passed, pays the leader and
// credits the commission to the treasury. Anyone may settle.
func (uc RoundUseCase) Settle(ctx context.Context, cmd SettleRoundCommand) (entities.Settlement, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("round settle processing started", application.LogAttrs(
		"voting_round_settle_started", "application",
		"round_id", cmd.RoundID,
		"caller", cmd.Caller.Hex(),
	)...)

	now := uc.now()
	var settlement entities.Settlement
	err := uc.Ledger.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		round, err := tx.LockRound(ctx, cmd.RoundID)
		if err != nil {
			return err
		}
		result, err := round.Settle(now, uc.CommissionBps)
		if err != nil {
			return err
		}
		registry, err := tx.LockRegistry(ctx)
		if err != nil {
			return err
		}
		registry.CreditCommission(result.Commission, now)

		if err := tx.SaveRound(ctx, round); err != nil {
			return err
		}
		if err := tx.SaveRegistry(ctx, registry); err != nil {
			return err
		}
		if result.Payout.Sign() > 0 && result.Leader != (common.Address{}) {
			transferID, err := uc.IDGen.NewID(ctx)
			if err != nil {
				return err
			}
			roundID := round.RoundID
			if err := tx.Transfer(ctx, entities.Transfer{
				TransferID: transferID,
				To:         result.Leader,
				Amount:     new(big.Int).Set(result.Payout),
				Reason:     entities.TransferReasonPayout,
				RoundID:    &roundID,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		if err := uc.appendEvent(ctx, tx, EventRoundSettled, round.RoundID, now, map[string]any{
			"round_id":       round.RoundID,
			"leader":         result.Leader.Hex(),
			"pool_wei":       result.Pool.String(),
			"payout_wei":     result.Payout.String(),
			"commission_wei": result.Commission.String(),
			"voter_count":    round.VoterCount(),
			"settled_by":     cmd.Caller.Hex(),
		}); err != nil {
			return err
		}
		settlement = result
		return nil
	})
	if err != nil {
		logger.Warn("round settle rejected", application.LogAttrs(
			"voting_round_settle_rejected", "application",
			"round_id", cmd.RoundID,
			"error", err.Error(),
		)...)
		return entities.Settlement{}, err
	}

	logger.Info("round settled", application.LogAttrs(
		"voting_round_settled", "application",
		"round_id", settlement.RoundID,
		"leader", settlement.Leader.Hex(),
		"payout_wei", settlement.Payout.String(),
		"commission_wei", settlement.Commission.String(),
	)...)
	return settlement, nil
}

func (uc RoundUseCase) appendEvent(
	ctx context.Context,
	tx ports.LedgerTx,
	eventType string,
	roundID uint64,
	occurredAt time.Time,
	data map[string]any,
) error {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data["occurred_at"] = occurredAt.UTC().Format(time.RFC3339)
	envelope, err := newLedgerEnvelope(eventID, eventType, "round_id", roundPartitionKey(roundID), occurredAt, data)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, envelope)
}

// CurrentEntryFee is the fee votes must pay. A missing or non-positive
// configured fee falls back to DefaultEntryFee.
func (uc RoundUseCase) CurrentEntryFee() *big.Int {
	if uc.EntryFee == nil || uc.EntryFee.Sign() <= 0 {
		return DefaultEntryFee()
	}
	return uc.EntryFee
}

func (uc RoundUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

// DefaultEntryFee is 0.01 ether in wei.
func DefaultEntryFee() *big.Int {
	return new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(100))
}

// DefaultCommissionBps retains 10% of every settled pool.
const DefaultCommissionBps uint64 = 1000
