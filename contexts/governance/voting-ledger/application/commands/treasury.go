package commands

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	application "votingledger/contexts/governance/voting-ledger/application"
	"votingledger/contexts/governance/voting-ledger/domain/entities"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
)

type WithdrawCommissionCommand struct {
	Caller common.Address
}

type WithdrawResult struct {
	Owner  common.Address
	Amount *big.Int
}

type TreasuryUseCase struct {
	Ledger ports.Ledger
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// WithdrawCommission moves the whole commission balance to the owner. An
// empty treasury succeeds with a zero amount and emits no event.
func (uc TreasuryUseCase) WithdrawCommission(ctx context.Context, cmd WithdrawCommissionCommand) (WithdrawResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("commission withdraw processing started", application.LogAttrs(
		"treasury_withdraw_started", "application",
		"caller", cmd.Caller.Hex(),
	)...)

	now := uc.now()
	var result WithdrawResult
	err := uc.Ledger.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		registry, err := tx.LockRegistry(ctx)
		if err != nil {
			return err
		}
		amount, err := registry.WithdrawCommission(cmd.Caller, now)
		if err != nil {
			return err
		}
		result = WithdrawResult{Owner: registry.Owner, Amount: amount}
		if amount.Sign() == 0 {
			return nil
		}

		if err := tx.SaveRegistry(ctx, registry); err != nil {
			return err
		}
		transferID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		if err := tx.Transfer(ctx, entities.Transfer{
			TransferID: transferID,
			To:         registry.Owner,
			Amount:     new(big.Int).Set(amount),
			Reason:     entities.TransferReasonCommission,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		eventID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		envelope, err := newLedgerEnvelope(eventID, EventCommissionWithdrawn, "owner", registry.Owner.Hex(), now, map[string]any{
			"owner":           registry.Owner.Hex(),
			"amount_wei":      amount.String(),
			"withdrawn_total": registry.WithdrawnTotal.String(),
			"occurred_at":     now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, envelope)
	})
	if err != nil {
		logger.Warn("commission withdraw rejected", application.LogAttrs(
			"treasury_withdraw_rejected", "application",
			"caller", cmd.Caller.Hex(),
			"error", err.Error(),
		)...)
		return WithdrawResult{}, err
	}

	logger.Info("commission withdrawn", application.LogAttrs(
		"treasury_withdrawn", "application",
		"owner", result.Owner.Hex(),
		"amount_wei", result.Amount.String(),
	)...)
	return result, nil
}

func (uc TreasuryUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
