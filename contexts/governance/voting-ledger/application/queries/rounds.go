package queries

import (
	"context"
	"math/big"
	"sort"
	"time"

	"votingledger/contexts/governance/voting-ledger/domain/entities"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
)

// VotingInfo is the compact view participants poll while a round runs.
type VotingInfo struct {
	Name       string
	Deadline   time.Time
	IsOpen     bool
	Leader     common.Address
	VoterCount int
}

type RoundQueryUseCase struct {
	Ledger ports.Ledger
}

func (uc RoundQueryUseCase) RoundInfo(ctx context.Context, roundID uint64) (entities.RoundInfo, error) {
	round, err := uc.Ledger.GetRound(ctx, roundID)
	if err != nil {
		return entities.RoundInfo{}, err
	}
	return round.Info(), nil
}

func (uc RoundQueryUseCase) VotingInfo(ctx context.Context, roundID uint64) (VotingInfo, error) {
	round, err := uc.Ledger.GetRound(ctx, roundID)
	if err != nil {
		return VotingInfo{}, err
	}
	return VotingInfo{
		Name:       round.Name,
		Deadline:   round.Deadline,
		IsOpen:     round.IsOpen(),
		Leader:     round.Leader,
		VoterCount: round.VoterCount(),
	}, nil
}

// ListRounds returns every round in id order.
func (uc RoundQueryUseCase) ListRounds(ctx context.Context) ([]entities.RoundInfo, error) {
	rounds, err := uc.Ledger.ListRounds(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]entities.RoundInfo, 0, len(rounds))
	for _, round := range rounds {
		items = append(items, round.Info())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].RoundID < items[j].RoundID
	})
	return items, nil
}

type TreasuryQueryUseCase struct {
	Ledger ports.Ledger
}

func (uc TreasuryQueryUseCase) Registry(ctx context.Context) (entities.Registry, error) {
	return uc.Ledger.GetRegistry(ctx)
}

// Balance reports how much the ledger has paid out to address so far.
func (uc TreasuryQueryUseCase) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := uc.Ledger.GetBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return new(big.Int), nil
	}
	return balance, nil
}
