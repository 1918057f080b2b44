package entities

import (
	"math/big"
	"time"

	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the process-wide ledger state: the immutable owner, the round
// id counter and the treasury balance.
type Registry struct {
	Owner             common.Address
	NextRoundID       uint64
	CommissionBalance *big.Int
	WithdrawnTotal    *big.Int
	InitializedAt     time.Time
	UpdatedAt         time.Time
}

func NewRegistry(owner common.Address, now time.Time) (Registry, error) {
	if owner == (common.Address{}) {
		return Registry{}, domainerrors.ErrInvalidInput
	}
	return Registry{
		Owner:             owner,
		CommissionBalance: new(big.Int),
		WithdrawnTotal:    new(big.Int),
		InitializedAt:     now.UTC(),
		UpdatedAt:         now.UTC(),
	}, nil
}

func (r Registry) IsOwner(caller common.Address) bool {
	return caller != (common.Address{}) && caller == r.Owner
}

// AllocateRoundID hands out the next sequential id. Ids start at zero.
func (r *Registry) AllocateRoundID() uint64 {
	id := r.NextRoundID
	r.NextRoundID++
	return id
}

func (r *Registry) CreditCommission(amount *big.Int, now time.Time) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if r.CommissionBalance == nil {
		r.CommissionBalance = new(big.Int)
	}
	r.CommissionBalance.Add(r.CommissionBalance, amount)
	r.UpdatedAt = now.UTC()
}

// WithdrawCommission drains the treasury for the owner. An empty treasury
// yields a zero amount, not an error.
func (r *Registry) WithdrawCommission(caller common.Address, now time.Time) (*big.Int, error) {
	if !r.IsOwner(caller) {
		return nil, domainerrors.ErrUnauthorized
	}
	amount := new(big.Int)
	if r.CommissionBalance != nil {
		amount.Set(r.CommissionBalance)
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if r.WithdrawnTotal == nil {
		r.WithdrawnTotal = new(big.Int)
	}
	r.WithdrawnTotal.Add(r.WithdrawnTotal, amount)
	r.CommissionBalance = new(big.Int)
	r.UpdatedAt = now.UTC()
	return amount, nil
}

func (r Registry) Clone() Registry {
	out := r
	out.CommissionBalance = cloneAmount(r.CommissionBalance)
	out.WithdrawnTotal = cloneAmount(r.WithdrawnTotal)
	return out
}

type TransferReason string

const (
	TransferReasonPayout     TransferReason = "round_payout"
	TransferReasonCommission TransferReason = "commission_withdrawal"
)

// Transfer moves value out of the ledger to an address.
type Transfer struct {
	TransferID string
	To         common.Address
	Amount     *big.Int
	Reason     TransferReason
	RoundID    *uint64
	CreatedAt  time.Time
}

func cloneAmount(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(value)
}
