package entities

import (
	"math/big"
	"strings"
	"time"

	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"

	"github.com/ethereum/go-ethereum/common"
)

// VotingPeriod is the fixed window between round creation and the earliest
// settlement.
const VotingPeriod = 3 * 24 * time.Hour

// BasisPoints is the denominator for commission rates.
const BasisPoints = 10000

type RoundStatus string

const (
	RoundStatusOpen   RoundStatus = "open"
	RoundStatusClosed RoundStatus = "closed"
)

// Ballot is the record of one voter's single vote in a round.
type Ballot struct {
	Voter     common.Address
	Candidate common.Address
	Payment   *big.Int
	CastAt    time.Time
}

// Round is one named, time-bounded contest. Tally holds every candidate's
// count. Ballots may hold only the ballots a store chose to load; the voter
// count derives from Tally, since each ballot adds exactly one vote.
type Round struct {
	RoundID   uint64
	Name      string
	Status    RoundStatus
	Leader    common.Address
	Tally     map[common.Address]uint64
	Ballots   map[common.Address]Ballot
	Pool      *big.Int
	CreatedAt time.Time
	Deadline  time.Time
	SettledAt *time.Time
	UpdatedAt time.Time
}

// Settlement describes how a closed round's pool was disbursed.
type Settlement struct {
	RoundID    uint64
	Leader     common.Address
	Pool       *big.Int
	Commission *big.Int
	Payout     *big.Int
	SettledAt  time.Time
}

// RoundInfo is the read model returned to callers.
type RoundInfo struct {
	RoundID    uint64
	Name       string
	Status     RoundStatus
	IsOpen     bool
	Leader     common.Address
	VoterCount int
	Pool       *big.Int
	CreatedAt  time.Time
	Deadline   time.Time
	SettledAt  *time.Time
}

func NewRound(roundID uint64, name string, createdAt time.Time) (Round, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Round{}, domainerrors.ErrInvalidInput
	}
	createdAt = createdAt.UTC()
	return Round{
		RoundID:   roundID,
		Name:      name,
		Status:    RoundStatusOpen,
		Tally:     make(map[common.Address]uint64),
		Ballots:   make(map[common.Address]Ballot),
		Pool:      new(big.Int),
		CreatedAt: createdAt,
		Deadline:  createdAt.Add(VotingPeriod),
		UpdatedAt: createdAt,
	}, nil
}

func (r Round) IsOpen() bool {
	return r.Status == RoundStatusOpen
}

func (r Round) VoterCount() int {
	var total uint64
	for _, votes := range r.Tally {
		total += votes
	}
	return int(total)
}

func (r Round) HasVoted(voter common.Address) bool {
	_, ok := r.Ballots[voter]
	return ok
}

func (r Round) VotesFor(candidate common.Address) uint64 {
	return r.Tally[candidate]
}

// DeadlineReached reports whether settlement is allowed at now.
func (r Round) DeadlineReached(now time.Time) bool {
	return !now.UTC().Before(r.Deadline)
}

// CastVote applies one paid vote. Passing the deadline does not close the
// round: votes keep landing until someone settles it.
func (r *Round) CastVote(voter common.Address, candidate common.Address, payment *big.Int, entryFee *big.Int, now time.Time) error {
	if voter == (common.Address{}) || candidate == (common.Address{}) {
		return domainerrors.ErrInvalidInput
	}
	if !r.IsOpen() {
		return domainerrors.ErrRoundClosed
	}
	if payment == nil || entryFee == nil || payment.Cmp(entryFee) != 0 {
		return domainerrors.ErrInsufficientPayment
	}
	if r.HasVoted(voter) {
		return domainerrors.ErrAlreadyVoted
	}

	if r.Tally == nil {
		r.Tally = make(map[common.Address]uint64)
	}
	if r.Ballots == nil {
		r.Ballots = make(map[common.Address]Ballot)
	}
	if r.Pool == nil {
		r.Pool = new(big.Int)
	}

	r.Ballots[voter] = Ballot{
		Voter:     voter,
		Candidate: candidate,
		Payment:   new(big.Int).Set(payment),
		CastAt:    now.UTC(),
	}
	r.Tally[candidate]++
	r.Pool.Add(r.Pool, payment)

	// Ties keep the incumbent.
	if candidate != r.Leader && r.Tally[candidate] > r.Tally[r.Leader] {
		r.Leader = candidate
	}
	r.UpdatedAt = now.UTC()
	return nil
}

// Settle closes the round and splits the pool between the leader and the
// treasury. The pool is zero afterwards.
func (r *Round) Settle(now time.Time, commissionBps uint64) (Settlement, error) {
	if !r.IsOpen() {
		return Settlement{}, domainerrors.ErrAlreadyClosed
	}
	if !r.DeadlineReached(now) {
		return Settlement{}, domainerrors.ErrTooEarly
	}

	pool := new(big.Int)
	if r.Pool != nil {
		pool.Set(r.Pool)
	}
	commission := Commission(pool, commissionBps)
	payout := new(big.Int).Sub(pool, commission)

	settledAt := now.UTC()
	r.Status = RoundStatusClosed
	r.Pool = new(big.Int)
	r.SettledAt = &settledAt
	r.UpdatedAt = settledAt

	return Settlement{
		RoundID:    r.RoundID,
		Leader:     r.Leader,
		Pool:       pool,
		Commission: commission,
		Payout:     payout,
		SettledAt:  settledAt,
	}, nil
}

// Commission returns floor(pool * bps / BasisPoints), capped at the pool.
func Commission(pool *big.Int, bps uint64) *big.Int {
	if pool == nil || pool.Sign() <= 0 {
		return new(big.Int)
	}
	if bps >= BasisPoints {
		return new(big.Int).Set(pool)
	}
	out := new(big.Int).Mul(pool, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(BasisPoints))
}

func (r Round) Info() RoundInfo {
	pool := new(big.Int)
	if r.Pool != nil {
		pool.Set(r.Pool)
	}
	return RoundInfo{
		RoundID:    r.RoundID,
		Name:       r.Name,
		Status:     r.Status,
		IsOpen:     r.IsOpen(),
		Leader:     r.Leader,
		VoterCount: r.VoterCount(),
		Pool:       pool,
		CreatedAt:  r.CreatedAt,
		Deadline:   r.Deadline,
		SettledAt:  cloneTime(r.SettledAt),
	}
}

// Clone returns a deep copy so staged mutations never leak into stored state.
func (r Round) Clone() Round {
	out := r
	out.Tally = make(map[common.Address]uint64, len(r.Tally))
	for candidate, votes := range r.Tally {
		out.Tally[candidate] = votes
	}
	out.Ballots = make(map[common.Address]Ballot, len(r.Ballots))
	for voter, ballot := range r.Ballots {
		if ballot.Payment != nil {
			ballot.Payment = new(big.Int).Set(ballot.Payment)
		}
		out.Ballots[voter] = ballot
	}
	out.Pool = new(big.Int)
	if r.Pool != nil {
		out.Pool.Set(r.Pool)
	}
	out.SettledAt = cloneTime(r.SettledAt)
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	ts := value.UTC()
	return &ts
}
