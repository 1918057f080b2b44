package entities

import (
	"errors"
	"math/big"
	"testing"
	"time"

	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"

	"github.com/ethereum/go-ethereum/common"
)

var testFee = big.NewInt(10_000_000_000_000_000)

func testAddress(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func newTestRound(t *testing.T, createdAt time.Time) Round {
	t.Helper()
	round, err := NewRound(0, "Elections", createdAt)
	if err != nil {
		t.Fatalf("new round failed: %v", err)
	}
	return round
}

func TestNewRoundInitialState(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	round := newTestRound(t, createdAt)

	if !round.IsOpen() {
		t.Fatalf("expected new round to be open")
	}
	if !round.Deadline.Equal(createdAt.Add(72 * time.Hour)) {
		t.Fatalf("expected deadline 72h after creation, got %s", round.Deadline)
	}
	if round.Pool.Sign() != 0 || round.VoterCount() != 0 {
		t.Fatalf("expected empty pool and no voters, got pool=%s voters=%d", round.Pool, round.VoterCount())
	}
	if round.Leader != (common.Address{}) {
		t.Fatalf("expected no leader, got %s", round.Leader.Hex())
	}
}

func TestNewRoundRejectsBlankName(t *testing.T) {
	if _, err := NewRound(3, "   ", time.Now()); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCastVoteTalliesAndLeaderFollowsStrictMaximum(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	round := newTestRound(t, now)
	candidateA, candidateB, candidateC := testAddress(1001), testAddress(1002), testAddress(1003)

	voter := int64(1)
	cast := func(candidate common.Address, count int) {
		for i := 0; i < count; i++ {
			if err := round.CastVote(testAddress(voter), candidate, testFee, testFee, now); err != nil {
				t.Fatalf("vote %d failed: %v", voter, err)
			}
			voter++
		}
	}
	cast(candidateA, 3)
	cast(candidateB, 6)
	cast(candidateC, 3)

	if round.Leader != candidateB {
		t.Fatalf("expected leader %s, got %s", candidateB.Hex(), round.Leader.Hex())
	}
	if round.VoterCount() != 12 {
		t.Fatalf("expected 12 voters, got %d", round.VoterCount())
	}
	var total uint64
	for _, votes := range round.Tally {
		total += votes
	}
	if total != 12 {
		t.Fatalf("expected tally sum 12, got %d", total)
	}
	expectedPool := new(big.Int).Mul(testFee, big.NewInt(12))
	if round.Pool.Cmp(expectedPool) != 0 {
		t.Fatalf("expected pool %s, got %s", expectedPool, round.Pool)
	}
}

func TestCastVoteTieKeepsIncumbent(t *testing.T) {
	now := time.Now().UTC()
	round := newTestRound(t, now)
	first, second := testAddress(2001), testAddress(2002)

	if err := round.CastVote(testAddress(1), first, testFee, testFee, now); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if err := round.CastVote(testAddress(2), second, testFee, testFee, now); err != nil {
		t.Fatalf("second vote failed: %v", err)
	}
	if round.Leader != first {
		t.Fatalf("expected tie to keep %s, got %s", first.Hex(), round.Leader.Hex())
	}
	if err := round.CastVote(testAddress(3), second, testFee, testFee, now); err != nil {
		t.Fatalf("third vote failed: %v", err)
	}
	if round.Leader != second {
		t.Fatalf("expected %s to take the lead, got %s", second.Hex(), round.Leader.Hex())
	}
}

func TestCastVoteRejections(t *testing.T) {
	now := time.Now().UTC()
	voter, candidate := testAddress(1), testAddress(2)

	round := newTestRound(t, now)
	if err := round.CastVote(voter, candidate, big.NewInt(0), testFee, now); !errors.Is(err, domainerrors.ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment for zero value, got %v", err)
	}
	overpay := new(big.Int).Add(testFee, big.NewInt(1))
	if err := round.CastVote(voter, candidate, overpay, testFee, now); !errors.Is(err, domainerrors.ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment for overpayment, got %v", err)
	}
	if err := round.CastVote(voter, common.Address{}, testFee, testFee, now); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero candidate, got %v", err)
	}
	if round.VoterCount() != 0 || round.Pool.Sign() != 0 {
		t.Fatalf("rejected votes must not change the round")
	}

	if err := round.CastVote(voter, candidate, testFee, testFee, now); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if err := round.CastVote(voter, voter, testFee, testFee, now); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected already voted, got %v", err)
	}
	if round.VoterCount() != 1 || round.VotesFor(candidate) != 1 {
		t.Fatalf("expected one recorded vote, got voters=%d votes=%d", round.VoterCount(), round.VotesFor(candidate))
	}
}

func TestCastVoteAfterDeadlineIsAcceptedUntilSettled(t *testing.T) {
	createdAt := time.Now().UTC()
	round := newTestRound(t, createdAt)
	late := createdAt.Add(VotingPeriod + time.Hour)

	if err := round.CastVote(testAddress(1), testAddress(9), testFee, testFee, late); err != nil {
		t.Fatalf("expected late vote before settlement to be accepted, got %v", err)
	}
	if _, err := round.Settle(late, 1000); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	// Closed is checked before payment.
	if err := round.CastVote(testAddress(2), testAddress(9), nil, testFee, late); !errors.Is(err, domainerrors.ErrRoundClosed) {
		t.Fatalf("expected round closed, got %v", err)
	}
}

func TestSettleSplitsPoolAndCloses(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	round := newTestRound(t, createdAt)
	leader := testAddress(77)
	if err := round.CastVote(testAddress(1), leader, testFee, testFee, createdAt); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	if _, err := round.Settle(createdAt.Add(VotingPeriod-time.Second), 1000); !errors.Is(err, domainerrors.ErrTooEarly) {
		t.Fatalf("expected too early, got %v", err)
	}
	if !round.IsOpen() {
		t.Fatalf("early settle must leave the round open")
	}

	settlement, err := round.Settle(createdAt.Add(VotingPeriod), 1000)
	if err != nil {
		t.Fatalf("settle at the deadline failed: %v", err)
	}
	if settlement.Leader != leader {
		t.Fatalf("expected leader %s, got %s", leader.Hex(), settlement.Leader.Hex())
	}
	if settlement.Commission.Cmp(big.NewInt(1_000_000_000_000_000)) != 0 {
		t.Fatalf("expected commission 0.001 ether, got %s", settlement.Commission)
	}
	if settlement.Payout.Cmp(big.NewInt(9_000_000_000_000_000)) != 0 {
		t.Fatalf("expected payout 0.009 ether, got %s", settlement.Payout)
	}
	if round.IsOpen() || round.Pool.Sign() != 0 || round.SettledAt == nil {
		t.Fatalf("expected closed round with empty pool and settled_at, got %+v", round.Info())
	}

	if _, err := round.Settle(createdAt.Add(2*VotingPeriod), 1000); !errors.Is(err, domainerrors.ErrAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
}

func TestSettleEmptyRound(t *testing.T) {
	createdAt := time.Now().UTC()
	round := newTestRound(t, createdAt)

	settlement, err := round.Settle(createdAt.Add(VotingPeriod), 1000)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if settlement.Pool.Sign() != 0 || settlement.Payout.Sign() != 0 || settlement.Commission.Sign() != 0 {
		t.Fatalf("expected zero amounts, got %+v", settlement)
	}
	if settlement.Leader != (common.Address{}) {
		t.Fatalf("expected no leader, got %s", settlement.Leader.Hex())
	}
}

func TestCommissionFloorsAndCaps(t *testing.T) {
	if got := Commission(big.NewInt(999), 1000); got.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("expected floor to 99, got %s", got)
	}
	if got := Commission(big.NewInt(500), 20000); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected cap at pool, got %s", got)
	}
	if got := Commission(big.NewInt(500), 0); got.Sign() != 0 {
		t.Fatalf("expected zero commission, got %s", got)
	}
	if got := Commission(nil, 1000); got.Sign() != 0 {
		t.Fatalf("expected zero commission for nil pool, got %s", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	round := newTestRound(t, now)
	if err := round.CastVote(testAddress(1), testAddress(2), testFee, testFee, now); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	clone := round.Clone()
	if err := clone.CastVote(testAddress(3), testAddress(2), testFee, testFee, now); err != nil {
		t.Fatalf("clone vote failed: %v", err)
	}
	if round.VoterCount() != 1 || round.VotesFor(testAddress(2)) != 1 {
		t.Fatalf("clone mutation leaked into source round: voters=%d", round.VoterCount())
	}
	if round.Pool.Cmp(testFee) != 0 {
		t.Fatalf("clone mutation leaked into source round pool: %s", round.Pool)
	}
}
