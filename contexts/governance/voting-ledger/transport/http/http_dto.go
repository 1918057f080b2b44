package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateRoundRequest struct {
	Name string `json:"name"`
}

// CastVoteRequest carries amounts as decimal wei strings; JSON numbers cannot
// hold them exactly.
type CastVoteRequest struct {
	Candidate  string `json:"candidate"`
	PaymentWei string `json:"payment_wei"`
}

type RoundResponse struct {
	RoundID    uint64     `json:"round_id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	IsOpen     bool       `json:"is_open"`
	Leader     string     `json:"leader"`
	VoterCount int        `json:"voter_count"`
	PoolWei    string     `json:"pool_wei"`
	CreatedAt  time.Time  `json:"created_at"`
	Deadline   time.Time  `json:"deadline"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

type ListRoundsResponse struct {
	Items []RoundResponse `json:"items"`
}

type VotingInfoResponse struct {
	Name       string    `json:"name"`
	Deadline   time.Time `json:"deadline"`
	IsOpen     bool      `json:"is_open"`
	Leader     string    `json:"leader"`
	VoterCount int       `json:"voter_count"`
}

type SettlementResponse struct {
	RoundID       uint64    `json:"round_id"`
	Leader        string    `json:"leader"`
	PoolWei       string    `json:"pool_wei"`
	CommissionWei string    `json:"commission_wei"`
	PayoutWei     string    `json:"payout_wei"`
	SettledAt     time.Time `json:"settled_at"`
}

type TreasuryResponse struct {
	Owner                string `json:"owner"`
	NextRoundID          uint64 `json:"next_round_id"`
	CommissionBalanceWei string `json:"commission_balance_wei"`
	WithdrawnTotalWei    string `json:"withdrawn_total_wei"`
	EntryFeeWei          string `json:"entry_fee_wei"`
	CommissionBps        uint64 `json:"commission_bps"`
}

type WithdrawResponse struct {
	Owner     string `json:"owner"`
	AmountWei string `json:"amount_wei"`
}

type BalanceResponse struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balance_wei"`
}
