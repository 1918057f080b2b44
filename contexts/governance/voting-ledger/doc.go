// Package votingledger implements the single-owner voting ledger inside the
// governance context.
//
// The registry owner opens named rounds. Each address pays the entry fee to
// vote once per round, the candidate that first reaches the strictly highest
// tally leads, and after the voting period anyone may settle the round. The
// leader receives the pool minus commission, which accrues to the treasury
// until the owner withdraws it. Every mutation commits atomically with its
// outbox event through the Ledger port.
package votingledger
