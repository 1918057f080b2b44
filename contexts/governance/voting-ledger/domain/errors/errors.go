package errors

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid voting ledger input")
	ErrUnauthorized        = errors.New("caller is not the ledger owner")
	ErrRoundNotFound       = errors.New("voting round not found")
	ErrRoundClosed         = errors.New("voting round is closed")
	ErrAlreadyClosed       = errors.New("voting round is already closed")
	ErrTooEarly            = errors.New("voting period has not ended")
	ErrInsufficientPayment = errors.New("payment must equal the entry fee")
	ErrAlreadyVoted        = errors.New("voter has already cast a vote in this round")
	ErrTransferRejected    = errors.New("fund transfer rejected by recipient")
	ErrOwnerMismatch       = errors.New("ledger owner is immutable once initialized")
	ErrRegistryMissing     = errors.New("ledger registry is not initialized")
	ErrConflict            = errors.New("voting ledger write conflict")
)
