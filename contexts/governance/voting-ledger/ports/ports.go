package ports

import (
	"context"
	"math/big"
	"time"

	"votingledger/contexts/governance/voting-ledger/domain/entities"
	contractsv1 "votingledger/contracts/gen/events/v1"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the persistent state of the registry, its rounds and the
// treasury. All writes go through WithinTx.
type Ledger interface {
	// WithinTx runs fn with exclusive access to whatever it locks. Writes made
	// through tx become visible only if fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// InitRegistry stores owner on first use and returns the stored registry.
	// A different owner on a later call fails with ErrOwnerMismatch.
	InitRegistry(ctx context.Context, owner common.Address, now time.Time) (entities.Registry, error)

	GetRegistry(ctx context.Context) (entities.Registry, error)
	GetRound(ctx context.Context, roundID uint64) (entities.Round, error)
	ListRounds(ctx context.Context) ([]entities.Round, error)
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
}

type LedgerTx interface {
	LockRegistry(ctx context.Context) (entities.Registry, error)
	SaveRegistry(ctx context.Context, registry entities.Registry) error

	CreateRound(ctx context.Context, round entities.Round) error
	// LockRound returns the round with its full tally. Ballots are not
	// guaranteed to be loaded.
	LockRound(ctx context.Context, roundID uint64) (entities.Round, error)
	// LockRoundForVoter is LockRound plus voter's ballot, if one exists.
	LockRoundForVoter(ctx context.Context, roundID uint64, voter common.Address) (entities.Round, error)
	// SaveRound writes the round's own fields. Ballots go through AppendBallot.
	SaveRound(ctx context.Context, round entities.Round) error
	// AppendBallot stores one new ballot and its candidate's updated count.
	AppendBallot(ctx context.Context, roundID uint64, ballot entities.Ballot, candidateVotes uint64) error

	// Transfer credits the recipient. A failure aborts the transaction.
	Transfer(ctx context.Context, transfer entities.Transfer) error

	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
