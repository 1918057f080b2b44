package memory

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"votingledger/contexts/governance/voting-ledger/domain/entities"
	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       uint64
	published bool
}

// Store keeps the whole ledger in process memory. Transactions are serialized
// behind mu and stage their writes until the callback returns nil.
type Store struct {
	mu sync.RWMutex

	registry  *entities.Registry
	rounds    map[uint64]entities.Round
	balances  map[common.Address]*big.Int
	transfers []entities.Transfer
	outbox    map[string]outboxRecord
	outboxSeq uint64

	clockMu  sync.Mutex
	fixedNow *time.Time
	rejected map[common.Address]struct{}
}

func NewStore() *Store {
	return &Store{
		rounds:   make(map[uint64]entities.Round),
		balances: make(map[common.Address]*big.Int),
		outbox:   make(map[string]outboxRecord),
		rejected: make(map[common.Address]struct{}),
	}
}

// SetNow pins the store clock.
func (s *Store) SetNow(now time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	pinned := now.UTC()
	s.fixedNow = &pinned
}

// Advance moves the store clock forward, pinning it first if needed.
func (s *Store) Advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	base := time.Now().UTC()
	if s.fixedNow != nil {
		base = *s.fixedNow
	}
	next := base.Add(d)
	s.fixedNow = &next
}

// RejectTransfersTo makes every transfer to address fail, the way a payee
// contract that refuses value would.
func (s *Store) RejectTransfersTo(address common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[address] = struct{}{}
}

// Transfers returns the committed transfer journal in order.
func (s *Store) Transfers() []entities.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Transfer, 0, len(s.transfers))
	for _, transfer := range s.transfers {
		items = append(items, cloneTransfer(transfer))
	}
	return items
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &storeTx{
		store:    s,
		rounds:   make(map[uint64]entities.Round),
		balances: make(map[common.Address]*big.Int),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) InitRegistry(_ context.Context, owner common.Address, now time.Time) (entities.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry != nil {
		if s.registry.Owner != owner {
			return entities.Registry{}, domainerrors.ErrOwnerMismatch
		}
		return s.registry.Clone(), nil
	}
	registry, err := entities.NewRegistry(owner, now)
	if err != nil {
		return entities.Registry{}, err
	}
	s.registry = &registry
	return registry.Clone(), nil
}

func (s *Store) GetRegistry(_ context.Context) (entities.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return entities.Registry{}, domainerrors.ErrRegistryMissing
	}
	return s.registry.Clone(), nil
}

func (s *Store) GetRound(_ context.Context, roundID uint64) (entities.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return entities.Round{}, domainerrors.ErrRoundNotFound
	}
	return round.Clone(), nil
}

func (s *Store) ListRounds(_ context.Context) ([]entities.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Round, 0, len(s.rounds))
	for _, round := range s.rounds {
		items = append(items, round.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].RoundID < items[j].RoundID
	})
	return items, nil
}

func (s *Store) GetBalance(_ context.Context, address common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[address]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].seq < rows[j].seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(outboxID)
	row, ok := s.outbox[key]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[key] = row
	return nil
}

func (s *Store) Now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if s.fixedNow != nil {
		return *s.fixedNow
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// storeTx runs with s.mu held for writing. Reads see staged writes first.
type storeTx struct {
	store *Store

	registry  *entities.Registry
	rounds    map[uint64]entities.Round
	balances  map[common.Address]*big.Int
	transfers []entities.Transfer
	outbox    []ports.OutboxMessage
}

func (tx *storeTx) LockRegistry(_ context.Context) (entities.Registry, error) {
	if tx.registry != nil {
		return tx.registry.Clone(), nil
	}
	if tx.store.registry == nil {
		return entities.Registry{}, domainerrors.ErrRegistryMissing
	}
	return tx.store.registry.Clone(), nil
}

func (tx *storeTx) SaveRegistry(_ context.Context, registry entities.Registry) error {
	if tx.store.registry == nil && tx.registry == nil {
		return domainerrors.ErrRegistryMissing
	}
	staged := registry.Clone()
	tx.registry = &staged
	return nil
}

func (tx *storeTx) CreateRound(_ context.Context, round entities.Round) error {
	if _, ok := tx.rounds[round.RoundID]; ok {
		return domainerrors.ErrConflict
	}
	if _, ok := tx.store.rounds[round.RoundID]; ok {
		return domainerrors.ErrConflict
	}
	tx.rounds[round.RoundID] = round.Clone()
	return nil
}

func (tx *storeTx) LockRound(_ context.Context, roundID uint64) (entities.Round, error) {
	if round, ok := tx.rounds[roundID]; ok {
		return round.Clone(), nil
	}
	round, ok := tx.store.rounds[roundID]
	if !ok {
		return entities.Round{}, domainerrors.ErrRoundNotFound
	}
	return round.Clone(), nil
}

// LockRoundForVoter returns the whole round; the store always holds every
// ballot.
func (tx *storeTx) LockRoundForVoter(ctx context.Context, roundID uint64, _ common.Address) (entities.Round, error) {
	return tx.LockRound(ctx, roundID)
}

func (tx *storeTx) AppendBallot(ctx context.Context, roundID uint64, ballot entities.Ballot, candidateVotes uint64) error {
	if ballot.Voter == (common.Address{}) || ballot.Candidate == (common.Address{}) {
		return domainerrors.ErrInvalidInput
	}
	round, err := tx.LockRound(ctx, roundID)
	if err != nil {
		return err
	}
	// Committed ballots are immutable.
	if stored, ok := tx.store.rounds[roundID]; ok && stored.HasVoted(ballot.Voter) {
		return domainerrors.ErrAlreadyVoted
	}
	if ballot.Payment != nil {
		ballot.Payment = new(big.Int).Set(ballot.Payment)
	}
	round.Ballots[ballot.Voter] = ballot
	round.Tally[ballot.Candidate] = candidateVotes
	tx.rounds[roundID] = round
	return nil
}

func (tx *storeTx) SaveRound(_ context.Context, round entities.Round) error {
	_, staged := tx.rounds[round.RoundID]
	_, stored := tx.store.rounds[round.RoundID]
	if !staged && !stored {
		return domainerrors.ErrRoundNotFound
	}
	tx.rounds[round.RoundID] = round.Clone()
	return nil
}

func (tx *storeTx) Transfer(_ context.Context, transfer entities.Transfer) error {
	if transfer.To == (common.Address{}) || transfer.Amount == nil || transfer.Amount.Sign() < 0 {
		return domainerrors.ErrInvalidInput
	}
	if _, rejected := tx.store.rejected[transfer.To]; rejected {
		return domainerrors.ErrTransferRejected
	}
	balance, ok := tx.balances[transfer.To]
	if !ok {
		balance = new(big.Int)
		if stored, exists := tx.store.balances[transfer.To]; exists {
			balance.Set(stored)
		}
	}
	tx.balances[transfer.To] = balance.Add(balance, transfer.Amount)
	tx.transfers = append(tx.transfers, cloneTransfer(transfer))
	return nil
}

func (tx *storeTx) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if _, ok := tx.store.outbox[outboxID]; ok {
		return domainerrors.ErrConflict
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tx.outbox = append(tx.outbox, ports.OutboxMessage{
		OutboxID:     outboxID,
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		CreatedAt:    createdAt,
	})
	return nil
}

func (tx *storeTx) commit() {
	s := tx.store
	if tx.registry != nil {
		registry := tx.registry.Clone()
		s.registry = &registry
	}
	for roundID, round := range tx.rounds {
		s.rounds[roundID] = round
	}
	for address, balance := range tx.balances {
		s.balances[address] = balance
	}
	s.transfers = append(s.transfers, tx.transfers...)
	for _, message := range tx.outbox {
		s.outboxSeq++
		s.outbox[message.OutboxID] = outboxRecord{message: message, seq: s.outboxSeq}
	}
}

func cloneTransfer(transfer entities.Transfer) entities.Transfer {
	out := transfer
	if transfer.Amount != nil {
		out.Amount = new(big.Int).Set(transfer.Amount)
	}
	if transfer.RoundID != nil {
		roundID := *transfer.RoundID
		out.RoundID = &roundID
	}
	return out
}
