package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"votingledger/contexts/governance/voting-ledger/domain/entities"
	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	// The ledger keeps exactly one registry row.
	registryRowID = 1
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates every ledger table.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&registryModel{},
		&roundModel{},
		&tallyModel{},
		&voterModel{},
		&accountModel{},
		&transferModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("voting_ledger_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &ledgerTx{db: db, repo: r})
	})
}

func (r *Repository) InitRegistry(ctx context.Context, owner common.Address, now time.Time) (entities.Registry, error) {
	fresh, err := entities.NewRegistry(owner, now)
	if err != nil {
		return entities.Registry{}, err
	}

	var stored entities.Registry
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := registryModelFromEntity(fresh)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return err
		}

		var existing registryModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", registryRowID).
			First(&existing).Error; err != nil {
			return err
		}
		registry, err := existing.toEntity()
		if err != nil {
			return err
		}
		if registry.Owner != owner {
			return domainerrors.ErrOwnerMismatch
		}
		stored = registry
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrOwnerMismatch) {
			return entities.Registry{}, err
		}
		return entities.Registry{}, r.logError("voting_ledger_repo_init_registry_failed", err,
			"owner", owner.Hex(),
		)
	}
	return stored, nil
}

func (r *Repository) GetRegistry(ctx context.Context) (entities.Registry, error) {
	var row registryModel
	err := r.db.WithContext(ctx).Where("id = ?", registryRowID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Registry{}, domainerrors.ErrRegistryMissing
		}
		return entities.Registry{}, r.logError("voting_ledger_repo_get_registry_failed", err)
	}
	registry, err := row.toEntity()
	if err != nil {
		return entities.Registry{}, r.logError("voting_ledger_repo_decode_registry_failed", err)
	}
	return registry, nil
}

func (r *Repository) GetRound(ctx context.Context, roundID uint64) (entities.Round, error) {
	var row roundModel
	err := r.db.WithContext(ctx).Where("round_id = ?", roundID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Round{}, domainerrors.ErrRoundNotFound
		}
		return entities.Round{}, r.logError("voting_ledger_repo_get_round_failed", err, "round_id", roundID)
	}
	round, err := loadRound(r.db.WithContext(ctx), row)
	if err != nil {
		return entities.Round{}, r.logError("voting_ledger_repo_load_round_failed", err, "round_id", roundID)
	}
	return round, nil
}

func (r *Repository) ListRounds(ctx context.Context) ([]entities.Round, error) {
	db := r.db.WithContext(ctx)
	var rows []roundModel
	if err := db.Order("round_id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("voting_ledger_repo_list_rounds_failed", err)
	}
	items := make([]entities.Round, 0, len(rows))
	for _, row := range rows {
		round, err := loadRound(db, row)
		if err != nil {
			return nil, r.logError("voting_ledger_repo_load_round_failed", err, "round_id", row.RoundID)
		}
		items = append(items, round)
	}
	return items, nil
}

func (r *Repository) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	var row accountModel
	err := r.db.WithContext(ctx).Where("address = ?", address.Hex()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return new(big.Int), nil
		}
		return nil, r.logError("voting_ledger_repo_get_balance_failed", err, "address", address.Hex())
	}
	balance, err := parseWei(row.BalanceWei)
	if err != nil {
		return nil, r.logError("voting_ledger_repo_decode_balance_failed", err, "address", address.Hex())
	}
	return balance, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_ledger_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("voting_ledger_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/voting-ledger",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("voting ledger repository operation failed", fields...)
	return err
}

// ledgerTx binds the LedgerTx port to one gorm transaction. Rows read through
// Lock* hold FOR UPDATE locks until commit; callers lock the round before the
// registry.
type ledgerTx struct {
	db   *gorm.DB
	repo *Repository
}

func (tx *ledgerTx) LockRegistry(_ context.Context) (entities.Registry, error) {
	var row registryModel
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", registryRowID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Registry{}, domainerrors.ErrRegistryMissing
		}
		return entities.Registry{}, tx.repo.logError("voting_ledger_repo_lock_registry_failed", err)
	}
	return row.toEntity()
}

func (tx *ledgerTx) SaveRegistry(_ context.Context, registry entities.Registry) error {
	row := registryModelFromEntity(registry)
	result := tx.db.Model(&registryModel{}).
		Where("id = ?", registryRowID).
		Updates(map[string]any{
			"next_round_id":          row.NextRoundID,
			"commission_balance_wei": row.CommissionBalanceWei,
			"withdrawn_total_wei":    row.WithdrawnTotalWei,
			"updated_at":             row.UpdatedAt,
		})
	if result.Error != nil {
		return tx.repo.logError("voting_ledger_repo_save_registry_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRegistryMissing
	}
	return nil
}

func (tx *ledgerTx) CreateRound(_ context.Context, round entities.Round) error {
	row := roundModelFromEntity(round)
	if err := tx.db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return tx.repo.logError("voting_ledger_repo_create_round_failed", err, "round_id", round.RoundID)
	}
	return nil
}

func (tx *ledgerTx) LockRound(_ context.Context, roundID uint64) (entities.Round, error) {
	var row roundModel
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("round_id = ?", roundID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Round{}, domainerrors.ErrRoundNotFound
		}
		return entities.Round{}, tx.repo.logError("voting_ledger_repo_lock_round_failed", err, "round_id", roundID)
	}
	round, err := loadRound(tx.db, row)
	if err != nil {
		return entities.Round{}, tx.repo.logError("voting_ledger_repo_load_round_failed", err, "round_id", roundID)
	}
	return round, nil
}

// LockRoundForVoter reads a single voter row under the round lock, so a vote
// never scans the round's ballots.
func (tx *ledgerTx) LockRoundForVoter(ctx context.Context, roundID uint64, voter common.Address) (entities.Round, error) {
	round, err := tx.LockRound(ctx, roundID)
	if err != nil {
		return entities.Round{}, err
	}
	var rows []voterModel
	if err := tx.db.Where("round_id = ? AND voter = ?", roundID, voter.Hex()).
		Limit(1).
		Find(&rows).Error; err != nil {
		return entities.Round{}, tx.repo.logError("voting_ledger_repo_load_voter_failed", err,
			"round_id", roundID,
			"voter", voter.Hex(),
		)
	}
	for _, row := range rows {
		ballot, err := row.toEntity()
		if err != nil {
			return entities.Round{}, tx.repo.logError("voting_ledger_repo_load_voter_failed", err,
				"round_id", roundID,
				"voter", voter.Hex(),
			)
		}
		round.Ballots[ballot.Voter] = ballot
	}
	return round, nil
}

func (tx *ledgerTx) SaveRound(_ context.Context, round entities.Round) error {
	row := roundModelFromEntity(round)
	result := tx.db.Model(&roundModel{}).
		Where("round_id = ?", round.RoundID).
		Updates(map[string]any{
			"status":     row.Status,
			"leader":     row.Leader,
			"pool_wei":   row.PoolWei,
			"settled_at": row.SettledAt,
			"updated_at": row.UpdatedAt,
		})
	if result.Error != nil {
		return tx.repo.logError("voting_ledger_repo_save_round_failed", result.Error, "round_id", round.RoundID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRoundNotFound
	}
	return nil
}

// AppendBallot inserts one voter row and upserts the candidate's tally row.
func (tx *ledgerTx) AppendBallot(_ context.Context, roundID uint64, ballot entities.Ballot, candidateVotes uint64) error {
	if ballot.Voter == (common.Address{}) || ballot.Candidate == (common.Address{}) {
		return domainerrors.ErrInvalidInput
	}
	voter := voterModel{
		RoundID:    roundID,
		Voter:      ballot.Voter.Hex(),
		Candidate:  ballot.Candidate.Hex(),
		PaymentWei: weiString(ballot.Payment),
		CastAt:     ballot.CastAt.UTC(),
	}
	if err := tx.db.Create(&voter).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyVoted
		}
		return tx.repo.logError("voting_ledger_repo_save_voter_failed", err,
			"round_id", roundID,
			"voter", voter.Voter,
		)
	}
	tally := tallyModel{
		RoundID:   roundID,
		Candidate: ballot.Candidate.Hex(),
		Votes:     candidateVotes,
	}
	if err := tx.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "round_id"}, {Name: "candidate"}},
		DoUpdates: clause.AssignmentColumns([]string{"votes"}),
	}).Create(&tally).Error; err != nil {
		return tx.repo.logError("voting_ledger_repo_save_tally_failed", err,
			"round_id", roundID,
			"candidate", tally.Candidate,
		)
	}
	return nil
}

func (tx *ledgerTx) Transfer(_ context.Context, transfer entities.Transfer) error {
	if transfer.To == (common.Address{}) || transfer.Amount == nil || transfer.Amount.Sign() < 0 {
		return domainerrors.ErrInvalidInput
	}
	account := accountModel{
		Address:    transfer.To.Hex(),
		BalanceWei: weiString(transfer.Amount),
		UpdatedAt:  transfer.CreatedAt.UTC(),
	}
	if err := tx.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance_wei": gorm.Expr("ledger_accounts.balance_wei + EXCLUDED.balance_wei"),
			"updated_at":  account.UpdatedAt,
		}),
	}).Create(&account).Error; err != nil {
		return tx.repo.logError("voting_ledger_repo_credit_account_failed", err,
			"address", transfer.To.Hex(),
		)
	}

	row := transferModel{
		TransferID: strings.TrimSpace(transfer.TransferID),
		ToAddress:  transfer.To.Hex(),
		AmountWei:  weiString(transfer.Amount),
		Reason:     string(transfer.Reason),
		RoundID:    transfer.RoundID,
		CreatedAt:  transfer.CreatedAt.UTC(),
	}
	if row.TransferID == "" {
		row.TransferID = uuid.NewString()
	}
	if err := tx.db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return tx.repo.logError("voting_ledger_repo_journal_transfer_failed", err,
			"transfer_id", row.TransferID,
		)
	}
	return nil
}

func (tx *ledgerTx) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return tx.repo.logError("voting_ledger_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := tx.db.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return tx.repo.logError("voting_ledger_repo_append_outbox_insert_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	return nil
}

func loadRound(db *gorm.DB, row roundModel) (entities.Round, error) {
	round, err := row.toEntity()
	if err != nil {
		return entities.Round{}, err
	}

	var tallies []tallyModel
	if err := db.Where("round_id = ?", row.RoundID).Find(&tallies).Error; err != nil {
		return entities.Round{}, err
	}
	for _, tally := range tallies {
		round.Tally[common.HexToAddress(tally.Candidate)] = tally.Votes
	}
	return round, nil
}

type registryModel struct {
	ID                   int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	Owner                string    `gorm:"column:owner;size:42;not null"`
	NextRoundID          uint64    `gorm:"column:next_round_id;not null"`
	CommissionBalanceWei string    `gorm:"column:commission_balance_wei;type:numeric(78,0);not null"`
	WithdrawnTotalWei    string    `gorm:"column:withdrawn_total_wei;type:numeric(78,0);not null"`
	InitializedAt        time.Time `gorm:"column:initialized_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (registryModel) TableName() string {
	return "ledger_registry"
}

func registryModelFromEntity(registry entities.Registry) registryModel {
	return registryModel{
		ID:                   registryRowID,
		Owner:                registry.Owner.Hex(),
		NextRoundID:          registry.NextRoundID,
		CommissionBalanceWei: weiString(registry.CommissionBalance),
		WithdrawnTotalWei:    weiString(registry.WithdrawnTotal),
		InitializedAt:        registry.InitializedAt.UTC(),
		UpdatedAt:            registry.UpdatedAt.UTC(),
	}
}

func (m registryModel) toEntity() (entities.Registry, error) {
	balance, err := parseWei(m.CommissionBalanceWei)
	if err != nil {
		return entities.Registry{}, err
	}
	withdrawn, err := parseWei(m.WithdrawnTotalWei)
	if err != nil {
		return entities.Registry{}, err
	}
	return entities.Registry{
		Owner:             common.HexToAddress(m.Owner),
		NextRoundID:       m.NextRoundID,
		CommissionBalance: balance,
		WithdrawnTotal:    withdrawn,
		InitializedAt:     m.InitializedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}, nil
}

type roundModel struct {
	RoundID   uint64     `gorm:"column:round_id;primaryKey;autoIncrement:false"`
	Name      string     `gorm:"column:name;not null"`
	Status    string     `gorm:"column:status;not null"`
	Leader    string     `gorm:"column:leader;size:42"`
	PoolWei   string     `gorm:"column:pool_wei;type:numeric(78,0);not null"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	Deadline  time.Time  `gorm:"column:deadline"`
	SettledAt *time.Time `gorm:"column:settled_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (roundModel) TableName() string {
	return "voting_rounds"
}

func roundModelFromEntity(round entities.Round) roundModel {
	return roundModel{
		RoundID:   round.RoundID,
		Name:      round.Name,
		Status:    string(round.Status),
		Leader:    round.Leader.Hex(),
		PoolWei:   weiString(round.Pool),
		CreatedAt: round.CreatedAt.UTC(),
		Deadline:  round.Deadline.UTC(),
		SettledAt: normalizeOptionalTime(round.SettledAt),
		UpdatedAt: round.UpdatedAt.UTC(),
	}
}

func (m roundModel) toEntity() (entities.Round, error) {
	pool, err := parseWei(m.PoolWei)
	if err != nil {
		return entities.Round{}, err
	}
	return entities.Round{
		RoundID:   m.RoundID,
		Name:      m.Name,
		Status:    entities.RoundStatus(m.Status),
		Leader:    common.HexToAddress(m.Leader),
		Tally:     make(map[common.Address]uint64),
		Ballots:   make(map[common.Address]entities.Ballot),
		Pool:      pool,
		CreatedAt: m.CreatedAt.UTC(),
		Deadline:  m.Deadline.UTC(),
		SettledAt: normalizeOptionalTime(m.SettledAt),
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}

type tallyModel struct {
	RoundID   uint64 `gorm:"column:round_id;primaryKey;autoIncrement:false"`
	Candidate string `gorm:"column:candidate;primaryKey;size:42"`
	Votes     uint64 `gorm:"column:votes;not null"`
}

func (tallyModel) TableName() string {
	return "round_tallies"
}

type voterModel struct {
	RoundID    uint64    `gorm:"column:round_id;primaryKey;autoIncrement:false"`
	Voter      string    `gorm:"column:voter;primaryKey;size:42"`
	Candidate  string    `gorm:"column:candidate;size:42;not null"`
	PaymentWei string    `gorm:"column:payment_wei;type:numeric(78,0);not null"`
	CastAt     time.Time `gorm:"column:cast_at"`
}

func (voterModel) TableName() string {
	return "round_voters"
}

func (m voterModel) toEntity() (entities.Ballot, error) {
	payment, err := parseWei(m.PaymentWei)
	if err != nil {
		return entities.Ballot{}, err
	}
	return entities.Ballot{
		Voter:     common.HexToAddress(m.Voter),
		Candidate: common.HexToAddress(m.Candidate),
		Payment:   payment,
		CastAt:    m.CastAt.UTC(),
	}, nil
}

type accountModel struct {
	Address    string    `gorm:"column:address;primaryKey;size:42"`
	BalanceWei string    `gorm:"column:balance_wei;type:numeric(78,0);not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string {
	return "ledger_accounts"
}

type transferModel struct {
	TransferID string    `gorm:"column:transfer_id;primaryKey"`
	ToAddress  string    `gorm:"column:to_address;size:42;index;not null"`
	AmountWei  string    `gorm:"column:amount_wei;type:numeric(78,0);not null"`
	Reason     string    `gorm:"column:reason;not null"`
	RoundID    *uint64   `gorm:"column:round_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (transferModel) TableName() string {
	return "ledger_transfers"
}

type outboxModel struct {
	Seq          uint64     `gorm:"column:seq;autoIncrement;uniqueIndex"`
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "voting_ledger_outbox"
}

func weiString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func parseWei(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(big.Int), nil
	}
	// numeric(78,0) may come back with a trailing scale on some drivers.
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return value, nil
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.Ledger = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.LedgerTx = (*ledgerTx)(nil)
