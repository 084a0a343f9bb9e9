package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/domain/entities"
	domainerrors "civitas/contexts/treasury-finance/play-ledger-service/domain/errors"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	systemConfigID = 1
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

// PostEntry runs the whole posting as one transaction: duplicate check,
// treasury read under a row lock, entry insert, treasury update. The FOR
// UPDATE lock on system_config serializes concurrent proposal closures so two
// postings can never both read the same stale balance. Returns posted=false
// when an entry for the proposal already exists.
func (r *Repository) PostEntry(
	ctx context.Context,
	proposalID string,
	amount float64,
	createdAt time.Time,
) (entities.LedgerEntry, bool, error) {
	proposalID = strings.TrimSpace(proposalID)
	var result ledgerEntryModel
	posted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ledgerEntryModel
		err := tx.Where("proposal_id = ?", proposalID).First(&existing).Error
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var config systemConfigModel
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", systemConfigID).
			First(&config).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrTreasuryNotSeeded
			}
			return err
		}

		newBalance := config.PlayMoneyTreasury - amount
		row := ledgerEntryModel{
			ID:           uuid.NewString(),
			ProposalID:   proposalID,
			Amount:       -amount,
			BalanceAfter: newBalance,
			CreatedAt:    createdAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			// The unique index on proposal_id backstops the in-transaction
			// check under concurrent duplicate postings.
			if isUniqueViolation(err) {
				return domainerrors.ErrDuplicateEntry
			}
			return err
		}

		if err := tx.Model(&systemConfigModel{}).
			Where("id = ?", systemConfigID).
			Updates(map[string]any{
				"play_money_treasury": newBalance,
				"updated_at":          createdAt.UTC(),
			}).Error; err != nil {
			return err
		}

		result = row
		posted = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrDuplicateEntry) {
			// A concurrent posting won the race; surface the persisted entry
			// as a replay no-op.
			entry, found, loadErr := r.GetEntryByProposal(ctx, proposalID)
			if loadErr != nil {
				return entities.LedgerEntry{}, false, loadErr
			}
			if found {
				return entry, false, nil
			}
			return entities.LedgerEntry{}, false, err
		}
		if errors.Is(err, domainerrors.ErrTreasuryNotSeeded) {
			return entities.LedgerEntry{}, false, err
		}
		return entities.LedgerEntry{}, false, r.logError("ledger_repo_post_entry_failed", err,
			"proposal_id", proposalID,
		)
	}
	return result.toEntity(), posted, nil
}

func (r *Repository) GetEntryByProposal(ctx context.Context, proposalID string) (entities.LedgerEntry, bool, error) {
	var row ledgerEntryModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.LedgerEntry{}, false, nil
		}
		return entities.LedgerEntry{}, false, r.logError("ledger_repo_get_entry_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListEntries(ctx context.Context, limit int, offset int) ([]entities.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []ledgerEntryModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_entries_failed", err, "limit", limit)
	}
	items := make([]entities.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetTreasury(ctx context.Context, seed float64) (entities.TreasuryView, error) {
	var config systemConfigModel
	err := r.db.WithContext(ctx).
		Where("id = ?", systemConfigID).
		First(&config).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.TreasuryView{}, domainerrors.ErrTreasuryNotSeeded
		}
		return entities.TreasuryView{}, r.logError("ledger_repo_get_treasury_failed", err)
	}

	var stats struct {
		EntryCount int
		EntrySum   float64
	}
	if err := r.db.WithContext(ctx).
		Model(&ledgerEntryModel{}).
		Select("COUNT(*) AS entry_count, COALESCE(SUM(amount), 0) AS entry_sum").
		Scan(&stats).Error; err != nil {
		return entities.TreasuryView{}, r.logError("ledger_repo_treasury_stats_failed", err)
	}

	return entities.TreasuryView{
		Balance:    config.PlayMoneyTreasury,
		EntryCount: stats.EntryCount,
		EntrySum:   stats.EntrySum,
		SeedValue:  seed,
	}, nil
}

func (r *Repository) GetProposal(ctx context.Context, proposalID string) (ports.ProposalProjection, bool, error) {
	var row proposalProjectionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ProposalProjection{}, false, nil
		}
		return ports.ProposalProjection{}, false, r.logError("ledger_repo_get_proposal_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return ports.ProposalProjection{
		ProposalID: row.ID,
		Type:       row.Type,
		PlayMode:   row.PlayMode,
		Status:     row.Status,
		Amount:     row.Amount,
		CloseAt:    normalizeOptionalTime(row.CloseAt),
	}, true, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("ledger_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
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
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("ledger_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("ledger_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_outbox_failed", err, "limit", limit)
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
		return r.logError("ledger_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return false, r.logError("ledger_repo_reserve_event_failed", create.Error,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if create.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", row.EventID).
		First(&existing).Error; err != nil {
		return false, r.logError("ledger_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "treasury-finance/play-ledger-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

type ledgerEntryModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	ProposalID   string    `gorm:"column:proposal_id;uniqueIndex"`
	Amount       float64   `gorm:"column:amount"`
	BalanceAfter float64   `gorm:"column:balance_after"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (ledgerEntryModel) TableName() string {
	return "play_money_ledger_entries"
}

func (m ledgerEntryModel) toEntity() entities.LedgerEntry {
	return entities.LedgerEntry{
		EntryID:      m.ID,
		ProposalID:   m.ProposalID,
		Amount:       m.Amount,
		BalanceAfter: m.BalanceAfter,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type systemConfigModel struct {
	ID                int       `gorm:"column:id;primaryKey"`
	PlayMoneyTreasury float64   `gorm:"column:play_money_treasury"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (systemConfigModel) TableName() string {
	return "system_config"
}

type proposalProjectionModel struct {
	ID       string     `gorm:"column:id;primaryKey"`
	Type     string     `gorm:"column:type"`
	PlayMode bool       `gorm:"column:play_mode"`
	Status   string     `gorm:"column:status"`
	Amount   *float64   `gorm:"column:amount"`
	CloseAt  *time.Time `gorm:"column:close_at"`
}

func (proposalProjectionModel) TableName() string {
	return "proposals"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "ledger_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "ledger_event_dedup"
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

var _ ports.LedgerRepository = (*Repository)(nil)
var _ ports.ProposalReader = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
