package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
	domainerrors "civitas/contexts/civic-governance/veto-window-engine/domain/errors"
	"civitas/contexts/civic-governance/veto-window-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
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

// SaveVote upserts on the (proposal_id, agent_id) identity so a re-cast before
// the deadline rewrites the same row instead of stacking a second vote.
func (r *Repository) SaveVote(ctx context.Context, vote entities.Vote) error {
	row := voteModel{
		ID:             strings.TrimSpace(vote.VoteID),
		ProposalID:     strings.TrimSpace(vote.ProposalID),
		AgentID:        strings.TrimSpace(vote.AgentID),
		Value:          strings.TrimSpace(vote.Value),
		Confidence:     vote.Confidence,
		OverrideByUser: vote.OverrideByUser,
		OverrideReason: strings.TrimSpace(vote.OverrideReason),
		CreatedAt:      vote.CreatedAt.UTC(),
		UpdatedAt:      vote.UpdatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "proposal_id"}, {Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"confidence",
			"override_by_user",
			"override_reason",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("veto_repo_save_vote_failed", err,
			"vote_id", row.ID,
			"proposal_id", row.ProposalID,
		)
	}
	return nil
}

func (r *Repository) GetVote(ctx context.Context, voteID string) (entities.Vote, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(voteID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, domainerrors.ErrVoteNotFound
		}
		return entities.Vote{}, r.logError("veto_repo_get_vote_failed", err,
			"vote_id", strings.TrimSpace(voteID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetVoteByIdentity(
	ctx context.Context,
	proposalID string,
	agentID string,
) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ? AND agent_id = ?", strings.TrimSpace(proposalID), strings.TrimSpace(agentID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("veto_repo_get_vote_by_identity_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
			"agent_id", strings.TrimSpace(agentID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListVotesByAgentSince(
	ctx context.Context,
	agentID string,
	since time.Time,
) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("agent_id = ? AND created_at >= ?", strings.TrimSpace(agentID), since.UTC()).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("veto_repo_list_votes_by_agent_failed", err,
			"agent_id", strings.TrimSpace(agentID),
		)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// ListPendingVetoes joins non-overridden votes to open proposals whose veto
// deadline falls inside [now, until], soonest deadline first.
func (r *Repository) ListPendingVetoes(
	ctx context.Context,
	agentID string,
	now time.Time,
	until time.Time,
) ([]entities.PendingVeto, error) {
	var rows []pendingVetoRow
	err := r.db.WithContext(ctx).
		Table("votes").
		Select(
			"votes.id AS vote_id, votes.proposal_id, votes.agent_id, votes.value, "+
				"votes.confidence, votes.override_by_user, votes.override_reason, "+
				"votes.created_at, votes.updated_at, "+
				"proposals.title, proposals.veto_window_end",
		).
		Joins("JOIN proposals ON proposals.id = votes.proposal_id").
		Where("votes.agent_id = ?", strings.TrimSpace(agentID)).
		Where("votes.override_by_user = ?", false).
		Where("proposals.status = ?", "open").
		Where("proposals.veto_window_end IS NOT NULL").
		Where("proposals.veto_window_end >= ? AND proposals.veto_window_end <= ?", now.UTC(), until.UTC()).
		Order("proposals.veto_window_end ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, r.logError("veto_repo_list_pending_vetoes_failed", err,
			"agent_id", strings.TrimSpace(agentID),
		)
	}
	items := make([]entities.PendingVeto, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.PendingVeto{
			ProposalID:    row.ProposalID,
			Title:         row.Title,
			VetoWindowEnd: row.VetoWindowEnd.UTC(),
			Vote: entities.Vote{
				VoteID:         row.VoteID,
				ProposalID:     row.ProposalID,
				AgentID:        row.AgentID,
				Value:          row.Value,
				Confidence:     row.Confidence,
				OverrideByUser: row.OverrideByUser,
				OverrideReason: row.OverrideReason,
				CreatedAt:      row.CreatedAt.UTC(),
				UpdatedAt:      row.UpdatedAt.UTC(),
			},
		})
	}
	return items, nil
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
		return ports.ProposalProjection{}, false, r.logError("veto_repo_get_proposal_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return ports.ProposalProjection{
		ProposalID:    row.ID,
		Title:         row.Title,
		Type:          row.Type,
		Status:        row.Status,
		VetoWindowEnd: normalizeOptionalTime(row.VetoWindowEnd),
		CreatedAt:     row.CreatedAt.UTC(),
	}, true, nil
}

func (r *Repository) GetAgent(ctx context.Context, agentID string) (ports.AgentProjection, bool, error) {
	var row agentProjectionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(agentID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AgentProjection{}, false, nil
		}
		return ports.AgentProjection{}, false, r.logError("veto_repo_get_agent_failed", err,
			"agent_id", strings.TrimSpace(agentID),
		)
	}
	return ports.AgentProjection{
		AgentID: row.ID,
		UserID:  row.UserID,
	}, true, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("veto_repo_get_idempotency_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		VoteID:      row.VoteID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		IdempotencyKey: strings.TrimSpace(record.Key),
		RequestHash:    strings.TrimSpace(record.RequestHash),
		VoteID:         strings.TrimSpace(record.VoteID),
		ExpiresAt:      record.ExpiresAt.UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("veto_repo_put_idempotency_failed", create.Error,
			"idempotency_key", row.IdempotencyKey,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Select("request_hash, vote_id").
		Where("idempotency_key = ?", row.IdempotencyKey).
		First(&existing).Error; err != nil {
		return r.logError("veto_repo_put_idempotency_load_existing_failed", err,
			"idempotency_key", row.IdempotencyKey,
		)
	}
	if existing.RequestHash != row.RequestHash || existing.VoteID != row.VoteID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("veto_repo_append_outbox_marshal_failed", err,
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
		return r.logError("veto_repo_append_outbox_insert_failed", create.Error,
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
		return r.logError("veto_repo_append_outbox_load_existing_failed", err,
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
		return nil, r.logError("veto_repo_list_pending_outbox_failed", err, "limit", limit)
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
		return r.logError("veto_repo_mark_outbox_published_failed", result.Error,
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
		"module", "civic-governance/veto-window-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("veto repository operation failed", fields...)
	return err
}

type voteModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	ProposalID     string    `gorm:"column:proposal_id;uniqueIndex:idx_votes_identity"`
	AgentID        string    `gorm:"column:agent_id;uniqueIndex:idx_votes_identity"`
	Value          string    `gorm:"column:value"`
	Confidence     float64   `gorm:"column:confidence"`
	OverrideByUser bool      `gorm:"column:override_by_user"`
	OverrideReason string    `gorm:"column:override_reason"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:         m.ID,
		ProposalID:     m.ProposalID,
		AgentID:        m.AgentID,
		Value:          m.Value,
		Confidence:     m.Confidence,
		OverrideByUser: m.OverrideByUser,
		OverrideReason: m.OverrideReason,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type pendingVetoRow struct {
	VoteID         string
	ProposalID     string
	AgentID        string
	Value          string
	Confidence     float64
	OverrideByUser bool
	OverrideReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Title          string
	VetoWindowEnd  time.Time
}

type proposalProjectionModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	Title         string     `gorm:"column:title"`
	Type          string     `gorm:"column:type"`
	Status        string     `gorm:"column:status"`
	VetoWindowEnd *time.Time `gorm:"column:veto_window_end"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
}

func (proposalProjectionModel) TableName() string {
	return "proposals"
}

type agentProjectionModel struct {
	ID     string `gorm:"column:id;primaryKey"`
	UserID string `gorm:"column:user_id"`
}

func (agentProjectionModel) TableName() string {
	return "agents"
}

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	VoteID         string    `gorm:"column:vote_id"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (idempotencyModel) TableName() string {
	return "veto_engine_idempotency"
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
	return "veto_outbox"
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

var _ ports.VoteRepository = (*Repository)(nil)
var _ ports.ProposalReader = (*Repository)(nil)
var _ ports.AgentReader = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
