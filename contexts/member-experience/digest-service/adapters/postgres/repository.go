package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civitas/contexts/member-experience/digest-service/domain/entities"
	domainerrors "civitas/contexts/member-experience/digest-service/domain/errors"
	"civitas/contexts/member-experience/digest-service/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository implements every digest port over postgres. Governance reads go
// straight at the votes/proposals tables as projections; the digest side
// never writes them.
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

func (r *Repository) GetUser(ctx context.Context, userID string) (ports.UserProjection, bool, error) {
	var row userModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.UserProjection{}, false, nil
		}
		return ports.UserProjection{}, false, r.logError("digest_repo_get_user_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toProjection(), true, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]ports.UserProjection, error) {
	var rows []userModel
	if err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("digest_repo_list_users_failed", err)
	}
	items := make([]ports.UserProjection, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toProjection())
	}
	return items, nil
}

func (r *Repository) GetAgentByUser(ctx context.Context, userID string) (ports.AgentProjection, bool, error) {
	var row agentModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AgentProjection{}, false, nil
		}
		return ports.AgentProjection{}, false, r.logError("digest_repo_get_agent_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return ports.AgentProjection{
		AgentID: row.ID,
		UserID:  row.UserID,
	}, true, nil
}

func (r *Repository) ListAgentVotes(
	ctx context.Context,
	agentID string,
	from time.Time,
	to time.Time,
) ([]entities.VoteActivity, error) {
	var rows []voteActivityRow
	err := r.db.WithContext(ctx).
		Table("votes").
		Select("votes.proposal_id, votes.value, votes.confidence, votes.created_at AS cast_at, proposals.title AS proposal_title").
		Joins("JOIN proposals ON proposals.id = votes.proposal_id").
		Where("votes.agent_id = ?", strings.TrimSpace(agentID)).
		Where("votes.created_at >= ? AND votes.created_at <= ?", from.UTC(), to.UTC()).
		Order("votes.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, r.logError("digest_repo_list_agent_votes_failed", err,
			"agent_id", strings.TrimSpace(agentID),
		)
	}
	items := make([]entities.VoteActivity, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.VoteActivity{
			ProposalID:    row.ProposalID,
			ProposalTitle: row.ProposalTitle,
			Value:         row.Value,
			Confidence:    row.Confidence,
			CastAt:        row.CastAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) ListProposalsCreated(
	ctx context.Context,
	from time.Time,
	to time.Time,
) ([]entities.ProposalActivity, error) {
	var rows []proposalActivityRow
	err := r.db.WithContext(ctx).
		Table("proposals").
		Select("id AS proposal_id, title, type, created_at").
		Where("created_at >= ? AND created_at <= ?", from.UTC(), to.UTC()).
		Order("created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, r.logError("digest_repo_list_proposals_failed", err)
	}
	items := make([]entities.ProposalActivity, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.ProposalActivity{
			ProposalID: row.ProposalID,
			Title:      row.Title,
			Type:       row.Type,
			CreatedAt:  row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) ListPendingVetoes(
	ctx context.Context,
	agentID string,
	now time.Time,
	until time.Time,
) ([]entities.VetoAlert, error) {
	var rows []vetoAlertRow
	err := r.db.WithContext(ctx).
		Table("votes").
		Select("votes.proposal_id, votes.value AS vote_value, proposals.title, proposals.veto_window_end").
		Joins("JOIN proposals ON proposals.id = votes.proposal_id").
		Where("votes.agent_id = ?", strings.TrimSpace(agentID)).
		Where("votes.override_by_user = ?", false).
		Where("proposals.status = ?", "open").
		Where("proposals.veto_window_end IS NOT NULL").
		Where("proposals.veto_window_end >= ? AND proposals.veto_window_end <= ?", now.UTC(), until.UTC()).
		Order("proposals.veto_window_end ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, r.logError("digest_repo_list_pending_vetoes_failed", err,
			"agent_id", strings.TrimSpace(agentID),
		)
	}
	items := make([]entities.VetoAlert, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.VetoAlert{
			ProposalID:    row.ProposalID,
			Title:         row.Title,
			VetoWindowEnd: row.VetoWindowEnd.UTC(),
			VoteValue:     row.VoteValue,
		})
	}
	return items, nil
}

func (r *Repository) SaveDigest(ctx context.Context, digest entities.Digest) error {
	row := digestModel{
		ID:          strings.TrimSpace(digest.DigestID),
		UserID:      strings.TrimSpace(digest.UserID),
		Content:     digest.Content,
		GeneratedAt: digest.GeneratedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("digest_repo_save_digest_failed", err,
			"digest_id", row.ID,
			"user_id", row.UserID,
		)
	}
	return nil
}

func (r *Repository) ListDigests(ctx context.Context, userID string, limit int) ([]entities.Digest, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []digestModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("generated_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("digest_repo_list_digests_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	items := make([]entities.Digest, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) LatestDigest(ctx context.Context, userID string) (entities.Digest, bool, error) {
	var row digestModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("generated_at DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Digest{}, false, nil
		}
		return entities.Digest{}, false, r.logError("digest_repo_latest_digest_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toEntity(), true, nil
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
		return false, r.logError("digest_repo_reserve_event_failed", create.Error,
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
		return false, r.logError("digest_repo_reserve_event_load_existing_failed", err,
			"event_id", strings.TrimSpace(eventID),
		)
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("digest_repo_append_outbox_marshal_failed", err,
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
		return r.logError("digest_repo_append_outbox_insert_failed", create.Error,
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
		return r.logError("digest_repo_append_outbox_load_existing_failed", err,
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
		return nil, r.logError("digest_repo_list_pending_outbox_failed", err, "limit", limit)
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
		return r.logError("digest_repo_mark_outbox_published_failed", result.Error,
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
		"module", "member-experience/digest-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("digest repository operation failed", fields...)
	return err
}

type userModel struct {
	ID                   string `gorm:"column:id;primaryKey"`
	DisplayName          string `gorm:"column:display_name"`
	DigestFrequencyHours int    `gorm:"column:digest_frequency_hours"`
	DigestTone           string `gorm:"column:digest_tone"`
}

func (userModel) TableName() string {
	return "users"
}

func (m userModel) toProjection() ports.UserProjection {
	return ports.UserProjection{
		UserID:               m.ID,
		DisplayName:          m.DisplayName,
		DigestFrequencyHours: m.DigestFrequencyHours,
		Tone:                 entities.Tone(strings.TrimSpace(m.DigestTone)),
	}
}

type agentModel struct {
	ID     string `gorm:"column:id;primaryKey"`
	UserID string `gorm:"column:user_id"`
}

func (agentModel) TableName() string {
	return "agents"
}

type digestModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	UserID      string    `gorm:"column:user_id;index"`
	Content     string    `gorm:"column:content"`
	GeneratedAt time.Time `gorm:"column:generated_at"`
}

func (digestModel) TableName() string {
	return "digests"
}

func (m digestModel) toEntity() entities.Digest {
	return entities.Digest{
		DigestID:    m.ID,
		UserID:      m.UserID,
		Content:     m.Content,
		GeneratedAt: m.GeneratedAt.UTC(),
	}
}

type voteActivityRow struct {
	ProposalID    string
	ProposalTitle string
	Value         string
	Confidence    float64
	CastAt        time.Time
}

type proposalActivityRow struct {
	ProposalID string
	Title      string
	Type       string
	CreatedAt  time.Time
}

type vetoAlertRow struct {
	ProposalID    string
	Title         string
	VetoWindowEnd time.Time
	VoteValue     string
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "digest_event_dedup"
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
	return "digest_outbox"
}

var _ ports.UserReader = (*Repository)(nil)
var _ ports.AgentReader = (*Repository)(nil)
var _ ports.GovernanceReader = (*Repository)(nil)
var _ ports.DigestRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
