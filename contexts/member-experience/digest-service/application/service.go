package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"civitas/contexts/member-experience/digest-service/domain/entities"
	domainerrors "civitas/contexts/member-experience/digest-service/domain/errors"
	"civitas/contexts/member-experience/digest-service/ports"
)

const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"

	SkipUserNotFound      = "user_not_found"
	SkipAgentNotOnboard   = "agent_not_onboarded"
	SkipNoActivity        = "no_activity"
	SkipDuplicateJob      = "duplicate_job"
	defaultFrequencyHours = 24
)

// JobResult is the structured outcome of one digest generation attempt.
// Skips are expected steady states, not failures.
type JobResult struct {
	Status string
	UserID string
	Reason string
	Digest entities.Digest
}

// Service runs digest generation. Side effects are one append-only digest
// insert plus one outbox record, so redelivered jobs after a crash only redo
// derivation work.
type Service struct {
	Users      ports.UserReader
	Agents     ports.AgentReader
	Governance ports.GovernanceReader
	Digests    ports.DigestRepository
	Renderer   ports.DigestRenderer
	Outbox     ports.OutboxWriter
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger

	// Lookahead bounds how far ahead veto alerts are collected. Zero falls
	// back to the user's digest frequency, so alerts never cover less than
	// the digest window itself.
	Lookahead time.Duration
}

// GenerateDigest gathers the user's activity window, renders it, and persists
// the digest when there is anything to report. Missing user or agent resolve
// to skip results; infrastructure errors propagate so the job queue retries.
func (s Service) GenerateDigest(ctx context.Context, userID string) (JobResult, error) {
	logger := ResolveLogger(s.Logger)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return JobResult{}, domainerrors.ErrInvalidInput
	}

	user, found, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return JobResult{}, err
	}
	if !found {
		logger.Info("digest skipped, user not found",
			"event", "digest_skipped",
			"module", "member-experience/digest-service",
			"layer", "application",
			"user_id", userID,
			"reason", SkipUserNotFound,
		)
		return JobResult{Status: StatusSkipped, UserID: userID, Reason: SkipUserNotFound}, nil
	}

	agent, found, err := s.Agents.GetAgentByUser(ctx, userID)
	if err != nil {
		return JobResult{}, err
	}
	if !found {
		logger.Info("digest skipped, no onboarded agent",
			"event", "digest_skipped",
			"module", "member-experience/digest-service",
			"layer", "application",
			"user_id", userID,
			"reason", SkipAgentNotOnboard,
		)
		return JobResult{Status: StatusSkipped, UserID: userID, Reason: SkipAgentNotOnboard}, nil
	}

	now := s.now()
	frequency := resolveFrequency(user.DigestFrequencyHours)
	windowStart := now.Add(-frequency)

	report, err := s.gatherActivity(ctx, agent.AgentID, windowStart, now, frequency)
	if err != nil {
		return JobResult{}, err
	}

	renderer := s.Renderer
	if renderer == nil {
		renderer = RenderDigest
	}
	content := renderer(user, report)

	if report.Empty() {
		// No-activity digests are deliberately not stored so digest history
		// holds only periods with something to report.
		logger.Info("digest skipped, no activity in window",
			"event", "digest_skipped",
			"module", "member-experience/digest-service",
			"layer", "application",
			"user_id", userID,
			"reason", SkipNoActivity,
			"window_start", windowStart.Format(time.RFC3339),
		)
		return JobResult{Status: StatusSkipped, UserID: userID, Reason: SkipNoActivity}, nil
	}

	digestID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return JobResult{}, err
	}
	digest := entities.Digest{
		DigestID:    digestID,
		UserID:      userID,
		Content:     content,
		GeneratedAt: now,
	}
	if err := s.Digests.SaveDigest(ctx, digest); err != nil {
		return JobResult{}, err
	}
	if err := s.appendDigestGenerated(ctx, digest, report); err != nil {
		return JobResult{}, err
	}

	logger.Info("digest generated",
		"event", "digest_generated",
		"module", "member-experience/digest-service",
		"layer", "application",
		"user_id", userID,
		"digest_id", digest.DigestID,
		"veto_alerts", len(report.VetoAlerts),
		"recent_votes", len(report.RecentVotes),
		"new_proposals", len(report.NewProposals),
	)
	return JobResult{Status: StatusCompleted, UserID: userID, Digest: digest}, nil
}

// JobKey derives the deterministic dedup key for a digest job: redeliveries
// inside the same hour collapse to one generation.
func JobKey(userID string, windowStart time.Time) string {
	return strings.TrimSpace(userID) + "@" + windowStart.UTC().Truncate(time.Hour).Format(time.RFC3339)
}

// WindowStart exposes the window computation for job-key derivation at the
// consumer boundary.
func (s Service) WindowStart(ctx context.Context, userID string) (time.Time, error) {
	user, found, err := s.Users.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return time.Time{}, err
	}
	frequency := resolveFrequency(0)
	if found {
		frequency = resolveFrequency(user.DigestFrequencyHours)
	}
	return s.now().Add(-frequency), nil
}

func (s Service) ListDigests(ctx context.Context, userID string, limit int) ([]entities.Digest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domainerrors.ErrInvalidInput
	}
	if limit <= 0 {
		limit = 20
	}
	return s.Digests.ListDigests(ctx, strings.TrimSpace(userID), limit)
}

func (s Service) gatherActivity(
	ctx context.Context,
	agentID string,
	windowStart time.Time,
	now time.Time,
	frequency time.Duration,
) (entities.ActivityReport, error) {
	alerts, err := s.Governance.ListPendingVetoes(ctx, agentID, now, now.Add(s.vetoHorizon(frequency)))
	if err != nil {
		return entities.ActivityReport{}, err
	}
	votes, err := s.Governance.ListAgentVotes(ctx, agentID, windowStart, now)
	if err != nil {
		return entities.ActivityReport{}, err
	}
	proposals, err := s.Governance.ListProposalsCreated(ctx, windowStart, now)
	if err != nil {
		return entities.ActivityReport{}, err
	}
	return entities.ActivityReport{
		VetoAlerts:   alerts,
		RecentVotes:  votes,
		NewProposals: proposals,
	}, nil
}

func (s Service) appendDigestGenerated(
	ctx context.Context,
	digest entities.Digest,
	report entities.ActivityReport,
) error {
	if s.Outbox == nil {
		return nil
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"digest_id":     digest.DigestID,
		"user_id":       digest.UserID,
		"generated_at":  digest.GeneratedAt.Format(time.RFC3339),
		"veto_alerts":   len(report.VetoAlerts),
		"recent_votes":  len(report.RecentVotes),
		"new_proposals": len(report.NewProposals),
	})
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        "digest.generated",
		OccurredAt:       digest.GeneratedAt,
		SourceService:    "digest-service",
		SchemaVersion:    1,
		PartitionKeyPath: "user_id",
		PartitionKey:     digest.UserID,
		Data:             data,
	})
}

func (s Service) vetoHorizon(frequency time.Duration) time.Duration {
	if s.Lookahead > frequency {
		return s.Lookahead
	}
	return frequency
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func resolveFrequency(hours int) time.Duration {
	if hours <= 0 {
		hours = defaultFrequencyHours
	}
	return time.Duration(hours) * time.Hour
}
