package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "civitas/contexts/civic-governance/veto-window-engine/application"
	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
	domainerrors "civitas/contexts/civic-governance/veto-window-engine/domain/errors"
	"civitas/contexts/civic-governance/veto-window-engine/ports"
)

// CastVoteCommand is the write-model input for an agent casting (or
// re-casting) its vote on a proposal.
type CastVoteCommand struct {
	AgentID        string
	ProposalID     string
	Value          string
	Confidence     float64
	IdempotencyKey string
}

// CastVoteResult returns final vote state and replay/update markers that the
// transport layer maps to API semantics.
type CastVoteResult struct {
	Vote      entities.Vote
	Replayed  bool
	WasUpdate bool
}

// OverrideVoteCommand requests a human veto of the agent's vote. RequestBody
// is the exact serialized request the signature covers.
type OverrideVoteCommand struct {
	VoteID         string
	UserID         string
	Reason         string
	IdempotencyKey string
	RequestBody    []byte
	Signature      string
}

// OverrideVoteResult reports the post-override vote and whether the call was
// a replay of an already-applied override.
type OverrideVoteResult struct {
	Vote     entities.Vote
	Replayed bool
}

// VoteUseCase orchestrates vote commands: idempotency, proposal-open checks,
// override authorization through the signature verifier, and outbox event
// emission.
type VoteUseCase struct {
	Votes          ports.VoteRepository
	Proposals      ports.ProposalReader
	Agents         ports.AgentReader
	Verifier       ports.SignatureVerifier
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// CastVote creates or updates the vote identified by (proposal, agent). The
// method is replay-safe via idempotency key + request hash validation.
func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.AgentID) == "" ||
		strings.TrimSpace(cmd.ProposalID) == "" ||
		strings.TrimSpace(cmd.Value) == "" ||
		cmd.Confidence < 0 || cmd.Confidence > 1 {
		logger.Warn("vote cast validation failed",
			"event", "veto_vote_cast_validation_failed",
			"module", "civic-governance/veto-window-engine",
			"layer", "application",
			"agent_id", strings.TrimSpace(cmd.AgentID),
			"proposal_id", strings.TrimSpace(cmd.ProposalID),
		)
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return CastVoteResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashCastVoteCommand(cmd)
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return CastVoteResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return CastVoteResult{}, domainerrors.ErrIdempotencyConflict
		}
		vote, err := uc.Votes.GetVote(ctx, record.VoteID)
		if err != nil {
			return CastVoteResult{}, err
		}
		logger.Info("vote cast replayed",
			"event", "veto_vote_cast_replayed",
			"module", "civic-governance/veto-window-engine",
			"layer", "application",
			"vote_id", vote.VoteID,
			"agent_id", vote.AgentID,
		)
		return CastVoteResult{Vote: vote, Replayed: true}, nil
	}

	proposal, found, err := uc.Proposals.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		return CastVoteResult{}, err
	}
	if !found {
		return CastVoteResult{}, domainerrors.ErrProposalNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(proposal.Status), "open") {
		return CastVoteResult{}, domainerrors.ErrProposalClosed
	}

	if existing, found, err := uc.Votes.GetVoteByIdentity(ctx, cmd.ProposalID, cmd.AgentID); err != nil {
		return CastVoteResult{}, err
	} else if found {
		existing.Value = strings.TrimSpace(cmd.Value)
		existing.Confidence = cmd.Confidence
		existing.UpdatedAt = now
		if err := uc.Votes.SaveVote(ctx, existing); err != nil {
			return CastVoteResult{}, err
		}
		if err := uc.appendVoteEvent(ctx, "vote.updated", existing, now, map[string]any{
			"reason": "vote_recast",
		}); err != nil {
			return CastVoteResult{}, err
		}
		if err := uc.putIdempotency(ctx, cmd.IdempotencyKey, requestHash, existing.VoteID, now); err != nil {
			return CastVoteResult{}, err
		}
		logger.Info("vote updated",
			"event", "veto_vote_updated",
			"module", "civic-governance/veto-window-engine",
			"layer", "application",
			"vote_id", existing.VoteID,
			"proposal_id", existing.ProposalID,
			"agent_id", existing.AgentID,
			"value", existing.Value,
		)
		return CastVoteResult{Vote: existing, WasUpdate: true}, nil
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	vote := entities.Vote{
		VoteID:     voteID,
		ProposalID: strings.TrimSpace(cmd.ProposalID),
		AgentID:    strings.TrimSpace(cmd.AgentID),
		Value:      strings.TrimSpace(cmd.Value),
		Confidence: cmd.Confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.Votes.SaveVote(ctx, vote); err != nil {
		return CastVoteResult{}, err
	}
	if err := uc.appendVoteEvent(ctx, "vote.cast", vote, now, nil); err != nil {
		return CastVoteResult{}, err
	}
	if err := uc.putIdempotency(ctx, cmd.IdempotencyKey, requestHash, vote.VoteID, now); err != nil {
		return CastVoteResult{}, err
	}

	logger.Info("vote cast",
		"event", "veto_vote_cast",
		"module", "civic-governance/veto-window-engine",
		"layer", "application",
		"vote_id", vote.VoteID,
		"proposal_id", vote.ProposalID,
		"agent_id", vote.AgentID,
		"value", vote.Value,
		"confidence", vote.Confidence,
	)
	return CastVoteResult{Vote: vote}, nil
}

// OverrideVote applies a human veto to the agent's vote. The request must be
// signed by the acting user over the exact request body; verification failure
// rejects the attempt before any state is touched. Overriding an already
// overridden vote is a replay no-op.
func (uc VoteUseCase) OverrideVote(ctx context.Context, cmd OverrideVoteCommand) (OverrideVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.VoteID) == "" || strings.TrimSpace(cmd.UserID) == "" {
		return OverrideVoteResult{}, domainerrors.ErrInvalidVoteInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return OverrideVoteResult{}, domainerrors.ErrIdempotencyKeyRequired
	}
	if strings.TrimSpace(cmd.Signature) == "" || len(cmd.RequestBody) == 0 {
		return OverrideVoteResult{}, domainerrors.ErrSignatureRequired
	}

	verified, err := uc.Verifier.Verify(ctx, strings.TrimSpace(cmd.UserID), cmd.RequestBody, strings.TrimSpace(cmd.Signature))
	if err != nil {
		return OverrideVoteResult{}, err
	}
	if !verified {
		logger.Warn("override signature rejected",
			"event", "veto_override_signature_rejected",
			"module", "civic-governance/veto-window-engine",
			"layer", "application",
			"vote_id", strings.TrimSpace(cmd.VoteID),
			"user_id", strings.TrimSpace(cmd.UserID),
		)
		return OverrideVoteResult{}, domainerrors.ErrSignatureInvalid
	}

	now := uc.now()
	requestHash := hashOverrideVoteCommand(cmd)
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return OverrideVoteResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return OverrideVoteResult{}, domainerrors.ErrIdempotencyConflict
		}
		vote, err := uc.Votes.GetVote(ctx, record.VoteID)
		if err != nil {
			return OverrideVoteResult{}, err
		}
		return OverrideVoteResult{Vote: vote, Replayed: true}, nil
	}

	vote, err := uc.Votes.GetVote(ctx, strings.TrimSpace(cmd.VoteID))
	if err != nil {
		return OverrideVoteResult{}, err
	}

	agent, found, err := uc.Agents.GetAgent(ctx, vote.AgentID)
	if err != nil {
		return OverrideVoteResult{}, err
	}
	if !found {
		return OverrideVoteResult{}, domainerrors.ErrAgentNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(agent.UserID), strings.TrimSpace(cmd.UserID)) {
		return OverrideVoteResult{}, domainerrors.ErrNotVoteOwner
	}

	proposal, found, err := uc.Proposals.GetProposal(ctx, vote.ProposalID)
	if err != nil {
		return OverrideVoteResult{}, err
	}
	if !found {
		return OverrideVoteResult{}, domainerrors.ErrProposalNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(proposal.Status), "open") {
		return OverrideVoteResult{}, domainerrors.ErrProposalClosed
	}

	if vote.OverrideByUser {
		// Already vetoed; record the idempotency key and report a replay.
		if err := uc.putIdempotency(ctx, cmd.IdempotencyKey, requestHash, vote.VoteID, now); err != nil {
			return OverrideVoteResult{}, err
		}
		return OverrideVoteResult{Vote: vote, Replayed: true}, nil
	}

	vote.OverrideByUser = true
	vote.OverrideReason = strings.TrimSpace(cmd.Reason)
	vote.UpdatedAt = now
	if err := uc.Votes.SaveVote(ctx, vote); err != nil {
		return OverrideVoteResult{}, err
	}
	if err := uc.appendVoteEvent(ctx, "vote.overridden", vote, now, map[string]any{
		"override_reason": vote.OverrideReason,
		"overridden_by":   strings.TrimSpace(cmd.UserID),
	}); err != nil {
		return OverrideVoteResult{}, err
	}
	if err := uc.putIdempotency(ctx, cmd.IdempotencyKey, requestHash, vote.VoteID, now); err != nil {
		return OverrideVoteResult{}, err
	}

	logger.Info("vote overridden",
		"event", "veto_vote_overridden",
		"module", "civic-governance/veto-window-engine",
		"layer", "application",
		"vote_id", vote.VoteID,
		"proposal_id", vote.ProposalID,
		"agent_id", vote.AgentID,
		"user_id", strings.TrimSpace(cmd.UserID),
	)
	return OverrideVoteResult{Vote: vote}, nil
}

func (uc VoteUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

func (uc VoteUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc VoteUseCase) putIdempotency(
	ctx context.Context,
	key string,
	requestHash string,
	voteID string,
	now time.Time,
) error {
	return uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         strings.TrimSpace(key),
		RequestHash: requestHash,
		VoteID:      voteID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	})
}

func (uc VoteUseCase) appendVoteEvent(
	ctx context.Context,
	eventType string,
	vote entities.Vote,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"vote_id":          vote.VoteID,
		"proposal_id":      vote.ProposalID,
		"agent_id":         vote.AgentID,
		"value":            vote.Value,
		"confidence":       vote.Confidence,
		"override_by_user": vote.OverrideByUser,
		"occurred_at":      occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}

	envelope, err := newVetoEnvelope(eventID, eventType, vote.ProposalID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func hashCastVoteCommand(cmd CastVoteCommand) string {
	payload := map[string]any{
		"agent_id":    strings.TrimSpace(cmd.AgentID),
		"proposal_id": strings.TrimSpace(cmd.ProposalID),
		"value":       strings.TrimSpace(cmd.Value),
		"confidence":  cmd.Confidence,
		"op":          "cast_vote",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func hashOverrideVoteCommand(cmd OverrideVoteCommand) string {
	payload := map[string]string{
		"vote_id": strings.TrimSpace(cmd.VoteID),
		"user_id": strings.TrimSpace(cmd.UserID),
		"reason":  strings.TrimSpace(cmd.Reason),
		"op":      "override_vote",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
