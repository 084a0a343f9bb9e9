package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/application/commands"
	"civitas/contexts/civic-governance/veto-window-engine/application/queries"
	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
	"civitas/contexts/civic-governance/veto-window-engine/ports"
	httptransport "civitas/contexts/civic-governance/veto-window-engine/transport/http"
)

// Handler translates between transport DTOs and the vote use cases. Vote state
// is derived per response against the proposal's veto deadline, never stored.
type Handler struct {
	Votes     commands.VoteUseCase
	Queries   queries.PendingVetoUseCase
	Proposals ports.ProposalReader
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	req httptransport.CastVoteRequest,
	idempotencyKey string,
) (httptransport.VoteResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		AgentID:        req.AgentID,
		ProposalID:     req.ProposalID,
		Value:          req.Value,
		Confidence:     req.Confidence,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	resp, err := h.toVoteResponse(ctx, result.Vote)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	resp.Replayed = result.Replayed
	resp.WasUpdate = result.WasUpdate
	return resp, nil
}

func (h Handler) OverrideVoteHandler(
	ctx context.Context,
	voteID string,
	req httptransport.OverrideVoteRequest,
	rawBody []byte,
	signature string,
	idempotencyKey string,
) (httptransport.VoteResponse, error) {
	result, err := h.Votes.OverrideVote(ctx, commands.OverrideVoteCommand{
		VoteID:         voteID,
		UserID:         req.UserID,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey,
		RequestBody:    rawBody,
		Signature:      signature,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	resp, err := h.toVoteResponse(ctx, result.Vote)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) GetVoteHandler(ctx context.Context, voteID string) (httptransport.VoteResponse, error) {
	vote, err := h.Votes.Votes.GetVote(ctx, voteID)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return h.toVoteResponse(ctx, vote)
}

func (h Handler) PendingVetoesHandler(
	ctx context.Context,
	agentID string,
	horizon time.Duration,
) (httptransport.PendingVetoesResponse, error) {
	pending, err := h.Queries.PendingVetoes(ctx, agentID, horizon)
	if err != nil {
		return httptransport.PendingVetoesResponse{}, err
	}
	items := make([]httptransport.PendingVetoItem, 0, len(pending))
	for _, item := range pending {
		items = append(items, httptransport.PendingVetoItem{
			ProposalID:    item.ProposalID,
			Title:         item.Title,
			VetoWindowEnd: item.VetoWindowEnd.UTC().Format(time.RFC3339),
			VoteID:        item.Vote.VoteID,
			Value:         item.Vote.Value,
			Confidence:    item.Vote.Confidence,
		})
	}
	return httptransport.PendingVetoesResponse{Items: items}, nil
}

func (h Handler) AgentVotesHandler(
	ctx context.Context,
	agentID string,
	since time.Time,
) (httptransport.AgentVotesResponse, error) {
	votes, err := h.Queries.AgentVotes(ctx, agentID, since)
	if err != nil {
		return httptransport.AgentVotesResponse{}, err
	}
	items := make([]httptransport.AgentVoteItem, 0, len(votes))
	for _, vote := range votes {
		items = append(items, httptransport.AgentVoteItem{
			VoteID:         vote.VoteID,
			ProposalID:     vote.ProposalID,
			Value:          vote.Value,
			Confidence:     vote.Confidence,
			OverrideByUser: vote.OverrideByUser,
			CreatedAt:      vote.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return httptransport.AgentVotesResponse{Items: items}, nil
}

func (h Handler) toVoteResponse(ctx context.Context, vote entities.Vote) (httptransport.VoteResponse, error) {
	var deadline *time.Time
	if h.Proposals != nil {
		proposal, found, err := h.Proposals.GetProposal(ctx, vote.ProposalID)
		if err != nil {
			return httptransport.VoteResponse{}, err
		}
		if found {
			deadline = proposal.VetoWindowEnd
		}
	}
	return httptransport.VoteResponse{
		VoteID:         vote.VoteID,
		ProposalID:     vote.ProposalID,
		AgentID:        vote.AgentID,
		Value:          vote.Value,
		Confidence:     vote.Confidence,
		State:          string(vote.State(h.now(), deadline)),
		OverrideByUser: vote.OverrideByUser,
		OverrideReason: vote.OverrideReason,
		CreatedAt:      vote.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      vote.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (h Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now().UTC()
}
