package queries

import (
	"context"
	"strings"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
	domainerrors "civitas/contexts/civic-governance/veto-window-engine/domain/errors"
	"civitas/contexts/civic-governance/veto-window-engine/ports"
)

// PendingVetoUseCase serves the only supported discovery path for votes still
// inside their veto window: open proposals with a deadline inside the horizon
// and at least one non-overridden vote from the agent. There is deliberately
// no denormalized "needs review" flag to drift against the deadline.
type PendingVetoUseCase struct {
	Votes ports.VoteRepository
	Clock ports.Clock
}

// PendingVetoes lists upcoming veto deadlines for the agent, soonest first.
// The window is [now, now+horizon], inclusive on both ends.
func (uc PendingVetoUseCase) PendingVetoes(
	ctx context.Context,
	agentID string,
	horizon time.Duration,
) ([]entities.PendingVeto, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, domainerrors.ErrInvalidVoteInput
	}
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	now := uc.now()
	return uc.Votes.ListPendingVetoes(ctx, strings.TrimSpace(agentID), now, now.Add(horizon))
}

// AgentVotes lists the agent's votes cast since the given instant, newest
// first, for digest and dashboard consumers.
func (uc PendingVetoUseCase) AgentVotes(
	ctx context.Context,
	agentID string,
	since time.Time,
) ([]entities.Vote, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, domainerrors.ErrInvalidVoteInput
	}
	return uc.Votes.ListVotesByAgentSince(ctx, strings.TrimSpace(agentID), since.UTC())
}

func (uc PendingVetoUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
