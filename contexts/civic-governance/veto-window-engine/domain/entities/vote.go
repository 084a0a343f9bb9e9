package entities

import "time"

// VoteState is the derived lifecycle classification of an agent vote.
type VoteState string

const (
	// VoteStateCast means the vote is recorded and the veto window is still
	// open: a human override can still land.
	VoteStateCast VoteState = "CAST"
	// VoteStateFinal means the veto window passed without an override; the
	// vote stands. No write marks this transition, it is purely wall-clock.
	VoteStateFinal VoteState = "FINAL"
	// VoteStateOverridden means the owning human explicitly vetoed the vote.
	VoteStateOverridden VoteState = "OVERRIDDEN"
)

// Vote is one agent's position on one proposal. Identity is
// (proposal, agent); re-casting before the deadline updates in place.
type Vote struct {
	VoteID         string
	ProposalID     string
	AgentID        string
	Value          string
	Confidence     float64
	OverrideByUser bool
	OverrideReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// State classifies the vote against the proposal's veto deadline at the given
// instant. Override wins regardless of the deadline; a missing deadline never
// finalizes the vote.
func (v Vote) State(now time.Time, vetoWindowEnd *time.Time) VoteState {
	return ClassifyVote(now, vetoWindowEnd, v.OverrideByUser)
}

// ClassifyVote is the first-class derived-state function: pure over
// (now, vetoWindowEnd, overrideByUser) so it is independently testable and
// there is no stored status column to drift against the deadline.
func ClassifyVote(now time.Time, vetoWindowEnd *time.Time, overrideByUser bool) VoteState {
	if overrideByUser {
		return VoteStateOverridden
	}
	if vetoWindowEnd == nil {
		return VoteStateCast
	}
	// The window is inclusive of its endpoint: a vote whose deadline equals
	// now is still vetoable.
	if vetoWindowEnd.UTC().Before(now.UTC()) {
		return VoteStateFinal
	}
	return VoteStateCast
}

// PendingVeto pairs a still-open proposal deadline with the agent vote it
// would finalize, for review surfaces.
type PendingVeto struct {
	ProposalID    string
	Title         string
	VetoWindowEnd time.Time
	Vote          Vote
}
