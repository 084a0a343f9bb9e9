package entities

import "time"

// Tone selects the greeting and sign-off register for rendered digests.
type Tone string

const (
	ToneFriendly Tone = "friendly"
	ToneFormal   Tone = "formal"
	ToneNeutral  Tone = ""
)

// Digest is one stored summary. Append-only; there is no update path.
type Digest struct {
	DigestID    string
	UserID      string
	Content     string
	GeneratedAt time.Time
}

// VetoAlert is a pending veto deadline surfaced to the owning user.
type VetoAlert struct {
	ProposalID    string
	Title         string
	VetoWindowEnd time.Time
	VoteValue     string
}

// VoteActivity is one agent vote inside the digest window, proposal joined.
type VoteActivity struct {
	ProposalID    string
	ProposalTitle string
	Value         string
	Confidence    float64
	CastAt        time.Time
}

// ProposalActivity is a proposal created inside the digest window.
type ProposalActivity struct {
	ProposalID string
	Title      string
	Type       string
	CreatedAt  time.Time
}

// ActivityReport is the gathered input to the renderer: alerts soonest-first,
// votes and proposals newest-first.
type ActivityReport struct {
	VetoAlerts   []VetoAlert
	RecentVotes  []VoteActivity
	NewProposals []ProposalActivity
}

// Empty reports render to the no-activity variant, which is never persisted.
func (r ActivityReport) Empty() bool {
	return len(r.VetoAlerts) == 0 && len(r.RecentVotes) == 0 && len(r.NewProposals) == 0
}
