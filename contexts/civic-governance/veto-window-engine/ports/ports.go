package ports

import (
	"context"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
	contractsv1 "civitas/contracts/gen/events/v1"
)

// ProposalProjection is the slice of the proposals table this module reads.
type ProposalProjection struct {
	ProposalID    string
	Title         string
	Type          string
	Status        string
	VetoWindowEnd *time.Time
	CreatedAt     time.Time
}

// AgentProjection carries the agent-to-owner mapping used for override
// authorization.
type AgentProjection struct {
	AgentID string
	UserID  string
}

type VoteRepository interface {
	SaveVote(ctx context.Context, vote entities.Vote) error
	GetVote(ctx context.Context, voteID string) (entities.Vote, error)
	GetVoteByIdentity(ctx context.Context, proposalID string, agentID string) (entities.Vote, bool, error)
	ListVotesByAgentSince(ctx context.Context, agentID string, since time.Time) ([]entities.Vote, error)
	ListPendingVetoes(ctx context.Context, agentID string, now time.Time, until time.Time) ([]entities.PendingVeto, error)
}

type ProposalReader interface {
	GetProposal(ctx context.Context, proposalID string) (ProposalProjection, bool, error)
}

type AgentReader interface {
	GetAgent(ctx context.Context, agentID string) (AgentProjection, bool, error)
}

// SignatureVerifier is the boundary to the identity-access collaborator. The
// engine trusts only the pass/fail verdict over the exact serialized request
// body.
type SignatureVerifier interface {
	Verify(ctx context.Context, userID string, payload []byte, signature string) (bool, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	VoteID      string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
