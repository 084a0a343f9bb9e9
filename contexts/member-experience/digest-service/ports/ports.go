package ports

import (
	"context"
	"time"

	"civitas/contexts/member-experience/digest-service/domain/entities"
	contractsv1 "civitas/contracts/gen/events/v1"
)

// UserProjection is the slice of the users table the digest pipeline reads.
type UserProjection struct {
	UserID               string
	DisplayName          string
	DigestFrequencyHours int
	Tone                 entities.Tone
}

type AgentProjection struct {
	AgentID string
	UserID  string
}

type UserReader interface {
	GetUser(ctx context.Context, userID string) (UserProjection, bool, error)
	ListUsers(ctx context.Context) ([]UserProjection, error)
}

type AgentReader interface {
	GetAgentByUser(ctx context.Context, userID string) (AgentProjection, bool, error)
}

// GovernanceReader is the cross-context read surface over governance data.
// Implementations read the governance projections directly; the digest
// pipeline never writes through this port.
type GovernanceReader interface {
	ListAgentVotes(ctx context.Context, agentID string, from time.Time, to time.Time) ([]entities.VoteActivity, error)
	ListProposalsCreated(ctx context.Context, from time.Time, to time.Time) ([]entities.ProposalActivity, error)
	ListPendingVetoes(ctx context.Context, agentID string, now time.Time, until time.Time) ([]entities.VetoAlert, error)
}

type DigestRepository interface {
	SaveDigest(ctx context.Context, digest entities.Digest) error
	ListDigests(ctx context.Context, userID string, limit int) ([]entities.Digest, error)
	LatestDigest(ctx context.Context, userID string) (entities.Digest, bool, error)
}

// DigestRenderer turns gathered activity into digest text. Pure so worker
// control flow and prose stay independently testable.
type DigestRenderer func(user UserProjection, report entities.ActivityReport) string

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

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, group string, handler func(ctx context.Context, event EventEnvelope) error) error
}

// EventDedupStore reserves processing slots. Reserve returns true when the
// key was already reserved, meaning this delivery is a duplicate.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}
