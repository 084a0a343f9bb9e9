package ports

import (
	"context"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/domain/entities"
	contractsv1 "civitas/contracts/gen/events/v1"
)

// ProposalProjection is the slice of the proposals table this module reads.
// Proposals are owned by the proposal admin surface; the ledger only consumes
// the fields that gate posting.
type ProposalProjection struct {
	ProposalID string
	Type       string
	PlayMode   bool
	Status     string
	Amount     *float64
	CloseAt    *time.Time
}

// PostingOutcome captures what a posting attempt did so callers and tests can
// assert precondition gating without parsing logs.
type PostingOutcome struct {
	Posted bool
	Reason string
	Entry  entities.LedgerEntry
}

type ProposalReader interface {
	GetProposal(ctx context.Context, proposalID string) (ProposalProjection, bool, error)
}

// LedgerRepository owns the atomic posting transaction: existing-entry check,
// treasury read with row lock, entry insert, and treasury update are one unit.
type LedgerRepository interface {
	PostEntry(ctx context.Context, proposalID string, amount float64, createdAt time.Time) (entities.LedgerEntry, bool, error)
	GetEntryByProposal(ctx context.Context, proposalID string) (entities.LedgerEntry, bool, error)
	ListEntries(ctx context.Context, limit int, offset int) ([]entities.LedgerEntry, error)
	GetTreasury(ctx context.Context, seed float64) (entities.TreasuryView, error)
}

type Clock interface {
	Now() time.Time
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
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}
