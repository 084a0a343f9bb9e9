package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "civitas/contexts/treasury-finance/play-ledger-service/application"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"
)

const (
	proposalClosedTopic = "proposal.closed"
	defaultLedgerCG     = "play-ledger-proposal-cg"
)

// ProposalClosedConsumer reacts to proposal closures by attempting a treasury
// posting. The posting operation is idempotent, so at-least-once delivery of
// closure events is safe; the dedup store records fully handled events after
// the posting succeeds.
type ProposalClosedConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Service       application.Service
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

// Start subscribes the ledger to proposal lifecycle closures.
func (c ProposalClosedConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("proposal closed consumer disabled by feature flag",
			"event", "ledger_proposal_consumer_disabled",
			"module", "treasury-finance/play-ledger-service",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultLedgerCG
	}
	if err := c.Subscriber.Subscribe(ctx, proposalClosedTopic, group, c.handleProposalClosed); err != nil {
		logger.Error("proposal closed consumer subscribe failed",
			"event", "ledger_proposal_consumer_subscribe_failed",
			"module", "treasury-finance/play-ledger-service",
			"layer", "worker",
			"topic", proposalClosedTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("proposal closed consumer subscription active",
		"event", "ledger_proposal_consumer_started",
		"module", "treasury-finance/play-ledger-service",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c ProposalClosedConsumer) handleProposalClosed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var payload struct {
		ProposalID string `json:"proposal_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("proposal.closed payload decode failed",
			"event", "ledger_proposal_closed_decode_failed",
			"module", "treasury-finance/play-ledger-service",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}

	outcome, err := c.Service.PostLedgerEntry(ctx, payload.ProposalID)
	if err != nil {
		logger.Error("proposal.closed posting failed",
			"event", "ledger_proposal_closed_posting_failed",
			"module", "treasury-finance/play-ledger-service",
			"layer", "worker",
			"event_id", event.EventID,
			"proposal_id", strings.TrimSpace(payload.ProposalID),
			"error", err.Error(),
		)
		return err
	}

	// The event is marked processed only after the posting is applied; a
	// reservation taken up front would swallow redeliveries of a delivery
	// that failed mid-flight. Posting is idempotent, so replays that arrive
	// before the mark lands re-run it as a no-op.
	if alreadyProcessed, err := c.reserveEvent(ctx, event); err != nil {
		return err
	} else if alreadyProcessed {
		logger.Debug("proposal.closed replay observed",
			"event", "ledger_proposal_closed_replayed",
			"module", "treasury-finance/play-ledger-service",
			"layer", "worker",
			"event_id", event.EventID,
		)
	}

	logger.Info("proposal.closed handled",
		"event", "ledger_proposal_closed_handled",
		"module", "treasury-finance/play-ledger-service",
		"layer", "worker",
		"event_id", event.EventID,
		"proposal_id", strings.TrimSpace(payload.ProposalID),
		"posted", outcome.Posted,
		"reason", outcome.Reason,
	)
	return nil
}

func (c ProposalClosedConsumer) reserveEvent(ctx context.Context, event ports.EventEnvelope) (bool, error) {
	if c.Dedup == nil {
		return false, nil
	}
	ttl := c.DedupTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), c.now().Add(ttl))
}

func (c ProposalClosedConsumer) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock.Now().UTC()
}
