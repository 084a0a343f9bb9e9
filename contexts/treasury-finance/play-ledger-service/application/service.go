package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/domain/entities"
	domainerrors "civitas/contexts/treasury-finance/play-ledger-service/domain/errors"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"
)

// Skip reasons reported when a posting attempt is an expected no-op.
const (
	SkipProposalNotFound = "proposal_not_found"
	SkipPlayMode         = "play_mode"
	SkipNotMonetary      = "not_monetary"
	SkipNotClosed        = "not_closed"
	SkipAlreadyPosted    = "already_posted"
)

// Service orchestrates exactly-once treasury posting. The repository owns the
// atomic transaction; the service owns precondition gating and event emission.
type Service struct {
	Proposals    ports.ProposalReader
	Ledger       ports.LedgerRepository
	Outbox       ports.OutboxWriter
	Clock        ports.Clock
	TreasurySeed float64
	Logger       *slog.Logger
}

// PostLedgerEntry posts the treasury debit for a closed, non-play, monetary
// proposal, exactly once per proposal. Disqualifying proposals produce a
// skipped outcome with a nil error; a missing treasury row or a missing
// amount on a qualifying proposal propagates as a fatal error.
func (s Service) PostLedgerEntry(ctx context.Context, proposalID string) (ports.PostingOutcome, error) {
	logger := ResolveLogger(s.Logger)
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return ports.PostingOutcome{}, domainerrors.ErrInvalidInput
	}
	logger.Info("ledger posting started",
		"event", "ledger_posting_started",
		"module", "treasury-finance/play-ledger-service",
		"layer", "application",
		"proposal_id", proposalID,
	)

	proposal, found, err := s.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return ports.PostingOutcome{}, err
	}
	if !found {
		return s.skip(logger, proposalID, SkipProposalNotFound), nil
	}
	if proposal.PlayMode {
		return s.skip(logger, proposalID, SkipPlayMode), nil
	}
	if !strings.EqualFold(strings.TrimSpace(proposal.Type), "monetary") {
		return s.skip(logger, proposalID, SkipNotMonetary), nil
	}
	if !strings.EqualFold(strings.TrimSpace(proposal.Status), "closed") {
		return s.skip(logger, proposalID, SkipNotClosed), nil
	}
	if proposal.Amount == nil {
		// Retry cannot fix missing data; this needs operator correction of the
		// proposal record.
		logger.Error("ledger posting aborted on missing amount",
			"event", "ledger_posting_amount_missing",
			"module", "treasury-finance/play-ledger-service",
			"layer", "application",
			"proposal_id", proposalID,
		)
		return ports.PostingOutcome{}, domainerrors.ErrAmountMissing
	}

	entry, posted, err := s.Ledger.PostEntry(ctx, proposalID, *proposal.Amount, s.now())
	if err != nil {
		if errors.Is(err, domainerrors.ErrTreasuryNotSeeded) {
			logger.Error("ledger posting aborted on missing treasury row",
				"event", "ledger_posting_treasury_missing",
				"module", "treasury-finance/play-ledger-service",
				"layer", "application",
				"proposal_id", proposalID,
			)
		}
		return ports.PostingOutcome{}, err
	}
	if !posted {
		// A crash between the posting commit and the outbox append leaves
		// the event unqueued; the deterministic event id lets the replay
		// path re-append it as a no-op when it is already there.
		if err := s.appendEntryPostedOutbox(ctx, entry); err != nil {
			return ports.PostingOutcome{}, err
		}
		return ports.PostingOutcome{
			Posted: false,
			Reason: SkipAlreadyPosted,
			Entry:  entry,
		}, nil
	}

	if err := s.appendEntryPostedOutbox(ctx, entry); err != nil {
		return ports.PostingOutcome{}, err
	}

	logger.Info("ledger entry posted",
		"event", "ledger_entry_posted",
		"module", "treasury-finance/play-ledger-service",
		"layer", "application",
		"proposal_id", entry.ProposalID,
		"entry_id", entry.EntryID,
		"amount", entry.Amount,
		"balance_after", entry.BalanceAfter,
	)
	return ports.PostingOutcome{Posted: true, Entry: entry}, nil
}

func (s Service) Treasury(ctx context.Context) (entities.TreasuryView, error) {
	return s.Ledger.GetTreasury(ctx, s.TreasurySeed)
}

func (s Service) ListEntries(ctx context.Context, limit int, offset int) ([]entities.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Ledger.ListEntries(ctx, limit, offset)
}

func (s Service) skip(logger *slog.Logger, proposalID string, reason string) ports.PostingOutcome {
	logger.Info("ledger posting skipped",
		"event", "ledger_posting_skipped",
		"module", "treasury-finance/play-ledger-service",
		"layer", "application",
		"proposal_id", proposalID,
		"reason", reason,
	)
	return ports.PostingOutcome{Posted: false, Reason: reason}
}

func (s Service) appendEntryPostedOutbox(ctx context.Context, entry entities.LedgerEntry) error {
	if s.Outbox == nil {
		return nil
	}
	// One proposal posts at most one entry, so the proposal id doubles as a
	// stable event id: retries and replay heals never enqueue a second event.
	eventID := "ledger.entry_posted:" + strings.TrimSpace(entry.ProposalID)
	data, err := json.Marshal(map[string]any{
		"entry_id":      entry.EntryID,
		"proposal_id":   entry.ProposalID,
		"amount":        entry.Amount,
		"balance_after": entry.BalanceAfter,
		"posted_at":     entry.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        "ledger.entry_posted",
		OccurredAt:       entry.CreatedAt.UTC(),
		SourceService:    "play-ledger-service",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     entry.ProposalID,
		Data:             data,
	})
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
