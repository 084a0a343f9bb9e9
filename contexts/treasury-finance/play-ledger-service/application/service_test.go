package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/adapters/memory"
	domainerrors "civitas/contexts/treasury-finance/play-ledger-service/domain/errors"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"
)

func newService(store *memory.Store, seed float64) Service {
	return Service{
		Proposals:    store,
		Ledger:       store,
		Outbox:       store,
		Clock:        store,
		TreasurySeed: seed,
	}
}

func closedMonetaryProposal(id string, amount float64) ports.ProposalProjection {
	return ports.ProposalProjection{
		ProposalID: id,
		Type:       "monetary",
		PlayMode:   false,
		Status:     "closed",
		Amount:     &amount,
	}
}

func TestPostLedgerEntryDebitsTreasuryExactlyOnce(t *testing.T) {
	store := memory.NewStore()
	store.SeedTreasury(100000)
	store.SetProposal(closedMonetaryProposal("proposal-x", 500))
	service := newService(store, 100000)

	outcome, err := service.PostLedgerEntry(context.Background(), "proposal-x")
	if err != nil {
		t.Fatalf("post ledger entry failed: %v", err)
	}
	if !outcome.Posted {
		t.Fatalf("expected posted outcome, got reason %q", outcome.Reason)
	}
	if outcome.Entry.Amount != -500 {
		t.Fatalf("expected amount -500, got %f", outcome.Entry.Amount)
	}
	if outcome.Entry.BalanceAfter != 99500 {
		t.Fatalf("expected balance after 99500, got %f", outcome.Entry.BalanceAfter)
	}

	replay, err := service.PostLedgerEntry(context.Background(), "proposal-x")
	if err != nil {
		t.Fatalf("replay post failed: %v", err)
	}
	if replay.Posted {
		t.Fatalf("expected replay to be a no-op")
	}
	if replay.Reason != SkipAlreadyPosted {
		t.Fatalf("expected reason %q, got %q", SkipAlreadyPosted, replay.Reason)
	}

	view, err := service.Treasury(context.Background())
	if err != nil {
		t.Fatalf("treasury read failed: %v", err)
	}
	if view.Balance != 99500 {
		t.Fatalf("expected treasury 99500 after replay, got %f", view.Balance)
	}
	if view.EntryCount != 1 {
		t.Fatalf("expected exactly one entry, got %d", view.EntryCount)
	}
	if !view.Reconciles() {
		t.Fatalf("expected seed + entry sum to reconcile to balance")
	}
}

func TestPostLedgerEntryPreconditionGating(t *testing.T) {
	amount := 250.0
	cases := []struct {
		name     string
		proposal *ports.ProposalProjection
		reason   string
	}{
		{name: "missing proposal", proposal: nil, reason: SkipProposalNotFound},
		{
			name: "play mode",
			proposal: &ports.ProposalProjection{
				ProposalID: "p", Type: "monetary", PlayMode: true, Status: "closed", Amount: &amount,
			},
			reason: SkipPlayMode,
		},
		{
			name: "not monetary",
			proposal: &ports.ProposalProjection{
				ProposalID: "p", Type: "policy", Status: "closed",
			},
			reason: SkipNotMonetary,
		},
		{
			name: "still open",
			proposal: &ports.ProposalProjection{
				ProposalID: "p", Type: "monetary", Status: "open", Amount: &amount,
			},
			reason: SkipNotClosed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			store.SeedTreasury(1000)
			if tc.proposal != nil {
				store.SetProposal(*tc.proposal)
			}
			service := newService(store, 1000)

			outcome, err := service.PostLedgerEntry(context.Background(), "p")
			if err != nil {
				t.Fatalf("expected no-op, got error: %v", err)
			}
			if outcome.Posted {
				t.Fatalf("expected skip, got posted entry")
			}
			if outcome.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, outcome.Reason)
			}

			view, err := service.Treasury(context.Background())
			if err != nil {
				t.Fatalf("treasury read failed: %v", err)
			}
			if view.Balance != 1000 {
				t.Fatalf("expected untouched treasury, got %f", view.Balance)
			}
			if view.EntryCount != 0 {
				t.Fatalf("expected zero entries, got %d", view.EntryCount)
			}
		})
	}
}

func TestPostLedgerEntryMissingAmountIsFatal(t *testing.T) {
	store := memory.NewStore()
	store.SeedTreasury(1000)
	store.SetProposal(ports.ProposalProjection{
		ProposalID: "broken",
		Type:       "monetary",
		Status:     "closed",
		Amount:     nil,
	})
	service := newService(store, 1000)

	_, err := service.PostLedgerEntry(context.Background(), "broken")
	if !errors.Is(err, domainerrors.ErrAmountMissing) {
		t.Fatalf("expected ErrAmountMissing, got %v", err)
	}

	view, err := service.Treasury(context.Background())
	if err != nil {
		t.Fatalf("treasury read failed: %v", err)
	}
	if view.Balance != 1000 || view.EntryCount != 0 {
		t.Fatalf("expected treasury untouched after fatal validation error")
	}
}

func TestPostLedgerEntryMissingTreasuryIsFatal(t *testing.T) {
	store := memory.NewStore()
	store.SetProposal(closedMonetaryProposal("proposal-1", 100))
	service := newService(store, 0)

	_, err := service.PostLedgerEntry(context.Background(), "proposal-1")
	if !errors.Is(err, domainerrors.ErrTreasuryNotSeeded) {
		t.Fatalf("expected ErrTreasuryNotSeeded, got %v", err)
	}
}

func TestPostLedgerEntrySequenceReconciles(t *testing.T) {
	store := memory.NewStore()
	store.SeedTreasury(10000)
	store.SetNow(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	service := newService(store, 10000)

	amounts := []float64{500, 1200, 42.5}
	for i, amount := range amounts {
		id := []string{"a", "b", "c"}[i]
		store.SetProposal(closedMonetaryProposal(id, amount))
		if _, err := service.PostLedgerEntry(context.Background(), id); err != nil {
			t.Fatalf("posting %s failed: %v", id, err)
		}
	}

	view, err := service.Treasury(context.Background())
	if err != nil {
		t.Fatalf("treasury read failed: %v", err)
	}
	if !view.Reconciles() {
		t.Fatalf("expected reconciliation: seed %f + sum %f != balance %f",
			view.SeedValue, view.EntrySum, view.Balance)
	}
	if view.Balance != 10000-500-1200-42.5 {
		t.Fatalf("unexpected balance %f", view.Balance)
	}

	entries, err := service.ListEntries(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

type unavailableOutbox struct{}

func (unavailableOutbox) AppendOutbox(context.Context, ports.EventEnvelope) error {
	return errors.New("outbox unavailable")
}

func TestPostLedgerEntryReplayQueuesMissedOutboxEvent(t *testing.T) {
	store := memory.NewStore()
	store.SeedTreasury(100000)
	store.SetProposal(closedMonetaryProposal("proposal-x", 500))

	// The posting commits but the outbox append fails, leaving an entry on
	// the ledger with no queued event.
	broken := newService(store, 100000)
	broken.Outbox = unavailableOutbox{}
	if _, err := broken.PostLedgerEntry(context.Background(), "proposal-x"); err == nil {
		t.Fatalf("expected outbox failure to surface")
	}
	entries, err := store.ListEntries(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected committed entry to survive, got %d entries", len(entries))
	}
	if pending, _ := store.ListPendingOutbox(context.Background(), 10); len(pending) != 0 {
		t.Fatalf("expected no queued event after failed append, got %d", len(pending))
	}

	service := newService(store, 100000)
	replay, err := service.PostLedgerEntry(context.Background(), "proposal-x")
	if err != nil {
		t.Fatalf("replay post failed: %v", err)
	}
	if replay.Posted || replay.Reason != SkipAlreadyPosted {
		t.Fatalf("expected already_posted replay, got posted=%v reason=%q", replay.Posted, replay.Reason)
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending outbox failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected replay to queue the missed event, got %d", len(pending))
	}

	// Further replays see the queued event and do not duplicate it.
	if _, err := service.PostLedgerEntry(context.Background(), "proposal-x"); err != nil {
		t.Fatalf("second replay failed: %v", err)
	}
	if pending, _ := store.ListPendingOutbox(context.Background(), 10); len(pending) != 1 {
		t.Fatalf("expected a single queued event after repeated replays, got %d", len(pending))
	}
}
