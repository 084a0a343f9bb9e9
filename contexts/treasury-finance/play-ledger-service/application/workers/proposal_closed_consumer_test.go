package workers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/adapters/memory"
	"civitas/contexts/treasury-finance/play-ledger-service/application"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"
)

func newConsumerFixture(t *testing.T) (ProposalClosedConsumer, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SeedTreasury(100000)
	store.SetNow(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	service := application.Service{
		Proposals:    store,
		Ledger:       store,
		Outbox:       store,
		Clock:        store,
		TreasurySeed: 100000,
	}
	consumer := ProposalClosedConsumer{
		Dedup:   store,
		Service: service,
		Clock:   store,
	}
	return consumer, store
}

func closedProposalEvent(eventID string, proposalID string) ports.EventEnvelope {
	data, _ := json.Marshal(map[string]string{"proposal_id": proposalID})
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     "proposal.closed",
		SourceService: "governance",
		SchemaVersion: 1,
		Data:          data,
	}
}

func TestProposalClosedRedeliveryDebitsOnce(t *testing.T) {
	consumer, store := newConsumerFixture(t)
	amount := 500.0
	store.SetProposal(ports.ProposalProjection{
		ProposalID: "proposal-1",
		Type:       "monetary",
		Status:     "closed",
		Amount:     &amount,
	})

	if err := consumer.handleProposalClosed(context.Background(), closedProposalEvent("evt-1", "proposal-1")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	// Same event id redelivered, and a distinct event for the same proposal.
	if err := consumer.handleProposalClosed(context.Background(), closedProposalEvent("evt-1", "proposal-1")); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if err := consumer.handleProposalClosed(context.Background(), closedProposalEvent("evt-2", "proposal-1")); err != nil {
		t.Fatalf("duplicate closure event failed: %v", err)
	}

	view, err := consumer.Service.Treasury(context.Background())
	if err != nil {
		t.Fatalf("treasury view failed: %v", err)
	}
	if view.Balance != 99500 {
		t.Fatalf("expected balance 99500 after single debit, got %f", view.Balance)
	}
	if view.EntryCount != 1 {
		t.Fatalf("expected exactly one entry, got %d", view.EntryCount)
	}
	if !view.Reconciles() {
		t.Fatalf("treasury does not reconcile: %+v", view)
	}
}

func TestProposalClosedRedeliveryRetriesAfterFailure(t *testing.T) {
	store := memory.NewStore()
	store.SetNow(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	service := application.Service{
		Proposals:    store,
		Ledger:       store,
		Outbox:       store,
		Clock:        store,
		TreasurySeed: 100000,
	}
	consumer := ProposalClosedConsumer{
		Dedup:   store,
		Service: service,
		Clock:   store,
	}
	amount := 500.0
	store.SetProposal(ports.ProposalProjection{
		ProposalID: "proposal-1",
		Type:       "monetary",
		Status:     "closed",
		Amount:     &amount,
	})

	// Treasury is not seeded yet, so the first delivery fails transiently.
	event := closedProposalEvent("evt-1", "proposal-1")
	if err := consumer.handleProposalClosed(context.Background(), event); err == nil {
		t.Fatalf("expected first delivery to fail before treasury seeding")
	}

	store.SeedTreasury(100000)
	if err := consumer.handleProposalClosed(context.Background(), event); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	view, err := consumer.Service.Treasury(context.Background())
	if err != nil {
		t.Fatalf("treasury view failed: %v", err)
	}
	if view.Balance != 99500 || view.EntryCount != 1 {
		t.Fatalf("expected the redelivery to post the debit, got %+v", view)
	}
}

func TestProposalClosedNonMonetarySkips(t *testing.T) {
	consumer, store := newConsumerFixture(t)
	store.SetProposal(ports.ProposalProjection{
		ProposalID: "proposal-poll",
		Type:       "poll",
		Status:     "closed",
	})

	if err := consumer.handleProposalClosed(context.Background(), closedProposalEvent("evt-1", "proposal-poll")); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	view, err := consumer.Service.Treasury(context.Background())
	if err != nil {
		t.Fatalf("treasury view failed: %v", err)
	}
	if view.EntryCount != 0 || view.Balance != 100000 {
		t.Fatalf("expected untouched treasury, got %+v", view)
	}
}
