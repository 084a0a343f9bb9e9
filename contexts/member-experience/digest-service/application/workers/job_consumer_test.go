package workers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"civitas/contexts/member-experience/digest-service/adapters/memory"
	"civitas/contexts/member-experience/digest-service/application"
	"civitas/contexts/member-experience/digest-service/application/workers"
	"civitas/contexts/member-experience/digest-service/domain/entities"
	"civitas/contexts/member-experience/digest-service/ports"
)

func newConsumerFixture(t *testing.T) (workers.DigestJobConsumer, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.SetNow(now)
	store.SetUser(ports.UserProjection{
		UserID:               "user-1",
		DisplayName:          "Ada",
		DigestFrequencyHours: 24,
	})
	store.SetAgent(ports.AgentProjection{AgentID: "agent-1", UserID: "user-1"})
	store.AddVoteActivity("agent-1", entities.VoteActivity{
		ProposalID:    "prop-1",
		ProposalTitle: "Transit Expansion Phase 2",
		Value:         "approve",
		Confidence:    0.8,
		CastAt:        now.Add(-time.Hour),
	})
	service := application.Service{
		Users:      store,
		Agents:     store,
		Governance: store,
		Digests:    store,
		Renderer:   application.RenderDigest,
		Outbox:     store,
		Clock:      store,
		IDGen:      store,
	}
	consumer := workers.DigestJobConsumer{
		Dedup:   store,
		Service: service,
		Clock:   store,
	}
	return consumer, store
}

func jobEnvelope(eventID string, userID string) ports.EventEnvelope {
	data, _ := json.Marshal(map[string]string{"user_id": userID})
	return ports.EventEnvelope{
		EventID:   eventID,
		EventType: "digest.generate",
		Data:      data,
	}
}

func TestDigestJobRedeliverySkipped(t *testing.T) {
	consumer, store := newConsumerFixture(t)

	if err := consumer.Handle(context.Background(), jobEnvelope("evt-1", "user-1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Redelivery with a fresh event id but the same window must not stack a
	// second digest.
	if err := consumer.Handle(context.Background(), jobEnvelope("evt-2", "user-1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	digests, err := store.ListDigests(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("list digests: %v", err)
	}
	if len(digests) != 1 {
		t.Fatalf("expected one digest after redelivery, got %d", len(digests))
	}
}

func TestDigestJobMissingUserCompletesAsSkip(t *testing.T) {
	consumer, store := newConsumerFixture(t)
	if err := consumer.Handle(context.Background(), jobEnvelope("evt-1", "ghost")); err != nil {
		t.Fatalf("missing user must complete the delivery, got %v", err)
	}
	if digests, _ := store.ListDigests(context.Background(), "ghost", 10); len(digests) != 0 {
		t.Fatal("missing user must not produce a digest")
	}
}
