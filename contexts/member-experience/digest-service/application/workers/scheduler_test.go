package workers_test

import (
	"context"
	"testing"
	"time"

	"civitas/contexts/member-experience/digest-service/adapters/memory"
	"civitas/contexts/member-experience/digest-service/application/workers"
	"civitas/contexts/member-experience/digest-service/domain/entities"
	"civitas/contexts/member-experience/digest-service/ports"
)

type capturePublisher struct {
	topics []string
	events []ports.EventEnvelope
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestSchedulerEnqueuesOnlyDueUsers(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.SetNow(now)
	store.SetUser(ports.UserProjection{UserID: "user-due", DigestFrequencyHours: 24})
	store.SetUser(ports.UserProjection{UserID: "user-fresh", DigestFrequencyHours: 24})
	store.SetUser(ports.UserProjection{UserID: "user-never"})

	_ = store.SaveDigest(context.Background(), entities.Digest{
		DigestID:    "d1",
		UserID:      "user-due",
		Content:     "old digest",
		GeneratedAt: now.Add(-25 * time.Hour),
	})
	_ = store.SaveDigest(context.Background(), entities.Digest{
		DigestID:    "d2",
		UserID:      "user-fresh",
		Content:     "recent digest",
		GeneratedAt: now.Add(-time.Hour),
	})

	publisher := &capturePublisher{}
	scheduler := workers.DigestScheduler{
		Users:     store,
		Digests:   store,
		Publisher: publisher,
		Clock:     store,
		IDGen:     store,
	}
	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(publisher.events) != 2 {
		t.Fatalf("expected jobs for user-due and user-never, got %d", len(publisher.events))
	}
	enqueued := map[string]bool{}
	for i, event := range publisher.events {
		if publisher.topics[i] != "digest.generate" {
			t.Fatalf("wrong topic %q", publisher.topics[i])
		}
		enqueued[event.PartitionKey] = true
	}
	if !enqueued["user-due"] || !enqueued["user-never"] {
		t.Fatalf("wrong users enqueued: %v", enqueued)
	}
	if enqueued["user-fresh"] {
		t.Fatal("fresh user must not be enqueued")
	}
}

func TestOutboxRelayPublishesThenMarks(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.SetNow(now)
	if err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
		EventID:      "evt-1",
		EventType:    "digest.generated",
		PartitionKey: "user-1",
		OccurredAt:   now,
	}); err != nil {
		t.Fatalf("append outbox: %v", err)
	}

	publisher := &capturePublisher{}
	relay := workers.OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     store,
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventID != "evt-1" {
		t.Fatalf("expected the pending record published, got %+v", publisher.events)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatal("published record must be marked and leave the pending set")
	}

	// Second cycle has nothing to publish.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatal("relay republished an already-marked record")
	}
}
