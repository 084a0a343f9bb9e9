package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "civitas/contexts/member-experience/digest-service/application"
	"civitas/contexts/member-experience/digest-service/ports"
)

// OutboxRelay publishes persisted digest outbox records to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows, marking each row
// published only after the broker accepts it. Stops on first failure so the
// retry loop reprocesses the remainder.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("digest outbox list failed",
			"event", "digest_outbox_list_failed",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("digest outbox decode failed",
				"event", "digest_outbox_decode_failed",
				"module", "member-experience/digest-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("digest outbox publish failed",
				"event", "digest_outbox_publish_failed",
				"module", "member-experience/digest-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("digest outbox mark published failed",
				"event", "digest_outbox_mark_published_failed",
				"module", "member-experience/digest-service",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("digest outbox relay cycle completed",
		"event", "digest_outbox_relay_completed",
		"module", "member-experience/digest-service",
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}
