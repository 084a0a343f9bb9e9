package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "civitas/contexts/member-experience/digest-service/application"
	"civitas/contexts/member-experience/digest-service/ports"
)

const (
	digestGenerateTopic = "digest.generate"
	defaultDigestCG     = "digest-generate-cg"
)

// DigestJobConsumer processes digest.generate jobs from the bus. The broker
// is at-least-once, so each delivery is gated by a deterministic job key
// (user plus window-start hour) through the dedup reserve: a redelivered job
// inside the same hour is a skip, not a second digest.
type DigestJobConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Service       application.Service
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

func (c DigestJobConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("digest job consumer disabled by feature flag",
			"event", "digest_job_consumer_disabled",
			"module", "member-experience/digest-service",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultDigestCG
	}
	if err := c.Subscriber.Subscribe(ctx, digestGenerateTopic, group, c.Handle); err != nil {
		logger.Error("digest job consumer subscribe failed",
			"event", "digest_job_consumer_subscribe_failed",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"topic", digestGenerateTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("digest job consumer subscription active",
		"event", "digest_job_consumer_started",
		"module", "member-experience/digest-service",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

// Handle runs one digest job. Errors propagate to the bus layer so the job is
// redelivered; structured skips complete the delivery.
func (c DigestJobConsumer) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("digest job payload decode failed",
			"event", "digest_job_decode_failed",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	userID := strings.TrimSpace(payload.UserID)

	windowStart, err := c.Service.WindowStart(ctx, userID)
	if err != nil {
		return err
	}
	jobKey := application.JobKey(userID, windowStart)
	if duplicate, err := c.reserveJob(ctx, jobKey, event); err != nil {
		return err
	} else if duplicate {
		logger.Info("digest job redelivery skipped",
			"event", "digest_job_duplicate_skipped",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"event_id", event.EventID,
			"user_id", userID,
			"job_key", jobKey,
		)
		return nil
	}

	result, err := c.Service.GenerateDigest(ctx, userID)
	if err != nil {
		logger.Error("digest job failed",
			"event", "digest_job_failed",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"event_id", event.EventID,
			"user_id", userID,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("digest job handled",
		"event", "digest_job_handled",
		"module", "member-experience/digest-service",
		"layer", "worker",
		"event_id", event.EventID,
		"user_id", userID,
		"status", result.Status,
		"reason", result.Reason,
	)
	return nil
}

func (c DigestJobConsumer) reserveJob(ctx context.Context, jobKey string, event ports.EventEnvelope) (bool, error) {
	if c.Dedup == nil {
		return false, nil
	}
	ttl := c.DedupTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	sum := sha256.Sum256(event.Data)
	return c.Dedup.ReserveEvent(ctx, jobKey, hex.EncodeToString(sum[:]), now.Add(ttl))
}
