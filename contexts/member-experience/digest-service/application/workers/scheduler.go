package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "civitas/contexts/member-experience/digest-service/application"
	"civitas/contexts/member-experience/digest-service/ports"
)

// DigestScheduler publishes digest.generate jobs for users whose newest
// digest is older than their configured frequency. The bus is the
// at-least-once boundary; duplicate publishes are absorbed by the consumer's
// job-key dedup.
type DigestScheduler struct {
	Users     ports.UserReader
	Digests   ports.DigestRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Disabled  bool
	Logger    *slog.Logger
}

// RunOnce scans all users and enqueues jobs for those due a digest. Failures
// propagate so the worker loop retries the whole scan next tick.
func (s DigestScheduler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	if s.Disabled {
		return nil
	}

	users, err := s.Users.ListUsers(ctx)
	if err != nil {
		logger.Error("digest scheduler user scan failed",
			"event", "digest_scheduler_scan_failed",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := s.now()
	enqueued := 0
	for _, user := range users {
		due, err := s.userIsDue(ctx, user, now)
		if err != nil {
			return err
		}
		if !due {
			continue
		}
		if err := s.publishJob(ctx, user.UserID, now); err != nil {
			logger.Error("digest job publish failed",
				"event", "digest_scheduler_publish_failed",
				"module", "member-experience/digest-service",
				"layer", "worker",
				"user_id", user.UserID,
				"error", err.Error(),
			)
			return err
		}
		enqueued++
	}

	if enqueued > 0 {
		logger.Info("digest jobs enqueued",
			"event", "digest_scheduler_enqueued",
			"module", "member-experience/digest-service",
			"layer", "worker",
			"enqueued", enqueued,
			"scanned", len(users),
		)
	}
	return nil
}

func (s DigestScheduler) userIsDue(ctx context.Context, user ports.UserProjection, now time.Time) (bool, error) {
	frequency := time.Duration(user.DigestFrequencyHours) * time.Hour
	if frequency <= 0 {
		frequency = 24 * time.Hour
	}
	latest, found, err := s.Digests.LatestDigest(ctx, user.UserID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return now.Sub(latest.GeneratedAt.UTC()) >= frequency, nil
}

func (s DigestScheduler) publishJob(ctx context.Context, userID string, now time.Time) error {
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return err
	}
	return s.Publisher.Publish(ctx, digestGenerateTopic, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        digestGenerateTopic,
		OccurredAt:       now,
		SourceService:    "digest-service",
		SchemaVersion:    1,
		PartitionKeyPath: "user_id",
		PartitionKey:     userID,
		Data:             data,
	})
}

func (s DigestScheduler) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
