package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"civitas/contexts/member-experience/digest-service/application"
	domainerrors "civitas/contexts/member-experience/digest-service/domain/errors"
	"civitas/contexts/member-experience/digest-service/ports"
	httptransport "civitas/contexts/member-experience/digest-service/transport/http"
)

type Handler struct {
	Service   application.Service
	Publisher ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (h Handler) ListDigestsHandler(
	ctx context.Context,
	userID string,
	limit int,
) (httptransport.DigestsResponse, error) {
	digests, err := h.Service.ListDigests(ctx, userID, limit)
	if err != nil {
		return httptransport.DigestsResponse{}, err
	}
	items := make([]httptransport.DigestItem, 0, len(digests))
	for _, digest := range digests {
		items = append(items, httptransport.DigestItem{
			DigestID:    digest.DigestID,
			UserID:      digest.UserID,
			Content:     digest.Content,
			GeneratedAt: digest.GeneratedAt.UTC().Format(time.RFC3339),
		})
	}
	return httptransport.DigestsResponse{Items: items}, nil
}

// EnqueueDigestHandler publishes a digest.generate job for the user. The
// consumer's job key still dedupes rapid repeat requests inside one window.
func (h Handler) EnqueueDigestHandler(ctx context.Context, userID string) (httptransport.EnqueueDigestResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return httptransport.EnqueueDigestResponse{}, domainerrors.ErrInvalidInput
	}

	eventID, err := h.IDGen.NewID(ctx)
	if err != nil {
		return httptransport.EnqueueDigestResponse{}, err
	}
	data, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return httptransport.EnqueueDigestResponse{}, err
	}
	now := time.Now().UTC()
	if h.Clock != nil {
		now = h.Clock.Now().UTC()
	}
	err = h.Publisher.Publish(ctx, "digest.generate", ports.EventEnvelope{
		EventID:          eventID,
		EventType:        "digest.generate",
		OccurredAt:       now,
		SourceService:    "digest-service",
		SchemaVersion:    1,
		PartitionKeyPath: "user_id",
		PartitionKey:     userID,
		Data:             data,
	})
	if err != nil {
		return httptransport.EnqueueDigestResponse{}, err
	}
	return httptransport.EnqueueDigestResponse{
		Enqueued: true,
		UserID:   userID,
		EventID:  eventID,
	}, nil
}
