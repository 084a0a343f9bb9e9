package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"civitas/contexts/member-experience/digest-service/domain/entities"
	domainerrors "civitas/contexts/member-experience/digest-service/domain/errors"
	"civitas/contexts/member-experience/digest-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

// Store backs every digest port in memory for tests and local wiring,
// including the cross-context governance reads.
type Store struct {
	mu sync.RWMutex

	users        map[string]ports.UserProjection
	agents       map[string]ports.AgentProjection
	digests      map[string]entities.Digest
	votes        []entities.VoteActivity
	voteAgents   []string
	proposals    []entities.ProposalActivity
	pendingVetos map[string][]entities.VetoAlert
	dedup        map[string]dedupRecord
	outbox       map[string]outboxRecord
	nowOverride  *time.Time
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]ports.UserProjection),
		agents:       make(map[string]ports.AgentProjection),
		digests:      make(map[string]entities.Digest),
		pendingVetos: make(map[string][]entities.VetoAlert),
		dedup:        make(map[string]dedupRecord),
		outbox:       make(map[string]outboxRecord),
	}
}

func (s *Store) SetUser(user ports.UserProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.TrimSpace(user.UserID)] = user
}

func (s *Store) SetAgent(agent ports.AgentProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[strings.TrimSpace(agent.UserID)] = agent
}

func (s *Store) AddVoteActivity(agentID string, vote entities.VoteActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, vote)
	s.voteAgents = append(s.voteAgents, strings.TrimSpace(agentID))
}

func (s *Store) AddProposalActivity(proposal entities.ProposalActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = append(s.proposals, proposal)
}

func (s *Store) AddPendingVeto(agentID string, alert entities.VetoAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(agentID)
	s.pendingVetos[key] = append(s.pendingVetos[key], alert)
}

func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	utc := now.UTC()
	s.nowOverride = &utc
}

func (s *Store) GetUser(_ context.Context, userID string) (ports.UserProjection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return ports.UserProjection{}, false, nil
	}
	return user, true, nil
}

func (s *Store) ListUsers(_ context.Context) ([]ports.UserProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ports.UserProjection, 0, len(s.users))
	for _, user := range s.users {
		items = append(items, user)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UserID < items[j].UserID
	})
	return items, nil
}

func (s *Store) GetAgentByUser(_ context.Context, userID string) (ports.AgentProjection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[strings.TrimSpace(userID)]
	if !ok {
		return ports.AgentProjection{}, false, nil
	}
	return agent, true, nil
}

func (s *Store) ListAgentVotes(
	_ context.Context,
	agentID string,
	from time.Time,
	to time.Time,
) ([]entities.VoteActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VoteActivity, 0)
	for i, vote := range s.votes {
		if s.voteAgents[i] != strings.TrimSpace(agentID) {
			continue
		}
		castAt := vote.CastAt.UTC()
		if castAt.Before(from.UTC()) || castAt.After(to.UTC()) {
			continue
		}
		items = append(items, vote)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CastAt.After(items[j].CastAt)
	})
	return items, nil
}

func (s *Store) ListProposalsCreated(
	_ context.Context,
	from time.Time,
	to time.Time,
) ([]entities.ProposalActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.ProposalActivity, 0)
	for _, proposal := range s.proposals {
		createdAt := proposal.CreatedAt.UTC()
		if createdAt.Before(from.UTC()) || createdAt.After(to.UTC()) {
			continue
		}
		items = append(items, proposal)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) ListPendingVetoes(
	_ context.Context,
	agentID string,
	now time.Time,
	until time.Time,
) ([]entities.VetoAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VetoAlert, 0)
	for _, alert := range s.pendingVetos[strings.TrimSpace(agentID)] {
		deadline := alert.VetoWindowEnd.UTC()
		if deadline.Before(now.UTC()) || deadline.After(until.UTC()) {
			continue
		}
		items = append(items, alert)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].VetoWindowEnd.Before(items[j].VetoWindowEnd)
	})
	return items, nil
}

func (s *Store) SaveDigest(_ context.Context, digest entities.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[strings.TrimSpace(digest.DigestID)] = digest
	return nil
}

func (s *Store) ListDigests(_ context.Context, userID string, limit int) ([]entities.Digest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Digest, 0)
	for _, digest := range s.digests {
		if digest.UserID != strings.TrimSpace(userID) {
			continue
		}
		items = append(items, digest)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].GeneratedAt.After(items[j].GeneratedAt)
	})
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) LatestDigest(_ context.Context, userID string) (entities.Digest, bool, error) {
	digests, err := s.ListDigests(context.Background(), userID, 1)
	if err != nil {
		return entities.Digest{}, false, err
	}
	if len(digests) == 0 {
		return entities.Digest{}, false, nil
	}
	return digests[0], true, nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(eventID)
	if existing, ok := s.dedup[key]; ok {
		if existing.payloadHash != strings.TrimSpace(payloadHash) {
			return false, domainerrors.ErrConflict
		}
		return true, nil
	}
	s.dedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, record := range s.outbox {
		if record.published {
			continue
		}
		items = append(items, record.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	record.published = true
	s.outbox[strings.TrimSpace(outboxID)] = record
	return nil
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nowOverride != nil {
		return *s.nowOverride
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.UserReader = (*Store)(nil)
var _ ports.AgentReader = (*Store)(nil)
var _ ports.GovernanceReader = (*Store)(nil)
var _ ports.DigestRepository = (*Store)(nil)
var _ ports.EventDedupStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
