package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
	domainerrors "civitas/contexts/civic-governance/veto-window-engine/domain/errors"
	"civitas/contexts/civic-governance/veto-window-engine/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type Store struct {
	mu sync.RWMutex

	votes       map[string]entities.Vote
	proposals   map[string]ports.ProposalProjection
	agents      map[string]ports.AgentProjection
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
	nowOverride *time.Time
}

func NewStore(seed []entities.Vote) *Store {
	votes := make(map[string]entities.Vote, len(seed))
	for _, vote := range seed {
		votes[vote.VoteID] = vote
	}
	return &Store{
		votes:       votes,
		proposals:   make(map[string]ports.ProposalProjection),
		agents:      make(map[string]ports.AgentProjection),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) SetProposal(proposal ports.ProposalProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[strings.TrimSpace(proposal.ProposalID)] = proposal
}

func (s *Store) SetAgent(agent ports.AgentProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[strings.TrimSpace(agent.AgentID)] = ports.AgentProjection{
		AgentID: strings.TrimSpace(agent.AgentID),
		UserID:  strings.TrimSpace(agent.UserID),
	}
}

func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	utc := now.UTC()
	s.nowOverride = &utc
}

func (s *Store) SaveVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[strings.TrimSpace(vote.VoteID)] = vote
	return nil
}

func (s *Store) GetVote(_ context.Context, voteID string) (entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return entities.Vote{}, domainerrors.ErrVoteNotFound
	}
	return vote, nil
}

func (s *Store) GetVoteByIdentity(
	_ context.Context,
	proposalID string,
	agentID string,
) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var match entities.Vote
	found := false
	for _, vote := range s.votes {
		if vote.ProposalID != strings.TrimSpace(proposalID) || vote.AgentID != strings.TrimSpace(agentID) {
			continue
		}
		if !found || vote.UpdatedAt.After(match.UpdatedAt) {
			match = vote
			found = true
		}
	}
	return match, found, nil
}

func (s *Store) ListVotesByAgentSince(_ context.Context, agentID string, since time.Time) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Vote, 0)
	for _, vote := range s.votes {
		if vote.AgentID != strings.TrimSpace(agentID) {
			continue
		}
		if vote.CreatedAt.Before(since.UTC()) {
			continue
		}
		items = append(items, vote)
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
) ([]entities.PendingVeto, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.PendingVeto, 0)
	for _, vote := range s.votes {
		if vote.AgentID != strings.TrimSpace(agentID) || vote.OverrideByUser {
			continue
		}
		proposal, ok := s.proposals[vote.ProposalID]
		if !ok || !strings.EqualFold(strings.TrimSpace(proposal.Status), "open") {
			continue
		}
		if proposal.VetoWindowEnd == nil {
			continue
		}
		deadline := proposal.VetoWindowEnd.UTC()
		if deadline.Before(now.UTC()) || deadline.After(until.UTC()) {
			continue
		}
		items = append(items, entities.PendingVeto{
			ProposalID:    proposal.ProposalID,
			Title:         proposal.Title,
			VetoWindowEnd: deadline,
			Vote:          vote,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].VetoWindowEnd.Before(items[j].VetoWindowEnd)
	})
	return items, nil
}

func (s *Store) GetProposal(_ context.Context, proposalID string) (ports.ProposalProjection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[strings.TrimSpace(proposalID)]
	if !ok {
		return ports.ProposalProjection{}, false, nil
	}
	return proposal, true, nil
}

func (s *Store) GetAgent(_ context.Context, agentID string) (ports.AgentProjection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[strings.TrimSpace(agentID)]
	if !ok {
		return ports.AgentProjection{}, false, nil
	}
	return agent, true, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.idempotency[strings.TrimSpace(key)]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.IsZero() && now.UTC().After(record.ExpiresAt.UTC()) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(record.Key)
	if existing, ok := s.idempotency[key]; ok {
		if existing.RequestHash != record.RequestHash || existing.VoteID != record.VoteID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = record
	return nil
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

var _ ports.VoteRepository = (*Store)(nil)
var _ ports.ProposalReader = (*Store)(nil)
var _ ports.AgentReader = (*Store)(nil)
var _ ports.IdempotencyStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
