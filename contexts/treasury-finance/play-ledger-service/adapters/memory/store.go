package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/domain/entities"
	domainerrors "civitas/contexts/treasury-finance/play-ledger-service/domain/errors"
	"civitas/contexts/treasury-finance/play-ledger-service/ports"

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

// Store is the in-memory adapter used for tests and local wiring. The mutex
// around PostEntry gives the same single-writer-per-instant guarantee the
// postgres row lock provides.
type Store struct {
	mu sync.RWMutex

	treasury    *entities.TreasuryConfig
	entries     map[string]entities.LedgerEntry
	proposals   map[string]ports.ProposalProjection
	outbox      map[string]outboxRecord
	eventDedup  map[string]dedupRecord
	nowOverride *time.Time
}

func NewStore() *Store {
	return &Store{
		entries:    make(map[string]entities.LedgerEntry),
		proposals:  make(map[string]ports.ProposalProjection),
		outbox:     make(map[string]outboxRecord),
		eventDedup: make(map[string]dedupRecord),
	}
}

func (s *Store) SeedTreasury(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treasury = &entities.TreasuryConfig{
		ID:        1,
		Balance:   balance,
		UpdatedAt: s.nowLocked(),
	}
}

func (s *Store) SetProposal(proposal ports.ProposalProjection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[strings.TrimSpace(proposal.ProposalID)] = proposal
}

func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	utc := now.UTC()
	s.nowOverride = &utc
}

func (s *Store) PostEntry(
	_ context.Context,
	proposalID string,
	amount float64,
	createdAt time.Time,
) (entities.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposalID = strings.TrimSpace(proposalID)
	for _, entry := range s.entries {
		if entry.ProposalID == proposalID {
			return entry, false, nil
		}
	}
	if s.treasury == nil {
		return entities.LedgerEntry{}, false, domainerrors.ErrTreasuryNotSeeded
	}

	newBalance := s.treasury.Balance - amount
	entry := entities.LedgerEntry{
		EntryID:      uuid.NewString(),
		ProposalID:   proposalID,
		Amount:       -amount,
		BalanceAfter: newBalance,
		CreatedAt:    createdAt.UTC(),
	}
	s.entries[entry.EntryID] = entry
	s.treasury.Balance = newBalance
	s.treasury.UpdatedAt = createdAt.UTC()
	return entry, true, nil
}

func (s *Store) GetEntryByProposal(_ context.Context, proposalID string) (entities.LedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.ProposalID == strings.TrimSpace(proposalID) {
			return entry, true, nil
		}
	}
	return entities.LedgerEntry{}, false, nil
}

func (s *Store) ListEntries(_ context.Context, limit int, offset int) ([]entities.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.LedgerEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		items = append(items, entry)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) GetTreasury(_ context.Context, seed float64) (entities.TreasuryView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.treasury == nil {
		return entities.TreasuryView{}, domainerrors.ErrTreasuryNotSeeded
	}
	sum := 0.0
	for _, entry := range s.entries {
		sum += entry.Amount
	}
	return entities.TreasuryView{
		Balance:    s.treasury.Balance,
		EntryCount: len(s.entries),
		EntrySum:   sum,
		SeedValue:  seed,
	}, nil
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

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(eventID)
	if existing, ok := s.eventDedup[key]; ok {
		if existing.payloadHash != payloadHash {
			return false, domainerrors.ErrConflict
		}
		return true, nil
	}
	s.eventDedup[key] = dedupRecord{
		payloadHash: payloadHash,
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowLocked()
}

func (s *Store) nowLocked() time.Time {
	if s.nowOverride != nil {
		return *s.nowOverride
	}
	return time.Now().UTC()
}

var _ ports.LedgerRepository = (*Store)(nil)
var _ ports.ProposalReader = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.EventDedupStore = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
