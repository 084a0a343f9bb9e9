package memory

import (
	"context"
	"strings"
	"sync"

	"civitas/contexts/identity-access/signature-verifier/ports"
)

type Store struct {
	mu   sync.RWMutex
	keys map[string]ports.SigningKey
}

func NewStore() *Store {
	return &Store{keys: make(map[string]ports.SigningKey)}
}

func (s *Store) SetSigningKey(key ports.SigningKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[strings.TrimSpace(key.UserID)] = ports.SigningKey{
		UserID:    strings.TrimSpace(key.UserID),
		PublicKey: strings.TrimSpace(key.PublicKey),
	}
}

func (s *Store) GetSigningKey(_ context.Context, userID string) (ports.SigningKey, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[strings.TrimSpace(userID)]
	if !ok {
		return ports.SigningKey{}, false, nil
	}
	return key, true, nil
}

var _ ports.KeyReader = (*Store)(nil)
