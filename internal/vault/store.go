package vault

import (
	"context"
	"errors"
	"sync"

	"github.com/AlexZinkM/relay-wallet/internal/model"
)

// ErrNoVaultEntry is returned when a wallet has no durable vault entry
var ErrNoVaultEntry = errors.New("no vault entry for wallet")

// DurableStore persists sealed vault entries keyed by wallet id
type DurableStore interface {
	Get(ctx context.Context, walletID string) (model.VaultEntry, error)
	Put(ctx context.Context, walletID string, entry model.VaultEntry) error
	Delete(ctx context.Context, walletID string) error
	DeleteAll(ctx context.Context) error
}

// MemoryStore keeps vault entries in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.VaultEntry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.VaultEntry)}
}

func (s *MemoryStore) Get(_ context.Context, walletID string) (model.VaultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[walletID]
	if !ok {
		return model.VaultEntry{}, ErrNoVaultEntry
	}
	return entry, nil
}

func (s *MemoryStore) Put(_ context.Context, walletID string, entry model.VaultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[walletID] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, walletID)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	return nil
}
