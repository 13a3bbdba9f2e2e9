package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AlexZinkM/relay-wallet/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileStore keeps all vault entries in one JSON file
type FileStore struct {
	mu      sync.Mutex
	path    string
	network string
}

// NewFileStore creates a FileStore backed by path. The file is created on first write.
func NewFileStore(path, network string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("vault file path cannot be empty")
	}
	if filepath.Ext(path) != ".json" {
		return nil, errors.New("vault file must have .json extension")
	}
	return &FileStore{path: path, network: network}, nil
}

func (s *FileStore) Get(_ context.Context, walletID string) (model.VaultEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return model.VaultEntry{}, err
	}
	entry, ok := file.Entries[walletID]
	if !ok {
		return model.VaultEntry{}, ErrNoVaultEntry
	}
	return entry, nil
}

func (s *FileStore) Put(_ context.Context, walletID string, entry model.VaultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	file.Entries[walletID] = entry
	return s.save(file)
}

func (s *FileStore) Delete(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := file.Entries[walletID]; !ok {
		return nil
	}
	delete(file.Entries, walletID)
	return s.save(file)
}

func (s *FileStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove vault file: %w", err)
	}
	return nil
}

// load reads the vault file. A missing or empty file is an empty vault.
func (s *FileStore) load() (*model.VaultFile, error) {
	file := &model.VaultFile{Network: s.network, Entries: make(map[string]model.VaultEntry)}

	fileData, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Skip UTF-8 BOM if present
	fileData = bytes.TrimPrefix(fileData, utf8BOM)
	if len(bytes.TrimSpace(fileData)) == 0 {
		return file, nil
	}

	if err := json.Unmarshal(fileData, file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vault file: %w", err)
	}
	if file.Entries == nil {
		file.Entries = make(map[string]model.VaultEntry)
	}
	if s.network != "" && file.Network != "" && file.Network != s.network {
		return nil, fmt.Errorf("vault file belongs to network %q, expected %q", file.Network, s.network)
	}
	return file, nil
}

// save writes the vault atomically with 0600 permissions
func (s *FileStore) save(file *model.VaultFile) error {
	file.Network = s.network

	fileData, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal vault file: %w", err)
	}

	// Add UTF-8 BOM for proper display in Windows
	fileDataWithBOM := append(append([]byte{}, utf8BOM...), fileData...)

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, fileDataWithBOM, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace vault file: %w", err)
	}
	return nil
}
