package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AddressStore persists the last connected wallet address so a restart can
// recover it when the signer itself reports no active session. It is the
// service-side analogue of a cookie.
type AddressStore struct {
	path string
	mu   sync.Mutex
	data addressRecord
}

type addressRecord struct {
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAddressStore opens the store at path, loading any existing record.
func NewAddressStore(path string) (*AddressStore, error) {
	s := &AddressStore{path: path}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &s.data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Save records the address.
func (s *AddressStore) Save(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = addressRecord{Address: address, UpdatedAt: time.Now().UTC()}
	return s.persist()
}

// Load returns the stored address, if any.
func (s *AddressStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Address, s.data.Address != ""
}

// Clear forgets the stored address.
func (s *AddressStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = addressRecord{}
	return s.persist()
}

func (s *AddressStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, blob, 0o600)
}
