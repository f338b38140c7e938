package sim

import (
	"sync"

	"github.com/muurk/simplelink/internal/transport"
)

// Profile is a stored network the chip reconnects to under a profile
// policy.
type Profile struct {
	SSID     string             `json:"ssid"`
	Key      string             `json:"key,omitempty"`
	Security transport.Security `json:"security"`
}

// Store is the chip's non-volatile memory.
type Store interface {
	Profiles() ([]Profile, error)
	SaveProfiles(profiles []Profile) error
	AESKey() ([]byte, error)
	SaveAESKey(key []byte) error
	Close() error
}

// MemStore is a Store that lives as long as the process.
type MemStore struct {
	mu       sync.Mutex
	profiles []Profile
	aesKey   []byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Profiles returns a copy of the stored profiles.
func (s *MemStore) Profiles() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Profile(nil), s.profiles...), nil
}

// SaveProfiles replaces the stored profiles.
func (s *MemStore) SaveProfiles(profiles []Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append([]Profile(nil), profiles...)
	return nil
}

// AESKey returns the stored key, or nil.
func (s *MemStore) AESKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.aesKey...), nil
}

// SaveAESKey stores key.
func (s *MemStore) SaveAESKey(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aesKey = append([]byte(nil), key...)
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}
