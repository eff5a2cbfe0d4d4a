// Package credentials persists the profile secrets. The core only relies on
// per-key get/set; confidentiality at rest is the FileStore's job.
package credentials

import (
	"sync"
)

// Store is the credential persistence capability.
type Store interface {
	// GetSecret returns the value for key. ok is false when the key was
	// never written.
	GetSecret(key string) (value string, ok bool, err error)
	// SetSecret persists value under key. Each write is atomic.
	SetSecret(key, value string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
	err     error // returned by every call when set
	writes  int
}

// NewMemoryStore creates an empty MemoryStore, optionally seeded.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	s := &MemoryStore{secrets: make(map[string]string, len(seed))}
	for k, v := range seed {
		s.secrets[k] = v
	}
	return s
}

// GetSecret implements Store.
func (s *MemoryStore) GetSecret(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.secrets[key]
	return v, ok, nil
}

// SetSecret implements Store.
func (s *MemoryStore) SetSecret(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.secrets[key] = value
	s.writes++
	return nil
}

// SetError makes every subsequent call fail with err (nil restores).
func (s *MemoryStore) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Writes returns the number of successful SetSecret calls.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
