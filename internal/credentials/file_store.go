package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rainforce/smbclient/internal/config"
	encryption "github.com/rainforce/smbclient/internal/crypto"
)

// keyPurpose binds the derived sealing key to this store.
const keyPurpose = "smbclient credential store v1"

// FileStore keeps secrets in a JSON file of AES-256-GCM sealed values.
// The master key lives in a separate 0600 file; each value is sealed with
// its key name as additional data so entries cannot be swapped.
type FileStore struct {
	path string
	key  []byte // derived sealing key
	mu   sync.Mutex
}

// OpenFileStore opens (or initializes) a store at path using the master key
// in keyPath. A missing key file is generated.
func OpenFileStore(path, keyPath string) (*FileStore, error) {
	master, err := loadOrCreateMasterKey(keyPath)
	if err != nil {
		return nil, err
	}
	key, err := encryption.DeriveKey(master, keyPurpose)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, key: key}, nil
}

func loadOrCreateMasterKey(keyPath string) ([]byte, error) {
	data, err := config.ReadSecureFile(keyPath)
	if err == nil {
		master, err := encryption.DecodeBase64(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid key file %s: %w", keyPath, err)
		}
		if len(master) != encryption.KeySize {
			return nil, fmt.Errorf("invalid key file %s: expected %d bytes, got %d", keyPath, encryption.KeySize, len(master))
		}
		return master, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	master, err := encryption.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := config.WriteSecureFile(keyPath, []byte(encryption.EncodeBase64(master)+"\n")); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return master, nil
}

// readAll loads the sealed map. A missing file is an empty store.
func (s *FileStore) readAll() (map[string]string, error) {
	sealed := make(map[string]string)
	data, err := config.ReadSecureFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sealed, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return sealed, nil
}

// GetSecret implements Store.
func (s *FileStore) GetSecret(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.readAll()
	if err != nil {
		return "", false, err
	}
	encoded, ok := sealed[key]
	if !ok {
		return "", false, nil
	}

	raw, err := encryption.DecodeBase64(encoded)
	if err != nil {
		return "", false, fmt.Errorf("corrupt entry %q: %w", key, err)
	}
	plain, err := encryption.Open(s.key, raw, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("entry %q: %w", key, err)
	}
	return string(plain), true, nil
}

// SetSecret implements Store. The whole file is rewritten atomically.
func (s *FileStore) SetSecret(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.readAll()
	if err != nil {
		return err
	}

	raw, err := encryption.Seal(s.key, []byte(value), []byte(key))
	if err != nil {
		return err
	}
	sealed[key] = encryption.EncodeBase64(raw)

	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}
	return config.WriteSecureFile(s.path, data)
}
