package encryption

import (
	"crypto/hkdf"
	"crypto/sha256"
	"fmt"
)

// DeriveKey derives a purpose-bound 32-byte key from masterKey using
// HKDF-SHA256. The same (masterKey, purpose) pair always yields the same key,
// and distinct purposes yield unrelated keys.
func DeriveKey(masterKey []byte, purpose string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	if purpose == "" {
		return nil, fmt.Errorf("purpose must not be empty")
	}

	// nil salt is valid per RFC 5869
	key, err := hkdf.Key(sha256.New, masterKey, nil, purpose, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key material: %w", err)
	}
	return key, nil
}
