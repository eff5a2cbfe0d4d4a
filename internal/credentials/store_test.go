package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	keyPath := filepath.Join(dir, "credentials.key")

	store, err := OpenFileStore(path, keyPath)
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}

	if _, ok, err := store.GetSecret("password"); err != nil || ok {
		t.Fatalf("GetSecret on empty store = ok %v, err %v", ok, err)
	}

	if err := store.SetSecret("serverUrl", "smb://host/share"); err != nil {
		t.Fatalf("SetSecret() error = %v", err)
	}
	if err := store.SetSecret("password", "hunter2"); err != nil {
		t.Fatalf("SetSecret() error = %v", err)
	}

	// Reopen with the same key file.
	reopened, err := OpenFileStore(path, keyPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	got, ok, err := reopened.GetSecret("password")
	if err != nil || !ok || got != "hunter2" {
		t.Errorf("GetSecret(password) = %q, %v, %v", got, ok, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "hunter2") || strings.Contains(string(raw), "smb://host") {
		t.Error("credential file contains plaintext")
	}
}

func TestFileStoreKeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "sub", "credentials.key")

	if _, err := OpenFileStore(filepath.Join(dir, "c.json"), keyPath); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file permissions = %04o, want 0600", perm)
	}
}

func TestFileStoreWrongKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	store, err := OpenFileStore(path, filepath.Join(dir, "a.key"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetSecret("username", "u"); err != nil {
		t.Fatal(err)
	}

	other, err := OpenFileStore(path, filepath.Join(dir, "b.key"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := other.GetSecret("username"); err == nil {
		t.Error("expected an error reading with a different key")
	}
}

func TestFileStoreInvalidKeyFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "bad.key")
	if err := os.WriteFile(keyPath, []byte("not base64!!"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileStore(filepath.Join(dir, "c.json"), keyPath); err == nil {
		t.Error("expected an error for an invalid key file")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(map[string]string{"username": "u"})

	if v, ok, _ := store.GetSecret("username"); !ok || v != "u" {
		t.Errorf("seeded value = %q, %v", v, ok)
	}
	if _, ok, _ := store.GetSecret("password"); ok {
		t.Error("unset key should report ok=false")
	}

	if err := store.SetSecret("password", "p"); err != nil {
		t.Fatal(err)
	}
	if store.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", store.Writes())
	}

	boom := errors.New("keyring locked")
	store.SetError(boom)
	if _, _, err := store.GetSecret("username"); !errors.Is(err, boom) {
		t.Errorf("GetSecret error = %v, want %v", err, boom)
	}
	if err := store.SetSecret("username", "x"); !errors.Is(err, boom) {
		t.Errorf("SetSecret error = %v, want %v", err, boom)
	}
}
