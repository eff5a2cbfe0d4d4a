package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rainforce/smbclient/internal/constants"
)

func isolateConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolateConfigDir(t)

	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxConcurrent != constants.DefaultMaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.MaxConcurrent, constants.DefaultMaxConcurrent)
	}
	if cfg.DialTimeout != constants.DefaultDialTimeout {
		t.Errorf("DialTimeout = %s, want %s", cfg.DialTimeout, constants.DefaultDialTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.UseProxy {
		t.Error("UseProxy should default to false")
	}
	if filepath.Base(cfg.CredentialsFile) != "credentials.json" {
		t.Errorf("CredentialsFile = %q", cfg.CredentialsFile)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolateConfigDir(t)

	path := filepath.Join(dir, "custom.yaml")
	content := "max_concurrent: 2\ndial_timeout: 3s\nlog_level: debug\nhistory_db: \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	// Environment overrides the file.
	t.Setenv("SMBCLIENT_MAX_CONCURRENT", "8")

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8 (env)", cfg.MaxConcurrent)
	}
	if cfg.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout = %s, want 3s", cfg.DialTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.HistoryDB != "" {
		t.Errorf("HistoryDB = %q, want empty (journal disabled)", cfg.HistoryDB)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	dir := isolateConfigDir(t)

	if _, err := Load(NewViper(), filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		MaxConcurrent:   4,
		DialTimeout:     time.Second,
		CredentialsFile: "c.json",
		KeyFile:         "c.key",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero workers", func(c *Config) { c.MaxConcurrent = 0 }, true},
		{"too many workers", func(c *Config) { c.MaxConcurrent = constants.MaxMaxConcurrent + 1 }, true},
		{"zero timeout", func(c *Config) { c.DialTimeout = 0 }, true},
		{"no key file", func(c *Config) { c.KeyFile = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteReadSecureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secret.json")

	if err := WriteSecureFile(path, []byte("first")); err != nil {
		t.Fatalf("WriteSecureFile() error = %v", err)
	}
	if err := WriteSecureFile(path, []byte("second")); err != nil {
		t.Fatalf("WriteSecureFile() overwrite error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}

	data, err := ReadSecureFile(path)
	if err != nil {
		t.Fatalf("ReadSecureFile() error = %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestReadSecureFileMissing(t *testing.T) {
	_, err := ReadSecureFile(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
