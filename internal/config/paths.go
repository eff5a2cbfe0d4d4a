// Package config provides configuration management for smbclient.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rainforce/smbclient/internal/constants"
)

// ConfigDirectory returns the platform-appropriate config directory.
//
// Locations:
//   - Windows: %APPDATA%\smbclient
//   - Unix: ~/.config/smbclient (XDG standard)
func ConfigDirectory() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName)
		}
		// Fallback to USERPROFILE if APPDATA not set
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming", constants.AppName)
		}
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), constants.AppName)
		}
		return filepath.Join(homeDir, ".config", constants.AppName)
	}
	return filepath.Join(configDir, constants.AppName)
}

// EnsureConfigDirectory creates the config directory if it doesn't exist.
// Uses 0700 permissions because it holds the credential key.
func EnsureConfigDirectory() error {
	return os.MkdirAll(ConfigDirectory(), 0700)
}

// DefaultConfigFile returns the YAML config path used when --config is not given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDirectory(), "config.yaml")
}

// DefaultCredentialsFile returns the sealed credential store path.
func DefaultCredentialsFile() string {
	return filepath.Join(ConfigDirectory(), "credentials.json")
}

// DefaultKeyFile returns the path of the credential master key.
func DefaultKeyFile() string {
	return filepath.Join(ConfigDirectory(), "credentials.key")
}

// DefaultHistoryDB returns the transfer journal database path.
func DefaultHistoryDB() string {
	return filepath.Join(ConfigDirectory(), "history.db")
}
