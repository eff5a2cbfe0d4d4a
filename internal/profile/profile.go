// Package profile holds the single server profile: URL plus credentials.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rainforce/smbclient/internal/constants"
	"github.com/rainforce/smbclient/internal/credentials"
)

// Profile is the current server URL and credentials.
type Profile struct {
	ServerURL string
	Username  string
	Password  string
}

// IsComplete reports whether all three fields are non-empty. An incomplete
// profile blocks browsing and transfers.
func (p Profile) IsComplete() bool {
	return p.ServerURL != "" && p.Username != "" && p.Password != ""
}

// Missing lists the names of the empty fields.
func (p Profile) Missing() []string {
	var missing []string
	if p.ServerURL == "" {
		missing = append(missing, "server URL")
	}
	if p.Username == "" {
		missing = append(missing, "username")
	}
	if p.Password == "" {
		missing = append(missing, "password")
	}
	return missing
}

// String never includes the password.
func (p Profile) String() string {
	pass := ""
	if p.Password != "" {
		pass = "****"
	}
	return fmt.Sprintf("Profile{url=%q user=%q password=%q}", p.ServerURL, p.Username, pass)
}

// Trimmed returns a copy with surrounding whitespace removed from the URL
// and username. Passwords are kept verbatim.
func (p Profile) Trimmed() Profile {
	return Profile{
		ServerURL: strings.TrimSpace(p.ServerURL),
		Username:  strings.TrimSpace(p.Username),
		Password:  p.Password,
	}
}

// Load reads the profile from store. Absent keys read as "".
func Load(store credentials.Store) (Profile, error) {
	var p Profile
	var errs []error
	for _, f := range fields(&p) {
		v, _, err := store.GetSecret(f.key)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", f.key, err))
			continue
		}
		*f.value = v
	}
	return p, errors.Join(errs...)
}

// Save writes all three fields. Every key is attempted even when one fails.
func Save(store credentials.Store, p Profile) error {
	var errs []error
	for _, f := range fields(&p) {
		if err := store.SetSecret(f.key, *f.value); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", f.key, err))
		}
	}
	return errors.Join(errs...)
}

// Clear overwrites all three fields with "".
func Clear(store credentials.Store) error {
	return Save(store, Profile{})
}

type field struct {
	key   string
	value *string
}

func fields(p *Profile) []field {
	return []field{
		{constants.KeyServerURL, &p.ServerURL},
		{constants.KeyUsername, &p.Username},
		{constants.KeyPassword, &p.Password},
	}
}
