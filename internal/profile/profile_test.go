package profile

import (
	"errors"
	"strings"
	"testing"

	"github.com/rainforce/smbclient/internal/constants"
	"github.com/rainforce/smbclient/internal/credentials"
)

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    bool
		missing int
	}{
		{"complete", Profile{"smb://host/share", "u", "p"}, true, 0},
		{"no url", Profile{"", "u", "p"}, false, 1},
		{"no user", Profile{"smb://host/share", "", "p"}, false, 1},
		{"no password", Profile{"smb://host/share", "u", ""}, false, 1},
		{"empty", Profile{}, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.IsComplete(); got != tt.want {
				t.Errorf("IsComplete() = %v, want %v", got, tt.want)
			}
			if got := len(tt.profile.Missing()); got != tt.missing {
				t.Errorf("len(Missing()) = %d, want %d", got, tt.missing)
			}
		})
	}
}

func TestStringRedactsPassword(t *testing.T) {
	s := Profile{"smb://host/share", "u", "hunter2"}.String()
	if strings.Contains(s, "hunter2") {
		t.Errorf("String() leaked the password: %s", s)
	}
	if !strings.Contains(s, "smb://host/share") {
		t.Errorf("String() should include the URL: %s", s)
	}
}

func TestLoadSaveClear(t *testing.T) {
	store := credentials.NewMemoryStore(nil)

	p, err := Load(store)
	if err != nil {
		t.Fatalf("Load() on empty store error = %v", err)
	}
	if p != (Profile{}) {
		t.Errorf("Load() on empty store = %v, want zero profile", p)
	}

	want := Profile{"smb://host/share", "u", "p"}
	if err := Save(store, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if v, _, _ := store.GetSecret(constants.KeyServerURL); v != want.ServerURL {
		t.Errorf("stored %s = %q", constants.KeyServerURL, v)
	}

	got, err := Load(store)
	if err != nil || got != want {
		t.Errorf("Load() = %v, %v; want %v", got, err, want)
	}

	if err := Clear(store); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ = Load(store)
	if got.IsComplete() || got != (Profile{}) {
		t.Errorf("after Clear, Load() = %v", got)
	}
}

func TestStoreErrorsSurface(t *testing.T) {
	store := credentials.NewMemoryStore(nil)
	boom := errors.New("locked")
	store.SetError(boom)

	if _, err := Load(store); !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want %v", err, boom)
	}
	if err := Save(store, Profile{"a", "b", "c"}); !errors.Is(err, boom) {
		t.Errorf("Save() error = %v, want %v", err, boom)
	}
}

func TestTrimmed(t *testing.T) {
	p := Profile{"  smb://host/share\n", " u ", " p "}.Trimmed()
	if p.ServerURL != "smb://host/share" || p.Username != "u" || p.Password != " p " {
		t.Errorf("Trimmed() = %#v", p)
	}
}
