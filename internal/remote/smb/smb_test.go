package smb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/rainforce/smbclient/internal/errkind"
)

func TestSplitDomain(t *testing.T) {
	tests := []struct {
		in         string
		wantDomain string
		wantUser   string
	}{
		{`CORP\alice`, "CORP", "alice"},
		{"bob@corp.example", "corp.example", "bob"},
		{"carol", "", "carol"},
	}
	for _, tt := range tests {
		d, u := splitDomain(tt.in)
		if d != tt.wantDomain || u != tt.wantUser {
			t.Errorf("splitDomain(%q) = (%q, %q), want (%q, %q)", tt.in, d, u, tt.wantDomain, tt.wantUser)
		}
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback errkind.Kind
		want     errkind.Kind
		notFound bool
	}{
		{"not found status", &smb2.ResponseError{Code: statusObjectNameNotFound}, errkind.RemoteUnavailable, errkind.RemoteUnavailable, true},
		{"bad share", fmt.Errorf("mount: %w", &smb2.ResponseError{Code: statusBadNetworkName}), errkind.RemoteUnavailable, errkind.RemoteUnavailable, true},
		{"collision", &smb2.ResponseError{Code: statusObjectNameCollision}, errkind.IOFailure, errkind.AlreadyExists, false},
		{"other status", &smb2.ResponseError{Code: 0xC0000022}, errkind.RemoteUnavailable, errkind.RemoteUnavailable, false},
		{"fs not exist", &fs.PathError{Op: "stat", Path: "x", Err: fs.ErrNotExist}, errkind.RemoteUnavailable, errkind.RemoteUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapError(tt.err)
			if got := errkind.Categorize(mapped, tt.fallback); got != tt.want {
				t.Errorf("Categorize(mapError(%v)) = %v, want %v", tt.err, got, tt.want)
			}
			if errors.Is(mapped, errkind.ErrNotFound) != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v", !tt.notFound, tt.notFound)
			}
			if !errors.Is(mapped, tt.err) {
				t.Error("mapped error should keep the original in its chain")
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestOpenSessionMalformedURL(t *testing.T) {
	svc := New(Options{DialTimeout: time.Second})
	_, err := svc.OpenSession(context.Background(), "ftp://host/share", "u", "p")
	if errkind.Categorize(err, errkind.RemoteUnavailable) != errkind.MalformedAddress {
		t.Errorf("OpenSession error = %v, want MalformedAddress", err)
	}
}

func TestOpenSessionUnreachable(t *testing.T) {
	svc := New(Options{DialTimeout: 200 * time.Millisecond})
	// Port 1 on loopback is closed on any sane test host.
	_, err := svc.OpenSession(context.Background(), "smb://127.0.0.1:1/share", "u", "p")
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if got := errkind.Categorize(err, errkind.RemoteUnavailable); got != errkind.RemoteUnavailable {
		t.Errorf("Categorize = %v, want RemoteUnavailable", got)
	}
}
