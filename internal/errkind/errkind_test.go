package errkind

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"testing"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback Kind
		want     Kind
	}{
		{"nil", nil, RemoteUnavailable, None},
		{"categorized passes through", New(TargetNotWritable, "download", "a.txt", nil), IOFailure, TargetNotWritable},
		{"wrapped categorized", fmt.Errorf("outer: %w", New(AlreadyExists, "upload", "b", nil)), RemoteUnavailable, AlreadyExists},
		{"malformed sentinel", fmt.Errorf("parse: %w", ErrMalformedAddress), RemoteUnavailable, MalformedAddress},
		{"url error", &url.Error{Op: "parse", URL: "::", Err: errors.New("missing scheme")}, RemoteUnavailable, MalformedAddress},
		{"dns not found", &net.DNSError{Err: "no such host", Name: "nohost", IsNotFound: true}, RemoteUnavailable, MalformedAddress},
		{"exists", fmt.Errorf("create: %w", fs.ErrExist), IOFailure, AlreadyExists},
		{"protocol", fmt.Errorf("negotiate: %w", ErrProtocol), RemoteUnavailable, RemoteUnavailable},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, RemoteUnavailable, RemoteUnavailable},
		{"net error during copy", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}, IOFailure, IOFailure},
		{"string network indicator", errors.New("Logon failure: unknown user name"), RemoteUnavailable, RemoteUnavailable},
		{"deadline", context.DeadlineExceeded, RemoteUnavailable, RemoteUnavailable},
		{"unknown uses fallback", errors.New("boom"), IOFailure, IOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err, tt.fallback); got != tt.want {
				t.Errorf("Categorize(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapPreservesExisting(t *testing.T) {
	orig := New(TransferAlreadyInProgress, "download", "a.txt", nil)
	got := Wrap(fmt.Errorf("ctx: %w", orig), IOFailure, "other", "b")
	if got != orig {
		t.Errorf("Wrap returned %v, want the original error", got)
	}

	if Wrap(nil, IOFailure, "op", "") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	wrapped := Wrap(errors.New("disk on fire"), IOFailure, "download", "c.bin")
	if wrapped.Kind != IOFailure || wrapped.Op != "download" || wrapped.Path != "c.bin" {
		t.Errorf("unexpected wrap result: %+v", wrapped)
	}
	if !errors.Is(wrapped, wrapped.Err) {
		t.Error("wrapped error should unwrap to its cause")
	}
}

func TestKindStringRoundTrip(t *testing.T) {
	for k := range kindNames {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if ParseKind("nonsense") != None {
		t.Error("unknown names should parse to None")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(AlreadyExists, "upload", "report.csv", nil)
	if err.Message() == "" {
		t.Error("Message should never be empty")
	}
	if got := err.Error(); got != "upload report.csv: already_exists" {
		t.Errorf("Error() = %q", got)
	}
}
