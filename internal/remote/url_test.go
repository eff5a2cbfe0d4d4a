package remote

import (
	"errors"
	"testing"

	"github.com/rainforce/smbclient/internal/errkind"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Address
		wantErr bool
	}{
		{
			name: "share root",
			raw:  "smb://host/share",
			want: Address{Host: "host", Port: 445, Share: "share"},
		},
		{
			name: "nested dir and trailing slash",
			raw:  "smb://fileserver/public/docs/2024/",
			want: Address{Host: "fileserver", Port: 445, Share: "public", Dir: "docs/2024"},
		},
		{
			name: "explicit port",
			raw:  "SMB://10.0.0.5:1445/data",
			want: Address{Host: "10.0.0.5", Port: 1445, Share: "data"},
		},
		{
			name: "unc",
			raw:  `\\nas\media\movies`,
			want: Address{Host: "nas", Port: 445, Share: "media", Dir: "movies"},
		},
		{
			name: "forward slash unc",
			raw:  "//nas/media",
			want: Address{Host: "nas", Port: 445, Share: "media"},
		},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "no share", raw: "smb://host", wantErr: true},
		{name: "wrong scheme", raw: "http://host/share", wantErr: true},
		{name: "no scheme", raw: "host/share", wantErr: true},
		{name: "bad port", raw: "smb://host:99999/share", wantErr: true},
		{name: "no host", raw: "smb:///share", wantErr: true},
		{name: "unc without share", raw: `\\nas`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, errkind.ErrMalformedAddress) {
					t.Fatalf("ParseURL(%q) error = %v, want ErrMalformedAddress", tt.raw, err)
				}
				if errkind.Categorize(err, errkind.RemoteUnavailable) != errkind.MalformedAddress {
					t.Errorf("error should categorize as MalformedAddress")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseURL(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAddressHelpers(t *testing.T) {
	addr := Address{Host: "host", Port: 445, Share: "share", Dir: "in"}

	if got := addr.Resolve("report.csv"); got != "in/report.csv" {
		t.Errorf("Resolve() = %q", got)
	}
	if got := addr.Resolve(""); got != "in" {
		t.Errorf("Resolve(\"\") = %q", got)
	}
	if got := addr.Join("report.csv"); got != "smb://host/share/in/report.csv" {
		t.Errorf("Join() = %q", got)
	}
	if got := addr.ShareUNC(); got != `\\host\share` {
		t.Errorf("ShareUNC() = %q", got)
	}
	if got := addr.HostPort(); got != "host:445" {
		t.Errorf("HostPort() = %q", got)
	}

	custom := Address{Host: "h", Port: 1445, Share: "s"}
	if got := custom.String(); got != "smb://h:1445/s" {
		t.Errorf("String() = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		`\a.txt`:       "a.txt",
		"/dir/b.txt":   "dir/b.txt",
		`dir\sub\c`:    "dir/sub/c",
		"./d":          "d",
		"plain.txt":    "plain.txt",
		`\\share\e.md`: "share/e.md",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
