package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAbsolutePath(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(base, "dl")
	if err := os.Mkdir(existing, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"existing", existing, existing},
		{"missing tail", filepath.Join(existing, "new", "deeper"), filepath.Join(existing, "new", "deeper")},
		{"unclean", existing + string(filepath.Separator) + ".", existing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAbsolutePath(tt.in)
			if err != nil {
				t.Fatalf("ResolveAbsolutePath(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveAbsolutePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveAbsolutePathFollowsSymlink(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(base, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := ResolveAbsolutePath(filepath.Join(link, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(target, "missing"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveAbsolutePathEmpty(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ResolveAbsolutePath("")
	if err != nil {
		t.Fatal(err)
	}
	if got != wd {
		t.Errorf("got %q, want working directory %q", got, wd)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/Downloads", filepath.Join(home, "Downloads")},
		{"/abs/~x", "/abs/~x"},
		{"~other", "~other"},
	}
	for _, tt := range tests {
		got, err := ExpandHome(tt.in)
		if err != nil {
			t.Fatalf("ExpandHome(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
