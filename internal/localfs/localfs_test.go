package localfs

import (
	"io"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func TestIsHiddenName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{".hidden", true},
		{".gitignore", true},
		{"visible.txt", false},
		{"normal", false},
		{"..", false}, // Parent dir reference starts with . but is special
		{".", false},  // Current dir reference
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsHiddenName(tt.name)
			if result != tt.expected {
				t.Errorf("IsHiddenName(%q) = %v, want %v", tt.name, result, tt.expected)
			}
		})
	}
}

func newMemStorage(t *testing.T, files map[string]string) *Storage {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for p, content := range files {
		if err := afero.WriteFile(fsys, p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return New(fsys)
}

func TestListDirectory(t *testing.T) {
	s := newMemStorage(t, map[string]string{
		"/dl/b.txt":       "bb",
		"/dl/a.txt":       "a",
		"/dl/.secret":     "x",
		"/dl/sub/c.txt":   "c",
		"/other/skip.txt": "",
	})

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"default hides dotfiles", ListOptions{}, []string{"a.txt", "b.txt", "sub"}},
		{"include hidden", ListOptions{IncludeHidden: true}, []string{".secret", "a.txt", "b.txt", "sub"}},
		{"files only", ListOptions{FilesOnly: true}, []string{"a.txt", "b.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.ListDirectory("/dl", tt.opts)
			if err != nil {
				t.Fatalf("ListDirectory() error = %v", err)
			}
			var names []string
			for _, e := range entries {
				names = append(names, e.Name)
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("names = %v, want %v", names, tt.want)
			}
		})
	}

	if _, err := s.ListDirectory("/missing", ListOptions{}); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestListChildrenIncludesEverything(t *testing.T) {
	s := newMemStorage(t, map[string]string{
		"/dl/a.txt":   "",
		"/dl/.secret": "",
	})
	got, err := s.ListChildren("/dl")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{".secret", "a.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListChildren() = %v, want %v", got, want)
	}
}

func TestIsDir(t *testing.T) {
	s := newMemStorage(t, map[string]string{"/dl/file.txt": "x"})

	tests := []struct {
		ref  string
		want bool
	}{
		{"/dl", true},
		{"/dl/file.txt", false},
		{"/nope", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := s.IsDir(tt.ref)
		if err != nil {
			t.Errorf("IsDir(%q) error = %v", tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("IsDir(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestCreateFileAndStreams(t *testing.T) {
	s := newMemStorage(t, map[string]string{"/dl/existing.txt": "old content"})

	ref, ok, err := s.CreateFile("/dl", `\a.txt`)
	if err != nil || !ok {
		t.Fatalf("CreateFile() = %q, %v, %v", ref, ok, err)
	}
	if ref != filepath.Join("/dl", "a.txt") {
		t.Errorf("ref = %q", ref)
	}

	w, err := s.OpenWriteStream(ref)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "hello"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := s.OpenReadStream(ref)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	// Same name again truncates.
	ref2, ok, err := s.CreateFile("/dl", "existing.txt")
	if err != nil || !ok {
		t.Fatalf("CreateFile(existing) = %v, %v", ok, err)
	}
	if b, _ := afero.ReadFile(s.Fs(), ref2); len(b) != 0 {
		t.Errorf("existing file not truncated: %q", b)
	}
}

func TestCreateFileTargetNotDirectory(t *testing.T) {
	s := newMemStorage(t, map[string]string{"/dl/file.txt": "x"})

	for _, folder := range []string{"", "/missing", "/dl/file.txt"} {
		ref, ok, err := s.CreateFile(folder, "a.txt")
		if err != nil {
			t.Errorf("CreateFile(%q) error = %v", folder, err)
		}
		if ok || ref != "" {
			t.Errorf("CreateFile(%q) = %q, %v; want absent", folder, ref, ok)
		}
	}
}

func TestRemove(t *testing.T) {
	s := newMemStorage(t, map[string]string{"/dl/partial.bin": "xx"})
	if err := s.Remove("/dl/partial.bin"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := afero.Exists(s.Fs(), "/dl/partial.bin"); ok {
		t.Error("file still exists")
	}
	if err := s.Remove("/dl/partial.bin"); err != nil {
		t.Errorf("removing a missing file should be a no-op, got %v", err)
	}
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		`\a.txt`:         "a.txt",
		"/b.txt":         "b.txt",
		"dir/c.txt":      "c.txt",
		`dir\sub\d.txt`:  "d.txt",
		"..":             "",
		"plain":          "plain",
	}
	for in, want := range tests {
		if got := CleanName(in); got != want {
			t.Errorf("CleanName(%q) = %q, want %q", in, got, want)
		}
	}
}
